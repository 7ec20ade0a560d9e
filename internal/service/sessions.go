package service

import (
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
)

const lastAnswerTTL = 24 * time.Hour

// LastAnswer is the most recent answer shown to a user, kept for export
type LastAnswer struct {
	Question  string
	Answer    string
	StoreName string
	At        time.Time
}

// Sessions holds short-lived per-user dialog state in memory
type Sessions struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewSessions creates a session cache whose dialog entries expire after ttl
func NewSessions(ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Sessions{
		cache: cache.New(ttl, time.Minute),
		ttl:   ttl,
	}
}

// SetPendingUpload remembers the store the user's next file goes to
func (s *Sessions) SetPendingUpload(userID int64, storeID string) {
	s.cache.Set(key("upload", userID), storeID, s.ttl)
}

// PendingUpload returns the store armed for the user's next file
func (s *Sessions) PendingUpload(userID int64) (string, bool) {
	v, ok := s.cache.Get(key("upload", userID))
	if !ok {
		return "", false
	}
	return v.(string), true
}

// ClearPendingUpload disarms the pending upload
func (s *Sessions) ClearPendingUpload(userID int64) bool {
	_, ok := s.cache.Get(key("upload", userID))
	s.cache.Delete(key("upload", userID))
	return ok
}

// SetLastAnswer remembers the answer for a later export
func (s *Sessions) SetLastAnswer(userID int64, a LastAnswer) {
	s.cache.Set(key("answer", userID), a, lastAnswerTTL)
}

// LastAnswer returns the user's last answer
func (s *Sessions) LastAnswer(userID int64) (LastAnswer, bool) {
	v, ok := s.cache.Get(key("answer", userID))
	if !ok {
		return LastAnswer{}, false
	}
	return v.(LastAnswer), true
}

func (s *Sessions) setWizard(userID int64, w wizardSession) {
	s.cache.Set(key("wizard", userID), w, s.ttl)
}

func (s *Sessions) wizard(userID int64) (wizardSession, bool) {
	v, ok := s.cache.Get(key("wizard", userID))
	if !ok {
		return wizardSession{}, false
	}
	return v.(wizardSession), true
}

func (s *Sessions) clearWizard(userID int64) bool {
	_, ok := s.cache.Get(key("wizard", userID))
	s.cache.Delete(key("wizard", userID))
	return ok
}

func key(kind string, userID int64) string {
	return kind + ":" + strconv.FormatInt(userID, 10)
}
