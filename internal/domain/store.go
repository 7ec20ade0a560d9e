package domain

import (
	"strings"
	"time"
)

// Store is a named knowledge store backed by the hosted document-search service
type Store struct {
	ID          string     `json:"id"`
	RemoteName  string     `json:"remote_name"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Documents   []Document `json:"documents,omitempty"`
	SyncURLs    []string   `json:"sync_urls,omitempty"`
	AutoSync    bool       `json:"auto_sync"`
	LastSync    *time.Time `json:"last_sync,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// HasDocument reports whether a document with the given file name is registered
func (s *Store) HasDocument(filename string) bool {
	for _, d := range s.Documents {
		if strings.EqualFold(d.Filename, filename) {
			return true
		}
	}
	return false
}

// PutDocument appends doc or replaces the entry with the same file name
func (s *Store) PutDocument(doc Document) {
	for i, d := range s.Documents {
		if strings.EqualFold(d.Filename, doc.Filename) {
			s.Documents[i] = doc
			return
		}
	}
	s.Documents = append(s.Documents, doc)
}

// CreateStoreRequest is the request to create a store
type CreateStoreRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description,omitempty"`
}

// UpdateStoreRequest is the request to update store metadata.
// Empty fields are left unchanged.
type UpdateStoreRequest struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// RemoteStore is a store as listed by the hosted backend
type RemoteStore struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}
