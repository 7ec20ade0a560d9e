package service

import (
	"errors"
	"strings"

	"github.com/liliang-cn/storerouter/internal/domain"
)

// User-facing fixed messages
const (
	MsgNothingFound   = "Nothing found in any store."
	MsgNoStores       = "No knowledge stores available yet. An administrator can add one with /add."
	MsgAccessDenied   = "Access denied."
	MsgAdminOnly      = "This command is available to the administrator only."
	MsgInternalError  = "Internal error, please try again."
	MsgWebUnavailable = "Web search is not configured."
)

// phrases a store uses when it has nothing on the question
var notFoundPhrases = []string{
	"не найден",
	"не найдено",
	"нет информации",
	"нет данных",
	"не содержит",
	"не содержат",
	"отсутствует информация",
	"информация отсутствует",
	"не упоминается",
	"not found",
	"no information",
	"does not contain",
	"do not contain",
	"no relevant",
	"not mentioned",
}

// IsNotFound reports whether a store answer is a "nothing here" reply
func IsNotFound(answer string) bool {
	lower := strings.ToLower(answer)
	for _, p := range notFoundPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Chunk splits text into fixed-size slices of at most limit runes
func Chunk(text string, limit int) []string {
	r := []rune(text)
	if limit <= 0 || len(r) <= limit {
		return []string{text}
	}
	var chunks []string
	for start := 0; start < len(r); start += limit {
		end := min(start+limit, len(r))
		chunks = append(chunks, string(r[start:end]))
	}
	return chunks
}

// Truncate cuts s to n runes, marking the cut
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// ErrorMessage turns an error into a short user-visible message
func ErrorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrNoStores):
		return MsgNoStores
	case errors.Is(err, domain.ErrUnauthorized):
		return MsgAdminOnly
	case errors.Is(err, domain.ErrBackendUnavailable):
		return "The search backend is not configured."
	}
	return "Error: " + Truncate(err.Error(), 200)
}

func storeName(s *domain.Store) string { return s.Name }
