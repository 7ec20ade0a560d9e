package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/liliang-cn/storerouter/internal/domain"
	"github.com/liliang-cn/storerouter/internal/intent"
)

// ExportService renders a user's last answer as a file
type ExportService struct {
	exporter Exporter
	sessions *Sessions
}

// NewExportService creates a new export service
func NewExportService(exporter Exporter, sessions *Sessions) *ExportService {
	return &ExportService{exporter: exporter, sessions: sessions}
}

// Remember keeps the answer as the user's export candidate
func (s *ExportService) Remember(userID int64, question, answer, storeName string) {
	s.sessions.SetLastAnswer(userID, LastAnswer{
		Question:  question,
		Answer:    answer,
		StoreName: storeName,
		At:        time.Now(),
	})
}

// HasAnswer reports whether the user has something to export
func (s *ExportService) HasAnswer(userID int64) bool {
	_, ok := s.sessions.LastAnswer(userID)
	return ok
}

// ExportLast renders the user's last answer in the given format
func (s *ExportService) ExportLast(userID int64, format string) (*domain.Attachment, error) {
	last, ok := s.sessions.LastAnswer(userID)
	if !ok {
		return nil, fmt.Errorf("no answer to export: %w", domain.ErrNotFound)
	}
	title := last.StoreName
	if title == "" {
		title = "Answer"
	}
	return s.exporter.Render(format, last.Answer, title, last.Question, last.StoreName)
}

// ParseFormat normalizes a typed format name to "pdf", "docx" or ""
func ParseFormat(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "pdf", "docx":
		return s
	}
	return intent.ExportFormat(s)
}

// exportChoices offers both formats for the last answer
func exportChoices() []domain.Choice {
	return []domain.Choice{
		{Label: "PDF", Command: "/export pdf"},
		{Label: "DOCX", Command: "/export docx"},
	}
}
