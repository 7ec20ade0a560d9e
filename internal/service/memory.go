package service

import (
	"context"
	"strings"

	"github.com/liliang-cn/storerouter/internal/domain"
	"go.uber.org/zap"
)

const contextTurnLimit = 500

// MemoryService records question/answer pairs and renders them back as prompt context
type MemoryService struct {
	store  ConversationStore
	logger *zap.Logger
}

// NewMemoryService creates a new memory service
func NewMemoryService(store ConversationStore, logger *zap.Logger) *MemoryService {
	return &MemoryService{store: store, logger: logger.Named("memory")}
}

// Record appends a question and its answer to the scope. Failures are logged, not returned.
func (m *MemoryService) Record(ctx context.Context, userID int64, scope, question, answer string) {
	if err := m.store.Append(ctx, userID, scope, domain.RoleUser, question); err != nil {
		m.logger.Warn("failed to save user turn", zap.Int64("user", userID), zap.String("scope", scope), zap.Error(err))
		return
	}
	if err := m.store.Append(ctx, userID, scope, domain.RoleAssistant, answer); err != nil {
		m.logger.Warn("failed to save assistant turn", zap.Int64("user", userID), zap.String("scope", scope), zap.Error(err))
	}
}

// Context renders the recent turns of a scope as a prompt prefix, or "" when there are none
func (m *MemoryService) Context(ctx context.Context, userID int64, scope string) string {
	turns, err := m.store.Recent(ctx, userID, scope)
	if err != nil {
		m.logger.Warn("failed to load history", zap.Int64("user", userID), zap.String("scope", scope), zap.Error(err))
		return ""
	}
	if len(turns) == 0 {
		return ""
	}
	return FormatTurns(turns) + "\n\nCurrent question:\n"
}

// History renders the recent turns of a scope without any framing
func (m *MemoryService) History(ctx context.Context, userID int64, scope string) string {
	turns, err := m.store.Recent(ctx, userID, scope)
	if err != nil || len(turns) == 0 {
		return ""
	}
	return FormatTurns(turns)
}

// Clear forgets every scope of the user
func (m *MemoryService) Clear(ctx context.Context, userID int64) error {
	return m.store.Clear(ctx, userID, "")
}

// FormatTurns renders turns as "User:" / "Assistant:" lines
func FormatTurns(turns []domain.Turn) string {
	var sb strings.Builder
	sb.WriteString("Previous conversation:")
	for _, t := range turns {
		label := "User"
		if t.Role == domain.RoleAssistant {
			label = "Assistant"
		}
		sb.WriteString("\n" + label + ": " + Truncate(t.Content, contextTurnLimit))
	}
	return sb.String()
}
