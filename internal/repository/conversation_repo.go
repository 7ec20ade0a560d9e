package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/liliang-cn/storerouter/internal/domain"
)

// ConversationRepository keeps a bounded FIFO of turns per (user, scope)
type ConversationRepository struct {
	db          *DB
	maxMessages int
}

// NewConversationRepository creates a conversation repository keeping at most
// maxMessages turns per (user, scope).
func NewConversationRepository(db *DB, maxMessages int) *ConversationRepository {
	if maxMessages < 1 {
		maxMessages = 1
	}
	return &ConversationRepository{db: db, maxMessages: maxMessages}
}

// Append records a turn and evicts the oldest turns beyond the cap
func (r *ConversationRepository) Append(ctx context.Context, userID int64, scope, role, content string) error {
	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversation_scopes (user_id, scope, last_activity) VALUES (?, ?, ?)
		ON CONFLICT(user_id, scope) DO UPDATE SET last_activity = excluded.last_activity
	`, userID, scope, now.UnixNano()); err != nil {
		return fmt.Errorf("failed to touch scope: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversation_turns (user_id, scope, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, userID, scope, role, content, now.UnixNano()); err != nil {
		return fmt.Errorf("failed to insert turn: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM conversation_turns
		WHERE user_id = ? AND scope = ? AND id NOT IN (
			SELECT id FROM conversation_turns WHERE user_id = ? AND scope = ?
			ORDER BY id DESC LIMIT ?
		)
	`, userID, scope, userID, scope, r.maxMessages); err != nil {
		return fmt.Errorf("failed to evict turns: %w", err)
	}

	return tx.Commit()
}

// Recent returns the remembered turns, oldest first
func (r *ConversationRepository) Recent(ctx context.Context, userID int64, scope string) ([]domain.Turn, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT role, content, created_at FROM conversation_turns
		WHERE user_id = ? AND scope = ?
		ORDER BY id ASC
	`, userID, scope)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []domain.Turn
	for rows.Next() {
		var turn domain.Turn
		var createdAt int64
		if err := rows.Scan(&turn.Role, &turn.Content, &createdAt); err != nil {
			return nil, err
		}
		turn.CreatedAt = time.Unix(0, createdAt).UTC()
		turns = append(turns, turn)
	}

	return turns, rows.Err()
}

// Clear forgets one scope of a user, or every scope when scope is empty
func (r *ConversationRepository) Clear(ctx context.Context, userID int64, scope string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if scope == "" {
		if _, err := tx.ExecContext(ctx, `DELETE FROM conversation_turns WHERE user_id = ?`, userID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM conversation_scopes WHERE user_id = ?`, userID); err != nil {
			return err
		}
	} else {
		if _, err := tx.ExecContext(ctx, `DELETE FROM conversation_turns WHERE user_id = ? AND scope = ?`, userID, scope); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM conversation_scopes WHERE user_id = ? AND scope = ?`, userID, scope); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Sweep removes every scope idle since before cutoff and returns how many were removed
func (r *ConversationRepository) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM conversation_turns WHERE EXISTS (
			SELECT 1 FROM conversation_scopes s
			WHERE s.user_id = conversation_turns.user_id AND s.scope = conversation_turns.scope
			AND s.last_activity < ?
		)
	`, cutoff.UnixNano()); err != nil {
		return 0, fmt.Errorf("failed to sweep turns: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM conversation_scopes WHERE last_activity < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep scopes: %w", err)
	}
	removed, _ := result.RowsAffected()

	return int(removed), tx.Commit()
}

// Stats counts remembered users, scopes and turns
func (r *ConversationRepository) Stats(ctx context.Context) (domain.MemoryStats, error) {
	var stats domain.MemoryStats
	err := r.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(DISTINCT user_id) FROM conversation_scopes),
			(SELECT COUNT(*) FROM conversation_scopes),
			(SELECT COUNT(*) FROM conversation_turns)
	`).Scan(&stats.Users, &stats.Scopes, &stats.Messages)
	if err == sql.ErrNoRows {
		return stats, nil
	}
	return stats, err
}
