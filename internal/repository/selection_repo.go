package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/liliang-cn/storerouter/internal/domain"
)

// SelectionRepository persists each user's active store
type SelectionRepository struct {
	db *DB
}

// NewSelectionRepository creates a new selection repository
func NewSelectionRepository(db *DB) *SelectionRepository {
	return &SelectionRepository{db: db}
}

// Get returns the user's selection, or nil when none is set
func (r *SelectionRepository) Get(ctx context.Context, userID int64) (*domain.Selection, error) {
	selection := &domain.Selection{}
	var storeName sql.NullString

	err := r.db.QueryRowContext(ctx, `
		SELECT s.user_id, s.store_id, st.name, s.updated_at
		FROM user_selections s LEFT JOIN stores st ON st.id = s.store_id
		WHERE s.user_id = ?
	`, userID).Scan(&selection.UserID, &selection.StoreID, &storeName, &selection.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	selection.StoreName = storeName.String
	return selection, nil
}

// Set makes storeID the user's active store
func (r *SelectionRepository) Set(ctx context.Context, userID int64, storeID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_selections (user_id, store_id, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET store_id = excluded.store_id, updated_at = excluded.updated_at
	`, userID, storeID, time.Now().UTC())
	return err
}

// Clear removes the user's selection
func (r *SelectionRepository) Clear(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM user_selections WHERE user_id = ?`, userID)
	return err
}

// ClearForStore removes every selection pointing at storeID
func (r *SelectionRepository) ClearForStore(ctx context.Context, storeID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM user_selections WHERE store_id = ?`, storeID)
	return err
}

// Count returns the number of users with an active store
func (r *SelectionRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_selections`).Scan(&count)
	return count, err
}
