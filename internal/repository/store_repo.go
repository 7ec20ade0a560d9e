package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/storerouter/internal/domain"
)

// StoreRepository handles store catalog persistence
type StoreRepository struct {
	db *DB
}

// NewStoreRepository creates a new store repository
func NewStoreRepository(db *DB) *StoreRepository {
	return &StoreRepository{db: db}
}

const storeColumns = `id, remote_name, name, description, documents, sync_urls, auto_sync, last_sync, created_at, updated_at`

// Create creates a new store
func (r *StoreRepository) Create(store *domain.Store) error {
	if store.ID == "" {
		store.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	store.CreatedAt = now
	store.UpdatedAt = now

	documentsJSON, _ := json.Marshal(store.Documents)
	syncJSON, _ := json.Marshal(store.SyncURLs)

	_, err := r.db.Exec(`
		INSERT INTO stores (id, remote_name, name, name_key, description, documents, sync_urls, auto_sync, last_sync, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, store.ID, store.RemoteName, store.Name, nameKey(store.Name), store.Description,
		string(documentsJSON), string(syncJSON), store.AutoSync, nullTime(store.LastSync),
		store.CreatedAt, store.UpdatedAt)

	return err
}

// Get retrieves a store by ID
func (r *StoreRepository) Get(id string) (*domain.Store, error) {
	return r.getOne(`SELECT `+storeColumns+` FROM stores WHERE id = ?`, id)
}

// GetByName retrieves the earliest store whose name equals name, ignoring case
func (r *StoreRepository) GetByName(name string) (*domain.Store, error) {
	return r.getOne(`SELECT `+storeColumns+` FROM stores WHERE name_key = ? ORDER BY created_at ASC, rowid ASC LIMIT 1`, nameKey(name))
}

// GetByRemoteName retrieves a store by its backend resource name
func (r *StoreRepository) GetByRemoteName(remoteName string) (*domain.Store, error) {
	return r.getOne(`SELECT `+storeColumns+` FROM stores WHERE remote_name = ?`, remoteName)
}

func (r *StoreRepository) getOne(query string, arg any) (*domain.Store, error) {
	store, err := scanStore(r.db.QueryRow(query, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

// List retrieves all stores in creation order
func (r *StoreRepository) List() ([]*domain.Store, error) {
	rows, err := r.db.Query(`SELECT ` + storeColumns + ` FROM stores ORDER BY created_at ASC, rowid ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stores []*domain.Store
	for rows.Next() {
		store, err := scanStore(rows)
		if err != nil {
			return nil, err
		}
		stores = append(stores, store)
	}

	return stores, rows.Err()
}

// Update updates a store
func (r *StoreRepository) Update(store *domain.Store) error {
	store.UpdatedAt = time.Now().UTC()
	documentsJSON, _ := json.Marshal(store.Documents)
	syncJSON, _ := json.Marshal(store.SyncURLs)

	result, err := r.db.Exec(`
		UPDATE stores SET name = ?, name_key = ?, description = ?, documents = ?, sync_urls = ?,
			auto_sync = ?, last_sync = ?, updated_at = ?
		WHERE id = ?
	`, store.Name, nameKey(store.Name), store.Description, string(documentsJSON), string(syncJSON),
		store.AutoSync, nullTime(store.LastSync), store.UpdatedAt, store.ID)

	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("store not found: %s: %w", store.ID, domain.ErrNotFound)
	}

	return nil
}

// Delete deletes a store
func (r *StoreRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM stores WHERE id = ?`, id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("store not found: %s: %w", id, domain.ErrNotFound)
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStore(row scanner) (*domain.Store, error) {
	store := &domain.Store{}
	var description, documentsJSON, syncJSON sql.NullString
	var lastSync sql.NullTime

	if err := row.Scan(&store.ID, &store.RemoteName, &store.Name, &description, &documentsJSON,
		&syncJSON, &store.AutoSync, &lastSync, &store.CreatedAt, &store.UpdatedAt); err != nil {
		return nil, err
	}

	store.Description = description.String
	if documentsJSON.Valid && documentsJSON.String != "" {
		json.Unmarshal([]byte(documentsJSON.String), &store.Documents)
	}
	if syncJSON.Valid && syncJSON.String != "" {
		json.Unmarshal([]byte(syncJSON.String), &store.SyncURLs)
	}
	if lastSync.Valid {
		t := lastSync.Time
		store.LastSync = &t
	}
	return store, nil
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
