package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rpggio/browserhost/internal/repository"
)

// KVRepository implements repository.KVStore for SQLite
type KVRepository struct {
	db *DB
}

// NewKVRepository creates a new KVRepository
func NewKVRepository(db *DB) *KVRepository {
	return &KVRepository{db: db}
}

// Get returns the value stored under key.
func (r *KVRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", repository.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get key: %w", err)
	}
	return value, nil
}

// Set stores value under key, replacing any previous value.
func (r *KVRepository) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (r *KVRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	return nil
}
