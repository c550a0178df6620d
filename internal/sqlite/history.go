package sqlite

import (
	"context"
	"fmt"

	"github.com/rpggio/browserhost/internal/domain/download"
)

// HistoryRepository implements download.HistoryRepository for SQLite
type HistoryRepository struct {
	db *DB
}

// NewHistoryRepository creates a new HistoryRepository
func NewHistoryRepository(db *DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Append inserts rec as the newest entry and evicts the oldest entries beyond
// limit in the same transaction.
func (r *HistoryRepository) Append(ctx context.Context, rec download.Record, limit int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO download_history (id, filename, url, save_path, total_bytes, received_bytes, state, start_time, end_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.Filename,
		rec.URL,
		rec.SavePath,
		rec.TotalBytes,
		rec.ReceivedBytes,
		string(rec.State),
		rec.StartTime.UTC(),
		rec.EndTime.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to append history: duplicate id %s", rec.ID)
		}
		return fmt.Errorf("failed to append history: %w", err)
	}

	if limit > 0 {
		_, err = tx.ExecContext(ctx, `
			DELETE FROM download_history
			WHERE seq NOT IN (SELECT seq FROM download_history ORDER BY seq DESC LIMIT ?)
		`, limit)
		if err != nil {
			return fmt.Errorf("failed to trim history: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit history: %w", err)
	}
	return nil
}

// List returns up to limit records, most recent first. A non-positive limit
// returns everything.
func (r *HistoryRepository) List(ctx context.Context, limit int) ([]download.Record, error) {
	query := `
		SELECT id, filename, url, save_path, total_bytes, received_bytes, state, start_time, end_time
		FROM download_history
		ORDER BY seq DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	records := []download.Record{}
	for rows.Next() {
		var rec download.Record
		var state string
		if err := rows.Scan(
			&rec.ID,
			&rec.Filename,
			&rec.URL,
			&rec.SavePath,
			&rec.TotalBytes,
			&rec.ReceivedBytes,
			&state,
			&rec.StartTime,
			&rec.EndTime,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		rec.State = download.State(state)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}
	return records, nil
}
