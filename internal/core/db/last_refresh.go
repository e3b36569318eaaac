package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// LastRefresh returns the stored Unix timestamp for collection. The boolean
// is false when no timestamp has been recorded, which is distinct from 0.
func (db *DB) LastRefresh(ctx context.Context, collection string) (int64, bool, error) {
	var ts int64
	err := db.db.QueryRowContext(ctx,
		"SELECT refreshed_at FROM last_refresh WHERE collection = ?", collection).Scan(&ts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to read last refresh for %s: %w", collection, err)
	}
	return ts, true, nil
}

func (db *DB) SetLastRefresh(ctx context.Context, collection string, ts int64) error {
	_, err := db.exec(ctx, `
		INSERT INTO last_refresh (collection, refreshed_at) VALUES (?, ?)
		ON CONFLICT(collection) DO UPDATE SET refreshed_at = excluded.refreshed_at
	`, collection, ts)
	if err != nil {
		return fmt.Errorf("failed to set last refresh for %s: %w", collection, err)
	}
	return nil
}

// ResetLastRefresh forgets every collection's timestamp.
func (db *DB) ResetLastRefresh(ctx context.Context) error {
	if _, err := db.exec(ctx, "DELETE FROM last_refresh"); err != nil {
		return fmt.Errorf("failed to reset last refresh: %w", err)
	}
	return nil
}
