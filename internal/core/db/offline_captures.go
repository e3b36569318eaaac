package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	CaptureStatusOK    = "ok"
	CaptureStatusError = "error"
)

func (db *DB) listSavedItems(ctx context.Context, query string, args ...any) ([]SavedItem, error) {
	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var out []SavedItem
	for rows.Next() {
		s, err := scanSavedItem(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan saved item: %w", err)
		}
		out = append(out, s)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}
	if err := loadTags(ctx, db.db, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListSavedItemsWithoutCapture returns live saved items that have never
// been captured, newest first. A limit of zero returns all of them.
func (db *DB) ListSavedItemsWithoutCapture(ctx context.Context, limit int) ([]SavedItem, error) {
	query := `
		SELECT ` + savedItemColumns + `
		FROM saved_items s
		LEFT JOIN items i ON i.id = s.item_id
		LEFT JOIN offline_captures c ON c.saved_item_id = s.id
		WHERE c.saved_item_id IS NULL AND s.deleted_at IS NULL
		ORDER BY s.created_at DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	out, err := db.listSavedItems(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list saved items without capture: %w", err)
	}
	return out, nil
}

func (db *DB) ListSavedItemsByCaptureStatus(ctx context.Context, status string, limit int) ([]SavedItem, error) {
	query := `
		SELECT ` + savedItemColumns + `
		FROM saved_items s
		LEFT JOIN items i ON i.id = s.item_id
		JOIN offline_captures c ON c.saved_item_id = s.id
		WHERE c.status = ?
		ORDER BY c.attempted_at DESC
	`
	args := []any{status}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	out, err := db.listSavedItems(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list saved items by capture status: %w", err)
	}
	return out, nil
}

func (db *DB) GetOfflineCapture(ctx context.Context, remoteID string) (OfflineCapture, error) {
	c := OfflineCapture{SavedItemRemoteID: remoteID}
	err := db.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(c.captured_url, ''),
			COALESCE(c.captured_html, ''),
			COALESCE(c.attempted_at, ''),
			COALESCE(c.captured_at, ''),
			COALESCE(c.status, ''),
			COALESCE(c.error, '')
		FROM offline_captures c
		JOIN saved_items s ON s.id = c.saved_item_id
		WHERE s.remote_id = ?
	`, remoteID).Scan(
		&c.CapturedURL,
		&c.CapturedHTML,
		&c.AttemptedAt,
		&c.CapturedAt,
		&c.Status,
		&c.Error,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return OfflineCapture{}, fmt.Errorf("offline capture %s: %w", remoteID, ErrNotFound)
		}
		return OfflineCapture{}, fmt.Errorf("failed to get offline capture: %w", err)
	}
	return c, nil
}

// CaptureResult is the outcome of one capture attempt.
type CaptureResult struct {
	AttemptedAt  time.Time
	CapturedAt   *time.Time
	Status       string
	Error        string
	CapturedURL  string
	CapturedHTML string
}

// SaveOfflineCapture stores the result of a capture attempt for a saved item,
// replacing any earlier attempt.
func (db *DB) SaveOfflineCapture(ctx context.Context, remoteID string, r CaptureResult) error {
	var capturedAt any
	if r.CapturedAt != nil {
		capturedAt = r.CapturedAt.Format(time.RFC3339)
	}

	return db.WithTx(ctx, func(tx *Tx) error {
		id, exists, err := tx.savedItemID(remoteID)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("saved item %s: %w", remoteID, ErrNotFound)
		}
		_, err = tx.tx.ExecContext(ctx, `
			INSERT INTO offline_captures
				(saved_item_id, captured_url, captured_html, attempted_at, captured_at, status, error)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(saved_item_id) DO UPDATE SET
				captured_url = excluded.captured_url,
				captured_html = excluded.captured_html,
				attempted_at = excluded.attempted_at,
				captured_at = excluded.captured_at,
				status = excluded.status,
				error = excluded.error
		`,
			id,
			r.CapturedURL,
			r.CapturedHTML,
			r.AttemptedAt.Format(time.RFC3339),
			capturedAt,
			r.Status,
			r.Error,
		)
		if err != nil {
			return fmt.Errorf("failed to save offline capture: %w", err)
		}
		tx.record(OfflineCaptureSavedEvent{SavedItemRemoteID: remoteID, Status: r.Status})
		return nil
	})
}

// ClearOfflineCapture drops the stored capture so the item is captured again.
func (db *DB) ClearOfflineCapture(ctx context.Context, remoteID string) error {
	return db.WithTx(ctx, func(tx *Tx) error {
		res, err := tx.tx.ExecContext(ctx, `
			DELETE FROM offline_captures
			WHERE saved_item_id = (SELECT id FROM saved_items WHERE remote_id = ?)
		`, remoteID)
		if err != nil {
			return fmt.Errorf("failed to clear offline capture: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to determine rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("offline capture %s: %w", remoteID, ErrNotFound)
		}
		tx.record(OfflineCaptureClearedEvent{SavedItemRemoteID: remoteID})
		return nil
	})
}

// BackfillItemTitle sets the title of the saved item's Item when it has none.
// It reports whether a title was written.
func (db *DB) BackfillItemTitle(ctx context.Context, remoteID, title string) (bool, error) {
	if title == "" {
		return false, nil
	}
	res, err := db.exec(ctx, `
		UPDATE items SET title = ?
		WHERE id = (SELECT item_id FROM saved_items WHERE remote_id = ?)
			AND (title IS NULL OR title = '')
	`, title, remoteID)
	if err != nil {
		return false, fmt.Errorf("failed to backfill item title: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to determine rows affected: %w", err)
	}
	return affected > 0, nil
}
