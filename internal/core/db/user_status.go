package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SetPremiumStatus records the premium flag reported by the server.
func (tx *Tx) SetPremiumStatus(premium bool) error {
	_, err := tx.tx.ExecContext(tx.ctx, `
		INSERT INTO user_status (id, is_premium) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET is_premium = excluded.is_premium
	`, premium)
	if err != nil {
		return fmt.Errorf("failed to set premium status: %w", err)
	}
	return nil
}

// PremiumStatus reports false until the server has told us otherwise.
func (db *DB) PremiumStatus(ctx context.Context) (bool, error) {
	var premium bool
	err := db.db.QueryRowContext(ctx, "SELECT is_premium FROM user_status WHERE id = 1").Scan(&premium)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read premium status: %w", err)
	}
	return premium, nil
}
