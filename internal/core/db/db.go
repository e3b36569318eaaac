package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// queryer is satisfied by both *sql.DB and *sql.Tx so read helpers can run
// inside or outside a write transaction.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type DB struct {
	db     *sql.DB
	logger *slog.Logger

	// writeMu serializes every write to the store.
	writeMu sync.Mutex

	listenersMu    sync.RWMutex
	eventListeners map[EventKind][]EventListener
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the logger used for migrations and listener failures.
func WithLogger(logger *slog.Logger) Option {
	return func(db *DB) {
		if logger != nil {
			db.logger = logger
		}
	}
}

// NewSQLiteDB opens the SQLite database at path. Foreign keys are enabled
// and the pool is limited to one connection, which keeps ":memory:"
// databases coherent and lets SQLite's single writer do the rest.
func NewSQLiteDB(path string, opts ...Option) (*DB, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_foreign_keys=on&_busy_timeout=5000"
	}
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	db := &DB{
		db:             sqlDB,
		logger:         slog.Default(),
		eventListeners: make(map[EventKind][]EventListener),
	}
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}

func (db *DB) Migrate() error {
	// Create migrations tracking table if it doesn't exist
	_, err := db.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var migrations []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		migrations = append(migrations, entry.Name())
	}

	sort.Strings(migrations)

	for _, migration := range migrations {
		version := strings.TrimSuffix(migration, ".sql")
		if version == "" {
			db.logger.Warn("invalid migration file name", "file", migration)
			continue
		}

		var exists bool
		if err := db.db.QueryRow(`
		    SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = ?)
		`, version).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check if migration has been applied: %w", err)
		}
		if exists {
			db.logger.Debug("migration already applied", "version", version)
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + migration)
		if err != nil {
			return fmt.Errorf("failed to read migration file: %w", err)
		}

		tx, err := db.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to apply migration %s: %w", version, err)
		}

		if _, err := tx.Exec(`
		    INSERT INTO schema_migrations (version) VALUES (?)
		`, version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to mark migration as applied: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}

		db.logger.Info("migration applied", "version", version)
	}

	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

// Tx is a write transaction. Events recorded on it are dispatched to the
// DB's listeners only after the transaction commits.
type Tx struct {
	ctx    context.Context
	tx     *sql.Tx
	events []Event
}

func (tx *Tx) record(event Event) {
	tx.events = append(tx.events, event)
}

// WithTx runs fn inside a serialized write transaction. If fn returns an
// error the transaction is rolled back and no events are emitted.
func (db *DB) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	events, err := db.runTx(ctx, fn)
	if err != nil {
		return err
	}
	for _, event := range events {
		db.emit(event)
	}
	return nil
}

func (db *DB) runTx(ctx context.Context, fn func(tx *Tx) error) ([]Event, error) {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	sqlTx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	tx := &Tx{ctx: ctx, tx: sqlTx}
	if err := fn(tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			db.logger.Error("rollback failed", "error", rbErr)
		}
		return nil, err
	}
	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return tx.events, nil
}

// exec runs a single write statement under the write lock.
func (db *DB) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()
	return db.db.ExecContext(ctx, query, args...)
}

// Clear deletes every row of every entity table. Last-refresh timestamps
// are left alone; callers reset them separately.
func (db *DB) Clear(ctx context.Context) error {
	return db.WithTx(ctx, func(tx *Tx) error {
		for _, table := range []string{
			"offline_captures",
			"saved_item_tags",
			"saved_items",
			"items",
			"tags",
			"user_status",
			"sync_tasks",
		} {
			if _, err := tx.tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		tx.record(StoreClearedEvent{})
		return nil
	})
}
