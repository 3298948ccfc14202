// Package database owns the SQLite connection used to persist tasks,
// triggers and execution history.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/watzon/gensched/internal/config"
	"github.com/watzon/gensched/internal/database/migrations"
)

// TimeLayout is the stored form of every timestamp. Values are always UTC,
// so the text has a fixed width and sorts chronologically.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type DB struct {
	*sql.DB
	cfg    *config.DatabaseConfig
	mu     sync.RWMutex
	closed bool
}

func Open(cfg *config.DatabaseConfig) (*DB, error) {
	if err := ensureDir(cfg.Path); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Pragmas are per connection; with a single connection they stick.
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	db := &DB{
		DB:  sqlDB,
		cfg: cfg,
	}

	if err := db.configure(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("configuring database: %w", err)
	}

	if err := migrations.Run(context.Background(), sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return db, nil
}

func ensureDir(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (db *DB) configure() error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", db.cfg.BusyTimeout.Milliseconds()),
	}

	if db.cfg.WALMode {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
		pragmas = append(pragmas, "PRAGMA synchronous = NORMAL")
	}

	if db.cfg.ForeignKeys {
		pragmas = append(pragmas, "PRAGMA foreign_keys = ON")
	}

	if db.cfg.CacheSize != 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA cache_size = %d", db.cfg.CacheSize))
	}

	pragmas = append(pragmas, "PRAGMA temp_store = MEMORY")

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("executing %q: %w", pragma, err)
		}
	}

	return nil
}

func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil
	}
	db.closed = true

	if db.cfg.WALMode {
		_, _ = db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}

	return db.DB.Close()
}

func (db *DB) Ping(ctx context.Context) error {
	return db.DB.PingContext(ctx)
}

// Begin starts a transaction for a caller that manages commit and rollback.
func (db *DB) Begin(ctx context.Context) (*Tx, error) {
	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return &Tx{Tx: sqlTx}, nil
}

func (db *DB) Transaction(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %w (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

type Tx struct {
	*sql.Tx
}

// Run executes a statement built by one of the query builders and returns
// the number of affected rows.
func (tx *Tx) Run(ctx context.Context, query string, args []any) (int64, error) {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, ClassifyError(err)
	}
	return res.RowsAffected()
}

func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// FormatTimePtr renders t, or returns nil so the column is stored as NULL.
func FormatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return FormatTime(*t)
}

// ParseTime reads a stored timestamp.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// ParseTimePtr reads a nullable stored timestamp.
func ParseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := ParseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func Now() string {
	return FormatTime(time.Now())
}
