package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/watzon/gensched/internal/config"
)

func testDB(t *testing.T) *DB {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	cfg := &config.DatabaseConfig{
		Path:         dbPath,
		WALMode:      true,
		ForeignKeys:  true,
		CacheSize:    -2000,
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}

	db, err := Open(cfg)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func TestOpenAndClose(t *testing.T) {
	db := testDB(t)

	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("ping failed: %v", err)
	}

	if err := db.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("second close failed: %v", err)
	}
}

func TestTransaction(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, "CREATE TABLE test (id INTEGER PRIMARY KEY, name TEXT)")
	if err != nil {
		t.Fatalf("create table failed: %v", err)
	}

	err = db.Transaction(ctx, func(tx *Tx) error {
		q, args := NewInsert("test").Set("id", 1).Set("name", "alice").Build()
		if _, err := tx.Run(ctx, q, args); err != nil {
			return err
		}
		q, args = NewInsert("test").Set("id", 2).Set("name", "bob").Build()
		_, err := tx.Run(ctx, q, args)
		return err
	})
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}

	var count int
	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM test").Scan(&count)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 rows, got %d", count)
	}
}

func TestTransactionRollback(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, "CREATE TABLE test (id INTEGER PRIMARY KEY, name TEXT UNIQUE)")
	if err != nil {
		t.Fatalf("create table failed: %v", err)
	}

	err = db.Transaction(ctx, func(tx *Tx) error {
		if _, err := tx.Run(ctx, "INSERT INTO test (id, name) VALUES (1, 'alice')", nil); err != nil {
			return err
		}
		_, err := tx.Run(ctx, "INSERT INTO test (id, name) VALUES (2, 'alice')", nil)
		return err
	})
	if err == nil {
		t.Fatal("expected transaction to fail")
	}
	if !IsUniqueError(err) {
		t.Errorf("expected unique violation, got %v", err)
	}
	if ce := AsConstraintError(err); ce == nil || ce.Table != "test" || ce.Column != "name" {
		t.Errorf("unexpected constraint error: %+v", ce)
	}

	var count int
	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM test").Scan(&count)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 rows after rollback, got %d", count)
	}
}

func TestForeignKeyEnforced(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	err := db.Transaction(ctx, func(tx *Tx) error {
		q, args := NewInsert("triggers").
			Set("id", "t1").
			Set("task_id", "missing").
			Set("kind", "once").
			Set("starts_at", Now()).
			Set("created_at", Now()).
			Set("updated_at", Now()).
			Build()
		_, err := tx.Run(ctx, q, args)
		return err
	})
	if !IsForeignKeyError(err) {
		t.Errorf("expected foreign key error, got %v", err)
	}
}

func TestClassifyError_NoRows(t *testing.T) {
	if err := ClassifyError(sql.ErrNoRows); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	plain := errors.New("disk I/O error")
	if err := ClassifyError(plain); err != plain {
		t.Errorf("expected unknown error unchanged, got %v", err)
	}
}

func TestTimeRoundTrip(t *testing.T) {
	at := time.Date(2026, 5, 1, 12, 0, 0, 123456789, time.FixedZone("x", 3600))

	s := FormatTime(at)
	if s != "2026-05-01T11:00:00.123456789Z" {
		t.Errorf("FormatTime() = %s", s)
	}

	back, err := ParseTime(s)
	if err != nil {
		t.Fatalf("ParseTime() error = %v", err)
	}
	if !back.Equal(at) {
		t.Errorf("ParseTime() = %v, want %v", back, at)
	}

	// Whole seconds keep the fixed width so text comparison orders correctly.
	if len(FormatTime(at.Truncate(time.Second))) != len(s) {
		t.Error("expected fixed-width timestamps")
	}

	if p, err := ParseTimePtr(sql.NullString{}); err != nil || p != nil {
		t.Errorf("ParseTimePtr(NULL) = %v, %v", p, err)
	}
	if FormatTimePtr(nil) != nil {
		t.Error("FormatTimePtr(nil) should be nil")
	}
}

func TestQueryBuilder(t *testing.T) {
	tests := []struct {
		name     string
		build    func() *QueryBuilder
		expected string
		args     int
	}{
		{
			name: "simple select",
			build: func() *QueryBuilder {
				return NewQuery("tasks")
			},
			expected: "SELECT * FROM tasks",
		},
		{
			name: "select with columns",
			build: func() *QueryBuilder {
				return NewQuery("tasks").Select("id", "name")
			},
			expected: "SELECT id, name FROM tasks",
		},
		{
			name: "with filter",
			build: func() *QueryBuilder {
				return NewQuery("tasks").Where("is_active", true)
			},
			expected: "SELECT * FROM tasks WHERE is_active = ?",
			args:     1,
		},
		{
			name: "with in filter",
			build: func() *QueryBuilder {
				return NewQuery("tasks").Filter("status", OpIn, Values([]string{"Ready", "Waiting"}))
			},
			expected: "SELECT * FROM tasks WHERE status IN (?, ?)",
			args:     2,
		},
		{
			name: "with empty in filter",
			build: func() *QueryBuilder {
				return NewQuery("tasks").Filter("id", OpIn, []any{})
			},
			expected: "SELECT * FROM tasks WHERE 1 = 0",
		},
		{
			name: "with raw condition",
			build: func() *QueryBuilder {
				return NewQuery("tasks").Where("status", "Running").WhereRaw("next_execution < ? OR next_execution IS NULL", "x")
			},
			expected: "SELECT * FROM tasks WHERE status = ? AND (next_execution < ? OR next_execution IS NULL)",
			args:     2,
		},
		{
			name: "with sort",
			build: func() *QueryBuilder {
				return NewQuery("task_history").OrderByDesc("started_at")
			},
			expected: "SELECT * FROM task_history ORDER BY started_at DESC",
		},
		{
			name: "with limit and offset",
			build: func() *QueryBuilder {
				return NewQuery("tasks").Limit(10).Offset(20)
			},
			expected: "SELECT * FROM tasks LIMIT 10 OFFSET 20",
		},
		{
			name: "offset without limit",
			build: func() *QueryBuilder {
				return NewQuery("tasks").Offset(5)
			},
			expected: "SELECT * FROM tasks LIMIT -1 OFFSET 5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := tt.build().Build()
			if sql != tt.expected {
				t.Errorf("expected:\n%s\ngot:\n%s", tt.expected, sql)
			}
			if len(args) != tt.args {
				t.Errorf("expected %d args, got %d", tt.args, len(args))
			}
		})
	}
}

func TestInsertBuilder(t *testing.T) {
	sql, args := NewInsert("tasks").
		Set("id", "123").
		Set("name", "backup").
		Set("is_active", true).
		Build()

	expected := "INSERT INTO tasks (id, name, is_active) VALUES (?, ?, ?)"
	if sql != expected {
		t.Errorf("expected:\n%s\ngot:\n%s", expected, sql)
	}

	if len(args) != 3 {
		t.Errorf("expected 3 args, got %d", len(args))
	}
}

func TestUpdateBuilder(t *testing.T) {
	var cond Conditions
	cond.Where("is_active", true).Filter("next_execution", OpLte, "2026")

	sql, args := NewUpdate("tasks").
		Set("status", "Waiting").
		Where("status", "Ready").
		Apply(cond).
		Build()

	expected := "UPDATE tasks SET status = ? WHERE status = ? AND is_active = ? AND next_execution <= ?"
	if sql != expected {
		t.Errorf("expected:\n%s\ngot:\n%s", expected, sql)
	}

	if len(args) != 4 || args[0] != "Waiting" || args[1] != "Ready" {
		t.Errorf("unexpected args %v", args)
	}
}

func TestDeleteBuilder(t *testing.T) {
	sql, args := NewDelete("task_history").
		Filter("started_at", OpLt, "2026-01-01").
		Filter("task_id", OpNotIn, Values([]string{"a"})).
		Build()

	expected := "DELETE FROM task_history WHERE started_at < ? AND task_id NOT IN (?)"
	if sql != expected {
		t.Errorf("expected:\n%s\ngot:\n%s", expected, sql)
	}

	if len(args) != 2 {
		t.Errorf("expected 2 args, got %d", len(args))
	}
}
