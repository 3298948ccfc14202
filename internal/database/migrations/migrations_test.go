package migrations

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	db.SetMaxOpenConns(1)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func TestRun(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := Run(ctx, db); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	var count int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM _gensched_versions").Scan(&count)
	if err != nil {
		t.Fatalf("version table query failed: %v", err)
	}

	if count == 0 {
		t.Error("expected at least one migration to be applied")
	}

	pending, err := Pending(ctx, db)
	if err != nil {
		t.Fatalf("Pending() failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected no pending migrations, got %v", pending)
	}
}

func TestRun_Idempotent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := Run(ctx, db); err != nil {
		t.Fatalf("first Run() failed: %v", err)
	}

	if err := Run(ctx, db); err != nil {
		t.Fatalf("second Run() failed: %v", err)
	}

	var count int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM _gensched_versions").Scan(&count)
	if err != nil {
		t.Fatalf("version table query failed: %v", err)
	}

	applied, err := GetApplied(ctx, db)
	if err != nil {
		t.Fatalf("GetApplied() failed: %v", err)
	}

	if len(applied) != count {
		t.Errorf("expected %d applied migrations, got %d", count, len(applied))
	}
}

func TestPending_FreshDatabase(t *testing.T) {
	db := testDB(t)

	pending, err := Pending(context.Background(), db)
	if err != nil {
		t.Fatalf("Pending() failed: %v", err)
	}
	if len(pending) == 0 || pending[0] != "001_init" {
		t.Errorf("expected 001_init pending, got %v", pending)
	}
}

func TestSchemaTables(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := Run(ctx, db); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	tables := map[string][]string{
		"tasks": {
			"id", "name", "status", "next_execution", "last_execution", "auto_delete",
			"is_active", "max_execution_time", "job_type", "job_data",
			"depends_on_task_id", "depends_on_status",
		},
		"triggers": {
			"id", "task_id", "kind", "starts_at", "ends_at", "auto_delete", "execution_interval",
			"is_valid", "max_executions", "executions", "last_triggered_status",
			"cron_expression", "time_of_day", "days_of_week", "days_of_month", "months_of_year",
		},
		"calendar_entries": {"id", "trigger_id", "scheduled_at", "executed"},
		"task_history": {
			"id", "task_id", "trigger_id", "started_at", "ended_at", "status",
			"attempts", "error", "result", "result_encoding",
		},
	}

	for table, required := range tables {
		columns := tableColumns(t, db, table)
		for _, col := range required {
			if !columns[col] {
				t.Errorf("%s missing required column: %s", table, col)
			}
		}
	}

	var indexExists int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='index' AND name='idx_tasks_active_name'
	`).Scan(&indexExists)
	if err != nil {
		t.Fatalf("checking idx_tasks_active_name: %v", err)
	}
	if indexExists != 1 {
		t.Error("idx_tasks_active_name index does not exist")
	}
}

func TestActiveNameIsUnique(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := Run(ctx, db); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	insert := `INSERT INTO tasks (id, name, is_active, job_type, created_at, updated_at)
		VALUES (?, 'backup', ?, 'log', '', '')`

	if _, err := db.ExecContext(ctx, insert, "a", 1); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if _, err := db.ExecContext(ctx, insert, "b", 0); err != nil {
		t.Fatalf("inactive duplicate should be allowed: %v", err)
	}
	if _, err := db.ExecContext(ctx, insert, "c", 1); err == nil {
		t.Error("expected active duplicate name to fail")
	}
}

func TestStripComments(t *testing.T) {
	in := "-- it's a comment; with a semicolon\nCREATE TABLE a (id TEXT);\n  -- trailing\n"
	stmts := splitStatements(stripComments(in))
	if len(stmts) != 1 || stmts[0] != "CREATE TABLE a (id TEXT)" {
		t.Errorf("unexpected statements: %q", stmts)
	}
}

func tableColumns(t *testing.T, db *sql.DB, table string) map[string]bool {
	t.Helper()

	rows, err := db.QueryContext(context.Background(), "PRAGMA table_info("+table+")")
	if err != nil {
		t.Fatalf("getting %s schema: %v", table, err)
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var cid int
		var name, typ string
		var notnull, pk int
		var dfltValue sql.NullString
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dfltValue, &pk); err != nil {
			t.Fatalf("scanning column info: %v", err)
		}
		columns[name] = true
	}
	return columns
}
