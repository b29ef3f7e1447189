package db

import (
	"testing"
)

func TestOpen_AppliesMigrations(t *testing.T) {
	d, err := Open("file:dbopen?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	v, err := Version(d)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if v != 2 {
		t.Fatalf("version = %d, want 2", v)
	}
	for _, table := range []string{"users", "inspection_requests", "inspector_locations", "assignments"} {
		var name string
		if err := d.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name = ?`, table).Scan(&name); err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
}

func TestRollbackLast_RevertsNewestMigration(t *testing.T) {
	d, err := Open("file:dbrollback?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	reverted, err := RollbackLast(d)
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if reverted != 2 {
		t.Fatalf("reverted = %d, want 2", reverted)
	}
	var n int
	if err := d.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='assignments'`).Scan(&n); err != nil {
		t.Fatalf("query: %v", err)
	}
	if n != 0 {
		t.Fatalf("assignments table still present after rollback")
	}
	if v, _ := Version(d); v != 1 {
		t.Fatalf("version after rollback = %d, want 1", v)
	}
}

func TestActiveAssignmentIndexRejectsSecondActiveRow(t *testing.T) {
	d, err := Open("file:dbunique?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	mustExec := func(q string, args ...any) {
		t.Helper()
		if _, err := d.Exec(q, args...); err != nil {
			t.Fatalf("exec %q: %v", q, err)
		}
	}
	mustExec(`INSERT INTO users (id, username, role) VALUES (1, 'c', 'client'), (2, 'i1', 'inspector'), (3, 'i2', 'inspector')`)
	mustExec(`INSERT INTO inspection_requests (id, client_id) VALUES (1, 1)`)
	mustExec(`INSERT INTO assignments (request_id, inspector_id, status, assigned_at, updated_at) VALUES (1, 2, 'declined', 'x', 'x')`)
	mustExec(`INSERT INTO assignments (request_id, inspector_id, status, assigned_at, updated_at) VALUES (1, 2, 'assigned', 'x', 'x')`)
	if _, err := d.Exec(`INSERT INTO assignments (request_id, inspector_id, status, assigned_at, updated_at) VALUES (1, 3, 'paused', 'x', 'x')`); err == nil {
		t.Fatalf("expected unique violation for second active assignment")
	}
}
