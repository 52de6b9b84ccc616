package db

import (
	"path/filepath"
	"testing"
)

func TestOpen_RunsMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentchat.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	for _, table := range []string{"chat_sessions", "messages", "tool_executions"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}

	// Reopening must not fail on existing schema.
	again, err := Open(path)
	if err != nil {
		t.Fatalf("failed to reopen database: %v", err)
	}
	again.Close()
}

func TestNewTestDB_EnforcesForeignKeys(t *testing.T) {
	db, err := NewTestDB()
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	defer db.Close()

	_, err = db.Exec(`INSERT INTO messages (id, session_id, seq, role, content) VALUES ('m', 'nope', 1, 'user', 'x')`)
	if err == nil {
		t.Error("expected foreign key violation")
	}
}
