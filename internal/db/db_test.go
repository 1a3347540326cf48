package db

import (
	"os"
	"testing"
)

func TestOpenCreatesWorkspaceDatabase(t *testing.T) {
	ws := t.TempDir()
	conn, err := Open(Config{Workspace: ws})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()
	if err := conn.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if _, err := os.Stat(Path(ws)); err != nil {
		t.Fatalf("database file missing: %v", err)
	}
	if got := conn.Rebind("SELECT ?"); got != "SELECT ?" {
		t.Fatalf("sqlite should keep ? placeholders, got %q", got)
	}
}

func TestOpenRejectsBadDrivers(t *testing.T) {
	if _, err := Open(Config{Driver: "pgx"}); err == nil {
		t.Fatalf("expected dsn error")
	}
	if _, err := Open(Config{Driver: "oracle"}); err == nil {
		t.Fatalf("expected driver error")
	}
}
