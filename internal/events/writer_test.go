package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"contagion/internal/db"
	"contagion/internal/migrate"
)

func TestAppendStoresPayload(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()
	if _, err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ctx := context.Background()
	w := Writer{Now: func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }}
	tx, err := conn.Beginx()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := w.Append(ctx, tx, RunStarted, "run-1", "run", "run-1", EventPayload{"seed": 7}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Append(ctx, tx, RunFailed, "", "run", "", nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	var rows []struct {
		TS      string  `db:"ts"`
		Type    string  `db:"type"`
		RunID   *string `db:"run_id"`
		Payload string  `db:"payload_json"`
	}
	if err := conn.Select(&rows, `SELECT ts,type,run_id,payload_json FROM events ORDER BY id`); err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(rows) != 2 || rows[0].Type != RunStarted || rows[0].TS != "2024-01-02T03:04:05Z" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(rows[0].Payload), &payload); err != nil || payload["seed"] != float64(7) {
		t.Fatalf("payload %q: %v", rows[0].Payload, err)
	}
	if rows[1].RunID != nil || rows[1].Payload != "{}" {
		t.Fatalf("empty values should store as NULL and {}: %+v", rows[1])
	}
}
