package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Run lifecycle event types.
const (
	RunStarted   = "run.started"
	RunCompleted = "run.completed"
	RunFailed    = "run.failed"
	ArtifactPut  = "artifact.stored"
)

// Types lists every event type the webhook dispatcher may deliver.
var Types = []string{RunStarted, RunCompleted, RunFailed, ArtifactPut}

type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

// Append inserts one event inside tx.
func (w Writer) Append(ctx context.Context, tx *sqlx.Tx, evtType, runID, entityKind, entityID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339Nano)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO events(ts,type,run_id,entity_kind,entity_id,payload_json) VALUES (?,?,?,?,?,?)`),
		ts, evtType, nullable(runID), entityKind, nullable(entityID), string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
