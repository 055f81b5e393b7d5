package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types appended by the engine.
const (
	TaskCreated      = "task.created"
	TaskUpdated      = "task.updated"
	TaskStageChanged = "task.stage_changed"
	TaskArchived     = "task.archived"
	TaskRestored     = "task.restored"
	TaskSubscribed   = "task.subscribed"
	TaskOverdue      = "task.overdue"
	SubtaskAdded     = "subtask.added"
	SubtaskUpdated   = "subtask.updated"
	SubtaskDeleted   = "subtask.deleted"
	TimeLogged       = "timelog.created"
	TimeLogUpdated   = "timelog.updated"
	TimeLogDeleted   = "timelog.deleted"
	StageKindChanged = "stage.kind_changed"
	TeamCreated      = "team.created"
	TeamUpdated      = "team.updated"
	UserCreated      = "user.created"
	UserUpdated      = "user.updated"
	APIKeyCreated    = "apikey.created"
	APIKeyRevoked    = "apikey.revoked"
	RecurrenceSet    = "recurrence.set"
	RecurrenceEnded  = "recurrence.deleted"
	TaskRecurred     = "task.recurred"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append records an event inside the caller's transaction so it commits or
// rolls back with the write it describes.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
