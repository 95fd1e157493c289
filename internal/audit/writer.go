// Package audit appends rows to the audit log inside the caller's transaction,
// so that an entry exists if and only if the change it describes was committed.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Actions recorded by the engine.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionStaff  = "staff"
	ActionLogin  = "login"
)

// Entity kinds.
const (
	KindTeam       = "team"
	KindArtisan    = "artisan"
	KindProject    = "project"
	KindAssignment = "assignment"
	KindUser       = "user"
)

type Details map[string]any

// Actor identifies who made a change. UserID is empty for system actions
// such as the first-user bootstrap.
type Actor struct {
	UserID   string
	Username string
}

type Writer struct {
	Now func() time.Time
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, actor Actor, action, entityKind, entityID string, details Details) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	if details == nil {
		details = Details{}
	}
	data, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO audit_log(ts,user_id,username,action,entity_kind,entity_id,details_json) VALUES (?,?,?,?,?,?,?)`,
		now().UTC().Format(time.RFC3339), nullable(actor.UserID), actor.Username, action, entityKind, nullable(entityID), string(data))
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
