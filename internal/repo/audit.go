package repo

import (
	"context"
	"database/sql"

	"siteplan/internal/domain"
)

type AuditFilters struct {
	EntityKind string
	EntityID   string
	UserID     string
	// Before pages backwards: only entries with id < Before are returned.
	Before int64
	Limit  int
}

// ListAudit returns the newest entries first.
func (r Repo) ListAudit(ctx context.Context, f AuditFilters) ([]domain.AuditEntry, error) {
	var clauses []string
	var args []any
	if f.EntityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, f.EntityKind)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if f.UserID != "" {
		clauses = append(clauses, "user_id=?")
		args = append(args, f.UserID)
	}
	if f.Before > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.Before)
	}
	query := `SELECT id,ts,user_id,username,action,entity_kind,entity_id,details_json FROM audit_log` + where(clauses) + ` ORDER BY id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var userID, entityID sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &userID, &e.Username, &e.Action, &e.EntityKind, &entityID, &e.Details); err != nil {
			return nil, err
		}
		e.UserID = userID.String
		e.EntityID = entityID.String
		res = append(res, e)
	}
	return res, rows.Err()
}
