package engine

import (
	"context"
	"database/sql"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"siteplan/internal/audit"
	"siteplan/internal/domain"
	"siteplan/internal/engine/auth"
	"siteplan/internal/ids"
	"siteplan/internal/repo"
)

type TeamInput struct {
	Name        string
	Description string
	ManagerID   string
}

type TeamUpdate struct {
	ID          string
	Name        *string
	Description *string
	// ManagerID set to "" clears the manager.
	ManagerID *string
}

func (e Engine) CreateTeam(ctx context.Context, actor domain.User, in TeamInput) (t domain.Team, err error) {
	ctx, span := startSpan(ctx, "CreateTeam", actor)
	defer func() { endSpan(span, err) }()

	if err := auth.Require(actor, auth.PermWriteSchedule); err != nil {
		return domain.Team{}, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Team{}, invalidf("team name is required")
	}
	t = domain.Team{
		ID:          ids.New(ids.PrefixTeam),
		Name:        name,
		Description: in.Description,
		CreatedAt:   e.timestamp(),
	}
	if in.ManagerID != "" {
		t.ManagerID = &in.ManagerID
	}
	err = e.inTx(ctx, func(r repo.Repo, tx *sql.Tx) error {
		if err := r.InsertTeam(ctx, t); err != nil {
			return err
		}
		return e.record(ctx, tx, actor, audit.ActionCreate, audit.KindTeam, t.ID, audit.Details{"name": t.Name})
	})
	if err != nil {
		return domain.Team{}, err
	}
	return t, nil
}

func (e Engine) UpdateTeam(ctx context.Context, actor domain.User, u TeamUpdate) (t domain.Team, err error) {
	ctx, span := startSpan(ctx, "UpdateTeam", actor, attribute.String("team.id", u.ID))
	defer func() { endSpan(span, err) }()

	if err := auth.Require(actor, auth.PermWriteSchedule); err != nil {
		return domain.Team{}, err
	}
	err = e.inTx(ctx, func(r repo.Repo, tx *sql.Tx) error {
		stored, err := r.GetTeam(ctx, u.ID)
		if err != nil {
			return err
		}
		t = stored
		if u.Name != nil {
			if t.Name = strings.TrimSpace(*u.Name); t.Name == "" {
				return invalidf("team name is required")
			}
		}
		if u.Description != nil {
			t.Description = *u.Description
		}
		if u.ManagerID != nil {
			t.ManagerID = nil
			if *u.ManagerID != "" {
				t.ManagerID = u.ManagerID
			}
		}
		if err := r.UpdateTeam(ctx, t); err != nil {
			return err
		}
		return e.record(ctx, tx, actor, audit.ActionUpdate, audit.KindTeam, t.ID, audit.Details{"name": t.Name})
	})
	if err != nil {
		return domain.Team{}, err
	}
	return t, nil
}

// DeleteTeam removes the team; its artisans stay, with no team.
func (e Engine) DeleteTeam(ctx context.Context, actor domain.User, id string) (err error) {
	ctx, span := startSpan(ctx, "DeleteTeam", actor, attribute.String("team.id", id))
	defer func() { endSpan(span, err) }()

	if err := auth.Require(actor, auth.PermWriteSchedule); err != nil {
		return err
	}
	return e.inTx(ctx, func(r repo.Repo, tx *sql.Tx) error {
		stored, err := r.GetTeam(ctx, id)
		if err != nil {
			return err
		}
		if err := r.DeleteTeam(ctx, id); err != nil {
			return err
		}
		return e.record(ctx, tx, actor, audit.ActionDelete, audit.KindTeam, id, audit.Details{"name": stored.Name})
	})
}

func (e Engine) GetTeam(ctx context.Context, actor domain.User, id string) (domain.Team, error) {
	if err := auth.Require(actor, auth.PermRead); err != nil {
		return domain.Team{}, err
	}
	return e.Repo.GetTeam(ctx, id)
}

func (e Engine) ListTeams(ctx context.Context, actor domain.User) ([]domain.Team, error) {
	if err := auth.Require(actor, auth.PermRead); err != nil {
		return nil, err
	}
	return e.Repo.ListTeams(ctx)
}
