package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"siteplan/internal/audit"
	"siteplan/internal/domain"
	"siteplan/internal/engine/auth"
	"siteplan/internal/ids"
	"siteplan/internal/repo"
	"siteplan/internal/schedule"
)

type ProjectInput struct {
	Name        string
	JobNumber   string
	Description string
	StartDate   string
	EndDate     string
	Status      string
	Budget      float64
}

type ProjectUpdate struct {
	ID          string
	Name        *string
	JobNumber   *string
	Description *string
	StartDate   *string
	EndDate     *string
	Status      *string
	Budget      *float64
}

func parseProjectStatus(raw string) (domain.ProjectStatus, error) {
	if raw == "" {
		return domain.ProjectActive, nil
	}
	st, err := domain.ParseProjectStatus(raw)
	if err != nil {
		return "", invalidf("%v", err)
	}
	return st, nil
}

// checkProject enforces the project invariants. Assignments are not
// required to fall inside the project's dates.
func checkProject(p domain.Project) error {
	if strings.TrimSpace(p.Name) == "" {
		return invalidf("project name is required")
	}
	iv, err := schedule.ParseInterval(p.StartDate, p.EndDate)
	if err != nil {
		return invalidf("project dates must be YYYY-MM-DD dates (got %q, %q)", p.StartDate, p.EndDate)
	}
	if iv.Start.After(iv.End) {
		return invalidf("project start %s is after end %s", p.StartDate, p.EndDate)
	}
	return nonNegative("budget", p.Budget)
}

func projectDetails(p domain.Project) audit.Details {
	return audit.Details{"name": p.Name, "start_date": p.StartDate, "end_date": p.EndDate, "status": p.Status}
}

func (e Engine) newProject(in ProjectInput) (domain.Project, error) {
	st, err := parseProjectStatus(in.Status)
	if err != nil {
		return domain.Project{}, err
	}
	p := domain.Project{
		ID:          ids.New(ids.PrefixProject),
		Name:        strings.TrimSpace(in.Name),
		JobNumber:   strings.TrimSpace(in.JobNumber),
		Description: in.Description,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		Status:      st,
		Budget:      in.Budget,
		CreatedAt:   e.timestamp(),
	}
	return p, checkProject(p)
}

func (e Engine) CreateProject(ctx context.Context, actor domain.User, in ProjectInput) (p domain.Project, err error) {
	ctx, span := startSpan(ctx, "CreateProject", actor)
	defer func() { endSpan(span, err) }()

	if err := auth.Require(actor, auth.PermWriteSchedule); err != nil {
		return domain.Project{}, err
	}
	p, err = e.newProject(in)
	if err != nil {
		return domain.Project{}, err
	}
	err = e.inTx(ctx, func(r repo.Repo, tx *sql.Tx) error {
		if err := r.InsertProject(ctx, p); err != nil {
			return err
		}
		return e.record(ctx, tx, actor, audit.ActionCreate, audit.KindProject, p.ID, projectDetails(p))
	})
	if err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (e Engine) UpdateProject(ctx context.Context, actor domain.User, u ProjectUpdate) (p domain.Project, err error) {
	ctx, span := startSpan(ctx, "UpdateProject", actor, attribute.String("project.id", u.ID))
	defer func() { endSpan(span, err) }()

	if err := auth.Require(actor, auth.PermWriteSchedule); err != nil {
		return domain.Project{}, err
	}
	err = e.inTx(ctx, func(r repo.Repo, tx *sql.Tx) error {
		stored, err := r.GetProject(ctx, u.ID)
		if err != nil {
			return err
		}
		p = stored
		if u.Name != nil {
			p.Name = strings.TrimSpace(*u.Name)
		}
		if u.JobNumber != nil {
			p.JobNumber = strings.TrimSpace(*u.JobNumber)
		}
		if u.Description != nil {
			p.Description = *u.Description
		}
		if u.StartDate != nil {
			p.StartDate = *u.StartDate
		}
		if u.EndDate != nil {
			p.EndDate = *u.EndDate
		}
		if u.Status != nil {
			if p.Status, err = parseProjectStatus(*u.Status); err != nil {
				return err
			}
		}
		if u.Budget != nil {
			p.Budget = *u.Budget
		}
		if err := checkProject(p); err != nil {
			return err
		}
		if err := r.UpdateProject(ctx, p); err != nil {
			return err
		}
		return e.record(ctx, tx, actor, audit.ActionUpdate, audit.KindProject, p.ID, audit.Details{
			"before": projectDetails(stored),
			"after":  projectDetails(p),
		})
	})
	if err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// DeleteProject removes the project and, by cascade, its assignments.
func (e Engine) DeleteProject(ctx context.Context, actor domain.User, id string) (err error) {
	ctx, span := startSpan(ctx, "DeleteProject", actor, attribute.String("project.id", id))
	defer func() { endSpan(span, err) }()

	if err := auth.Require(actor, auth.PermWriteSchedule); err != nil {
		return err
	}
	return e.inTx(ctx, func(r repo.Repo, tx *sql.Tx) error {
		stored, err := r.GetProject(ctx, id)
		if err != nil {
			return err
		}
		removed, err := r.ListAssignments(ctx, repo.AssignmentFilters{ProjectID: id})
		if err != nil {
			return err
		}
		if err := r.DeleteProject(ctx, id); err != nil {
			return err
		}
		details := projectDetails(stored)
		details["assignments_removed"] = len(removed)
		return e.record(ctx, tx, actor, audit.ActionDelete, audit.KindProject, id, details)
	})
}

func (e Engine) GetProject(ctx context.Context, actor domain.User, id string) (domain.Project, error) {
	if err := auth.Require(actor, auth.PermRead); err != nil {
		return domain.Project{}, err
	}
	return e.Repo.GetProject(ctx, id)
}

func (e Engine) ListProjects(ctx context.Context, actor domain.User, status string) ([]domain.Project, error) {
	if err := auth.Require(actor, auth.PermRead); err != nil {
		return nil, err
	}
	var f repo.ProjectFilters
	if status != "" {
		st, err := parseProjectStatus(status)
		if err != nil {
			return nil, err
		}
		f.Status = st
	}
	return e.Repo.ListProjects(ctx, f)
}

// StaffInput creates a project and books artisans onto it for the project's
// whole date range.
type StaffInput struct {
	Project     ProjectInput
	ArtisanIDs  []string
	HoursPerDay float64
	// TeamName, when set and more than one artisan is staffed, creates a team
	// and moves the artisans into it.
	TeamName string
}

type StaffResult struct {
	Project     domain.Project      `json:"project"`
	Assignments []domain.Assignment `json:"assignments"`
	Team        *domain.Team        `json:"team,omitempty"`
}

const defaultHoursPerDay = 8

// StaffProject performs the whole staffing in one transaction: any rejected
// assignment leaves nothing behind.
func (e Engine) StaffProject(ctx context.Context, actor domain.User, in StaffInput) (res StaffResult, err error) {
	ctx, span := startSpan(ctx, "StaffProject", actor, attribute.Int("artisans", len(in.ArtisanIDs)))
	defer func() { endSpan(span, err) }()

	if err := auth.Require(actor, auth.PermWriteSchedule); err != nil {
		return StaffResult{}, err
	}
	if len(in.ArtisanIDs) == 0 {
		return StaffResult{}, invalidf("at least one artisan is required")
	}
	seen := map[string]bool{}
	for _, id := range in.ArtisanIDs {
		if seen[id] {
			return StaffResult{}, invalidf("artisan %s listed twice", id)
		}
		seen[id] = true
	}
	hours := in.HoursPerDay
	if hours == 0 {
		hours = defaultHoursPerDay
	}
	p, err := e.newProject(in.Project)
	if err != nil {
		return StaffResult{}, err
	}

	unlock := e.lockArtisans(in.ArtisanIDs...)
	defer unlock()

	err = e.inTx(ctx, func(r repo.Repo, tx *sql.Tx) error {
		if err := r.InsertProject(ctx, p); err != nil {
			return err
		}
		if err := e.record(ctx, tx, actor, audit.ActionCreate, audit.KindProject, p.ID, projectDetails(p)); err != nil {
			return err
		}
		res.Project = p

		if name := strings.TrimSpace(in.TeamName); name != "" && len(in.ArtisanIDs) > 1 {
			t := domain.Team{ID: ids.New(ids.PrefixTeam), Name: name, CreatedAt: p.CreatedAt}
			if err := r.InsertTeam(ctx, t); err != nil {
				return err
			}
			for _, id := range in.ArtisanIDs {
				if err := r.SetArtisanTeam(ctx, id, t.ID); err != nil {
					if errors.Is(err, repo.ErrNotFound) {
						return &schedule.Rejection{Reason: schedule.ReasonUnknownArtisan, Detail: id}
					}
					return err
				}
			}
			if err := e.record(ctx, tx, actor, audit.ActionCreate, audit.KindTeam, t.ID, audit.Details{"name": t.Name, "members": in.ArtisanIDs}); err != nil {
				return err
			}
			res.Team = &t
		}

		for _, artisanID := range in.ArtisanIDs {
			a := domain.Assignment{
				ID:          ids.New(ids.PrefixAssignment),
				ArtisanID:   artisanID,
				ProjectID:   p.ID,
				StartDate:   p.StartDate,
				EndDate:     p.EndDate,
				HoursPerDay: hours,
				Status:      domain.AssignmentPlanned,
				CreatedAt:   p.CreatedAt,
				UpdatedAt:   p.CreatedAt,
			}
			c := schedule.Candidate{ArtisanID: a.ArtisanID, ProjectID: a.ProjectID, StartDate: a.StartDate, EndDate: a.EndDate, HoursPerDay: a.HoursPerDay}
			if err := e.decide(ctx, r, c, ""); err != nil {
				return err
			}
			if err := r.InsertAssignment(ctx, a); err != nil {
				return storageOverlap(err)
			}
			if err := e.record(ctx, tx, actor, audit.ActionStaff, audit.KindAssignment, a.ID, assignmentDetails(a)); err != nil {
				return err
			}
			res.Assignments = append(res.Assignments, a)
		}
		return nil
	})
	if err != nil {
		return StaffResult{}, err
	}
	e.Logger.Info("project staffed", zap.String("project_id", p.ID), zap.Int("assignments", len(res.Assignments)))
	return res, nil
}
