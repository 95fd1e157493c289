package engine

import (
	"context"
	"database/sql"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"siteplan/internal/audit"
	"siteplan/internal/domain"
	"siteplan/internal/engine/auth"
	"siteplan/internal/ids"
	"siteplan/internal/obs"
	"siteplan/internal/repo"
	"siteplan/internal/schedule"
)

// AssignmentInput describes a new assignment. Status is parsed leniently
// ("in_progress" and "In Progress" both work) and defaults to Planned.
type AssignmentInput struct {
	ArtisanID      string
	ProjectID      string
	StartDate      string
	EndDate        string
	HoursPerDay    float64
	CompletedHours float64
	Notes          string
	Status         string
	Priority       int
}

func (in AssignmentInput) candidate() schedule.Candidate {
	return schedule.Candidate{
		ArtisanID:   in.ArtisanID,
		ProjectID:   in.ProjectID,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		HoursPerDay: in.HoursPerDay,
	}
}

// AssignmentUpdate changes the non-nil fields of assignment ID.
type AssignmentUpdate struct {
	ID             string
	ArtisanID      *string
	ProjectID      *string
	StartDate      *string
	EndDate        *string
	HoursPerDay    *float64
	CompletedHours *float64
	Notes          *string
	Status         *string
	Priority       *int
}

func (u AssignmentUpdate) apply(a domain.Assignment) (domain.Assignment, error) {
	if u.ArtisanID != nil {
		a.ArtisanID = *u.ArtisanID
	}
	if u.ProjectID != nil {
		a.ProjectID = *u.ProjectID
	}
	if u.StartDate != nil {
		a.StartDate = *u.StartDate
	}
	if u.EndDate != nil {
		a.EndDate = *u.EndDate
	}
	if u.HoursPerDay != nil {
		a.HoursPerDay = *u.HoursPerDay
	}
	if u.CompletedHours != nil {
		a.CompletedHours = *u.CompletedHours
	}
	if u.Notes != nil {
		a.Notes = *u.Notes
	}
	if u.Status != nil {
		st, err := parseAssignmentStatus(*u.Status)
		if err != nil {
			return a, err
		}
		a.Status = st
	}
	if u.Priority != nil {
		a.Priority = *u.Priority
	}
	return a, nil
}

func parseAssignmentStatus(raw string) (domain.AssignmentStatus, error) {
	if raw == "" {
		return domain.AssignmentPlanned, nil
	}
	st, err := domain.ParseAssignmentStatus(raw)
	if err != nil {
		return "", invalidf("%v", err)
	}
	return st, nil
}

func (e Engine) lockArtisans(ids ...string) func() {
	if e.locks == nil {
		return func() {}
	}
	return e.locks.Lock(ids...)
}

// decide runs the validator against the transaction's view of the store and
// records the outcome.
func (e Engine) decide(ctx context.Context, r repo.Repo, c schedule.Candidate, excludingID string) error {
	err := schedule.Check(ctx, r, c, excludingID)
	e.observeDecision(c, err)
	return err
}

func (e Engine) observeDecision(c schedule.Candidate, err error) {
	if err == nil {
		obs.RecordDecision(obs.ResultAccepted, "")
		return
	}
	if rej, ok := schedule.AsRejection(err); ok {
		obs.RecordDecision(obs.ResultRejected, string(rej.Reason))
		e.Logger.Info("assignment rejected",
			zap.String("artisan_id", c.ArtisanID),
			zap.String("project_id", c.ProjectID),
			zap.String("reason", string(rej.Reason)),
			zap.Strings("conflicts", rej.Conflicts))
		return
	}
	obs.RecordDecision(obs.ResultError, "")
	e.Logger.Error("assignment validation failed", zap.String("artisan_id", c.ArtisanID), zap.Error(err))
}

// storageOverlap converts the storage trigger's overlap error into the same
// rejection the validator produces.
func storageOverlap(err error) error {
	if errors.Is(err, repo.ErrOverlap) {
		return &schedule.Rejection{Reason: schedule.ReasonOverlappingAssignment, Detail: "rejected by storage"}
	}
	return err
}

// CreateAssignment validates and stores a new assignment. It is the single
// entry point for assignment writes: the result is either the stored
// assignment or a *schedule.Rejection, and nothing is written on failure.
func (e Engine) CreateAssignment(ctx context.Context, actor domain.User, in AssignmentInput) (a domain.Assignment, err error) {
	ctx, span := startSpan(ctx, "CreateAssignment", actor,
		attribute.String("artisan.id", in.ArtisanID), attribute.String("project.id", in.ProjectID))
	defer func() { endSpan(span, err) }()

	if err := auth.Require(actor, auth.PermWriteSchedule); err != nil {
		return domain.Assignment{}, err
	}
	status, err := parseAssignmentStatus(in.Status)
	if err != nil {
		return domain.Assignment{}, err
	}
	if err := nonNegative("completed_hours", in.CompletedHours); err != nil {
		return domain.Assignment{}, err
	}

	unlock := e.lockArtisans(in.ArtisanID)
	defer unlock()

	now := e.timestamp()
	a = domain.Assignment{
		ID:             ids.New(ids.PrefixAssignment),
		ArtisanID:      in.ArtisanID,
		ProjectID:      in.ProjectID,
		StartDate:      in.StartDate,
		EndDate:        in.EndDate,
		HoursPerDay:    in.HoursPerDay,
		CompletedHours: in.CompletedHours,
		Notes:          in.Notes,
		Status:         status,
		Priority:       in.Priority,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err = e.inTx(ctx, func(r repo.Repo, tx *sql.Tx) error {
		if err := e.decide(ctx, r, in.candidate(), ""); err != nil {
			return err
		}
		if err := r.InsertAssignment(ctx, a); err != nil {
			return storageOverlap(err)
		}
		return e.record(ctx, tx, actor, audit.ActionCreate, audit.KindAssignment, a.ID, assignmentDetails(a))
	})
	if err != nil {
		return domain.Assignment{}, err
	}
	e.Logger.Info("assignment created",
		zap.String("id", a.ID), zap.String("artisan_id", a.ArtisanID), zap.String("project_id", a.ProjectID),
		zap.String("start", a.StartDate), zap.String("end", a.EndDate))
	return a, nil
}

// CheckAssignment is a dry run of CreateAssignment (or of an update when
// excludingID is set). It writes nothing.
func (e Engine) CheckAssignment(ctx context.Context, actor domain.User, in AssignmentInput, excludingID string) (err error) {
	ctx, span := startSpan(ctx, "CheckAssignment", actor, attribute.String("artisan.id", in.ArtisanID))
	defer func() { endSpan(span, err) }()

	if err := auth.Require(actor, auth.PermRead); err != nil {
		return err
	}
	return e.decide(ctx, e.Repo, in.candidate(), excludingID)
}

// UpdateAssignment merges u onto the stored assignment and re-validates the
// result, excluding the assignment itself from the overlap check. Moving an
// assignment to another artisan locks both artisans.
func (e Engine) UpdateAssignment(ctx context.Context, actor domain.User, u AssignmentUpdate) (a domain.Assignment, err error) {
	ctx, span := startSpan(ctx, "UpdateAssignment", actor, attribute.String("assignment.id", u.ID))
	defer func() { endSpan(span, err) }()

	if err := auth.Require(actor, auth.PermWriteSchedule); err != nil {
		return domain.Assignment{}, err
	}
	if u.CompletedHours != nil {
		if err := nonNegative("completed_hours", *u.CompletedHours); err != nil {
			return domain.Assignment{}, err
		}
	}

	current, err := e.Repo.GetAssignment(ctx, u.ID)
	if err != nil {
		return domain.Assignment{}, err
	}
	for {
		target := current.ArtisanID
		if u.ArtisanID != nil {
			target = *u.ArtisanID
		}
		unlock := e.lockArtisans(current.ArtisanID, target)
		var retry bool
		err = e.inTx(ctx, func(r repo.Repo, tx *sql.Tx) error {
			stored, err := r.GetAssignment(ctx, u.ID)
			if err != nil {
				return err
			}
			if stored.ArtisanID != current.ArtisanID {
				// moved by someone else between the read and the lock
				current, retry = stored, true
				return nil
			}
			merged, err := u.apply(stored)
			if err != nil {
				return err
			}
			c := schedule.Candidate{
				ArtisanID:   merged.ArtisanID,
				ProjectID:   merged.ProjectID,
				StartDate:   merged.StartDate,
				EndDate:     merged.EndDate,
				HoursPerDay: merged.HoursPerDay,
			}
			if err := e.decide(ctx, r, c, merged.ID); err != nil {
				return err
			}
			merged.UpdatedAt = e.timestamp()
			if err := r.UpdateAssignment(ctx, merged); err != nil {
				return storageOverlap(err)
			}
			a = merged
			return e.record(ctx, tx, actor, audit.ActionUpdate, audit.KindAssignment, merged.ID, audit.Details{
				"before": assignmentDetails(stored),
				"after":  assignmentDetails(merged),
			})
		})
		unlock()
		if err != nil {
			return domain.Assignment{}, err
		}
		if !retry {
			break
		}
	}
	e.Logger.Info("assignment updated", zap.String("id", a.ID), zap.String("artisan_id", a.ArtisanID))
	return a, nil
}

func (e Engine) DeleteAssignment(ctx context.Context, actor domain.User, id string) (err error) {
	ctx, span := startSpan(ctx, "DeleteAssignment", actor, attribute.String("assignment.id", id))
	defer func() { endSpan(span, err) }()

	if err := auth.Require(actor, auth.PermWriteSchedule); err != nil {
		return err
	}
	err = e.inTx(ctx, func(r repo.Repo, tx *sql.Tx) error {
		stored, err := r.GetAssignment(ctx, id)
		if err != nil {
			return err
		}
		if err := r.DeleteAssignment(ctx, id); err != nil {
			return err
		}
		return e.record(ctx, tx, actor, audit.ActionDelete, audit.KindAssignment, id, assignmentDetails(stored))
	})
	if err != nil {
		return err
	}
	e.Logger.Info("assignment deleted", zap.String("id", id))
	return nil
}

func (e Engine) GetAssignment(ctx context.Context, actor domain.User, id string) (domain.Assignment, error) {
	if err := auth.Require(actor, auth.PermRead); err != nil {
		return domain.Assignment{}, err
	}
	return e.Repo.GetAssignment(ctx, id)
}

// AssignmentQuery filters ListAssignments. Status is parsed leniently.
type AssignmentQuery struct {
	ArtisanID string
	ProjectID string
	Status    string
	From      string
	To        string
}

func (e Engine) ListAssignments(ctx context.Context, actor domain.User, q AssignmentQuery) ([]domain.Assignment, error) {
	if err := auth.Require(actor, auth.PermRead); err != nil {
		return nil, err
	}
	f := repo.AssignmentFilters{ArtisanID: q.ArtisanID, ProjectID: q.ProjectID}
	if q.Status != "" {
		st, err := parseAssignmentStatus(q.Status)
		if err != nil {
			return nil, err
		}
		f.Status = st
	}
	for _, d := range []string{q.From, q.To} {
		if d == "" {
			continue
		}
		if _, err := schedule.ParseDate(d); err != nil {
			return nil, invalidf("date %q is not a YYYY-MM-DD date", d)
		}
	}
	f.From, f.To = q.From, q.To
	return e.Repo.ListAssignments(ctx, f)
}

func assignmentDetails(a domain.Assignment) audit.Details {
	return audit.Details{
		"artisan_id":    a.ArtisanID,
		"project_id":    a.ProjectID,
		"start_date":    a.StartDate,
		"end_date":      a.EndDate,
		"hours_per_day": a.HoursPerDay,
		"status":        a.Status,
	}
}
