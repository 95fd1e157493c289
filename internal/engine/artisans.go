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

type ArtisanInput struct {
	Name         string
	TeamID       string
	Skill        string
	Availability string
	HourlyRate   float64
	Email        string
	Phone        string
}

type ArtisanUpdate struct {
	ID   string
	Name *string
	// TeamID set to "" removes the artisan from its team.
	TeamID       *string
	Skill        *string
	Availability *string
	HourlyRate   *float64
	Email        *string
	Phone        *string
}

func parseAvailability(raw string) (domain.Availability, error) {
	if raw == "" {
		return domain.FullTime, nil
	}
	av, err := domain.ParseAvailability(raw)
	if err != nil {
		return "", invalidf("%v", err)
	}
	return av, nil
}

func checkArtisan(a domain.Artisan) error {
	if strings.TrimSpace(a.Name) == "" {
		return invalidf("artisan name is required")
	}
	return nonNegative("hourly_rate", a.HourlyRate)
}

func artisanDetails(a domain.Artisan) audit.Details {
	d := audit.Details{"name": a.Name, "skill": a.Skill, "availability": a.Availability}
	if a.TeamID != nil {
		d["team_id"] = *a.TeamID
	}
	return d
}

func (e Engine) CreateArtisan(ctx context.Context, actor domain.User, in ArtisanInput) (a domain.Artisan, err error) {
	ctx, span := startSpan(ctx, "CreateArtisan", actor)
	defer func() { endSpan(span, err) }()

	if err := auth.Require(actor, auth.PermWriteSchedule); err != nil {
		return domain.Artisan{}, err
	}
	av, err := parseAvailability(in.Availability)
	if err != nil {
		return domain.Artisan{}, err
	}
	a = domain.Artisan{
		ID:           ids.New(ids.PrefixArtisan),
		Name:         strings.TrimSpace(in.Name),
		Skill:        strings.TrimSpace(in.Skill),
		Availability: av,
		HourlyRate:   in.HourlyRate,
		Email:        in.Email,
		Phone:        in.Phone,
		CreatedAt:    e.timestamp(),
	}
	if in.TeamID != "" {
		a.TeamID = &in.TeamID
	}
	if err := checkArtisan(a); err != nil {
		return domain.Artisan{}, err
	}
	err = e.inTx(ctx, func(r repo.Repo, tx *sql.Tx) error {
		if err := r.InsertArtisan(ctx, a); err != nil {
			return err
		}
		return e.record(ctx, tx, actor, audit.ActionCreate, audit.KindArtisan, a.ID, artisanDetails(a))
	})
	if err != nil {
		return domain.Artisan{}, err
	}
	return a, nil
}

func (e Engine) UpdateArtisan(ctx context.Context, actor domain.User, u ArtisanUpdate) (a domain.Artisan, err error) {
	ctx, span := startSpan(ctx, "UpdateArtisan", actor, attribute.String("artisan.id", u.ID))
	defer func() { endSpan(span, err) }()

	if err := auth.Require(actor, auth.PermWriteSchedule); err != nil {
		return domain.Artisan{}, err
	}
	err = e.inTx(ctx, func(r repo.Repo, tx *sql.Tx) error {
		stored, err := r.GetArtisan(ctx, u.ID)
		if err != nil {
			return err
		}
		a = stored
		if u.Name != nil {
			a.Name = strings.TrimSpace(*u.Name)
		}
		if u.TeamID != nil {
			a.TeamID = nil
			if *u.TeamID != "" {
				a.TeamID = u.TeamID
			}
		}
		if u.Skill != nil {
			a.Skill = strings.TrimSpace(*u.Skill)
		}
		if u.Availability != nil {
			if a.Availability, err = parseAvailability(*u.Availability); err != nil {
				return err
			}
		}
		if u.HourlyRate != nil {
			a.HourlyRate = *u.HourlyRate
		}
		if u.Email != nil {
			a.Email = *u.Email
		}
		if u.Phone != nil {
			a.Phone = *u.Phone
		}
		if err := checkArtisan(a); err != nil {
			return err
		}
		if err := r.UpdateArtisan(ctx, a); err != nil {
			return err
		}
		return e.record(ctx, tx, actor, audit.ActionUpdate, audit.KindArtisan, a.ID, artisanDetails(a))
	})
	if err != nil {
		return domain.Artisan{}, err
	}
	return a, nil
}

// DeleteArtisan removes the artisan and, by cascade, all of its assignments.
func (e Engine) DeleteArtisan(ctx context.Context, actor domain.User, id string) (err error) {
	ctx, span := startSpan(ctx, "DeleteArtisan", actor, attribute.String("artisan.id", id))
	defer func() { endSpan(span, err) }()

	if err := auth.Require(actor, auth.PermWriteSchedule); err != nil {
		return err
	}
	unlock := e.lockArtisans(id)
	defer unlock()
	return e.inTx(ctx, func(r repo.Repo, tx *sql.Tx) error {
		stored, err := r.GetArtisan(ctx, id)
		if err != nil {
			return err
		}
		removed, err := r.AssignmentsForArtisan(ctx, id)
		if err != nil {
			return err
		}
		if err := r.DeleteArtisan(ctx, id); err != nil {
			return err
		}
		details := artisanDetails(stored)
		details["assignments_removed"] = len(removed)
		return e.record(ctx, tx, actor, audit.ActionDelete, audit.KindArtisan, id, details)
	})
}

func (e Engine) GetArtisan(ctx context.Context, actor domain.User, id string) (domain.Artisan, error) {
	if err := auth.Require(actor, auth.PermRead); err != nil {
		return domain.Artisan{}, err
	}
	return e.Repo.GetArtisan(ctx, id)
}

// ArtisanQuery filters ListArtisans. Availability is parsed leniently.
type ArtisanQuery struct {
	TeamID       string
	Skill        string
	Availability string
}

func (e Engine) ListArtisans(ctx context.Context, actor domain.User, q ArtisanQuery) ([]domain.Artisan, error) {
	if err := auth.Require(actor, auth.PermRead); err != nil {
		return nil, err
	}
	f := repo.ArtisanFilters{TeamID: q.TeamID, Skill: q.Skill}
	if q.Availability != "" {
		av, err := parseAvailability(q.Availability)
		if err != nil {
			return nil, err
		}
		f.Availability = av
	}
	return e.Repo.ListArtisans(ctx, f)
}
