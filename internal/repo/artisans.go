package repo

import (
	"context"
	"database/sql"
	"errors"

	"siteplan/internal/domain"
)

const artisanColumns = `id,name,team_id,skill,availability,hourly_rate,email,phone,created_at`

type ArtisanFilters struct {
	TeamID       string
	Skill        string
	Availability domain.Availability
}

func scanArtisan(scan func(...any) error) (domain.Artisan, error) {
	var a domain.Artisan
	var team sql.NullString
	if err := scan(&a.ID, &a.Name, &team, &a.Skill, &a.Availability, &a.HourlyRate, &a.Email, &a.Phone, &a.CreatedAt); err != nil {
		return a, err
	}
	a.TeamID = stringPtr(team)
	return a, nil
}

func (r Repo) InsertArtisan(ctx context.Context, a domain.Artisan) error {
	_, err := r.exec(ctx, `INSERT INTO artisans(`+artisanColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		a.ID, a.Name, nullableStringPtr(a.TeamID), a.Skill, string(a.Availability), a.HourlyRate, a.Email, a.Phone, a.CreatedAt)
	return err
}

func (r Repo) GetArtisan(ctx context.Context, id string) (domain.Artisan, error) {
	a, err := scanArtisan(r.q().QueryRowContext(ctx, `SELECT `+artisanColumns+` FROM artisans WHERE id=?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return a, ErrNotFound
	}
	return a, err
}

func (r Repo) ListArtisans(ctx context.Context, f ArtisanFilters) ([]domain.Artisan, error) {
	var clauses []string
	var args []any
	if f.TeamID != "" {
		clauses = append(clauses, "team_id=?")
		args = append(args, f.TeamID)
	}
	if f.Skill != "" {
		clauses = append(clauses, "skill=? COLLATE NOCASE")
		args = append(args, f.Skill)
	}
	if f.Availability != "" {
		clauses = append(clauses, "availability=?")
		args = append(args, string(f.Availability))
	}
	rows, err := r.q().QueryContext(ctx, `SELECT `+artisanColumns+` FROM artisans`+where(clauses)+` ORDER BY name, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Artisan
	for rows.Next() {
		a, err := scanArtisan(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) UpdateArtisan(ctx context.Context, a domain.Artisan) error {
	return r.execOne(ctx, `UPDATE artisans SET name=?, team_id=?, skill=?, availability=?, hourly_rate=?, email=?, phone=? WHERE id=?`,
		a.Name, nullableStringPtr(a.TeamID), a.Skill, string(a.Availability), a.HourlyRate, a.Email, a.Phone, a.ID)
}

// SetArtisanTeam moves an artisan into teamID, or out of any team when teamID is empty.
func (r Repo) SetArtisanTeam(ctx context.Context, artisanID, teamID string) error {
	return r.execOne(ctx, `UPDATE artisans SET team_id=? WHERE id=?`, nullable(teamID), artisanID)
}

func (r Repo) DeleteArtisan(ctx context.Context, id string) error {
	return r.execOne(ctx, `DELETE FROM artisans WHERE id=?`, id)
}

func (r Repo) ArtisanExists(ctx context.Context, id string) (bool, error) {
	return r.exists(ctx, "artisans", id)
}
