package repo

import (
	"context"
	"database/sql"
	"errors"

	"siteplan/internal/domain"
)

const teamColumns = `id,name,description,manager_id,created_at`

func scanTeam(scan func(...any) error) (domain.Team, error) {
	var t domain.Team
	var manager sql.NullString
	if err := scan(&t.ID, &t.Name, &t.Description, &manager, &t.CreatedAt); err != nil {
		return t, err
	}
	t.ManagerID = stringPtr(manager)
	return t, nil
}

func (r Repo) InsertTeam(ctx context.Context, t domain.Team) error {
	_, err := r.exec(ctx, `INSERT INTO teams(`+teamColumns+`) VALUES (?,?,?,?,?)`,
		t.ID, t.Name, t.Description, nullableStringPtr(t.ManagerID), t.CreatedAt)
	return err
}

func (r Repo) GetTeam(ctx context.Context, id string) (domain.Team, error) {
	t, err := scanTeam(r.q().QueryRowContext(ctx, `SELECT `+teamColumns+` FROM teams WHERE id=?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) GetTeamByName(ctx context.Context, name string) (domain.Team, error) {
	t, err := scanTeam(r.q().QueryRowContext(ctx, `SELECT `+teamColumns+` FROM teams WHERE name=?`, name).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) ListTeams(ctx context.Context) ([]domain.Team, error) {
	rows, err := r.q().QueryContext(ctx, `SELECT `+teamColumns+` FROM teams ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Team
	for rows.Next() {
		t, err := scanTeam(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) UpdateTeam(ctx context.Context, t domain.Team) error {
	return r.execOne(ctx, `UPDATE teams SET name=?, description=?, manager_id=? WHERE id=?`,
		t.Name, t.Description, nullableStringPtr(t.ManagerID), t.ID)
}

func (r Repo) DeleteTeam(ctx context.Context, id string) error {
	return r.execOne(ctx, `DELETE FROM teams WHERE id=?`, id)
}
