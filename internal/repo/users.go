package repo

import (
	"context"
	"database/sql"
	"errors"

	"siteplan/internal/domain"
)

const userColumns = `id,username,password_hash,role,created_at`

func scanUser(scan func(...any) error) (domain.User, error) {
	var u domain.User
	err := scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt)
	return u, err
}

func (r Repo) InsertUser(ctx context.Context, u domain.User) error {
	_, err := r.exec(ctx, `INSERT INTO users(`+userColumns+`) VALUES (?,?,?,?,?)`,
		u.ID, u.Username, u.PasswordHash, string(u.Role), u.CreatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	u, err := scanUser(r.q().QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}
	return u, err
}

func (r Repo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	u, err := scanUser(r.q().QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username=?`, username).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}
	return u, err
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.q().QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r Repo) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := r.q().QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

func (r Repo) CountUsersWithRole(ctx context.Context, role domain.Role) (int, error) {
	var n int
	err := r.q().QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE role=?`, string(role)).Scan(&n)
	return n, err
}

func (r Repo) UpdateUser(ctx context.Context, u domain.User) error {
	return r.execOne(ctx, `UPDATE users SET username=?, password_hash=?, role=? WHERE id=?`,
		u.Username, u.PasswordHash, string(u.Role), u.ID)
}

func (r Repo) DeleteUser(ctx context.Context, id string) error {
	return r.execOne(ctx, `DELETE FROM users WHERE id=?`, id)
}
