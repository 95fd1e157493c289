package repo

import (
	"context"
	"database/sql"
	"errors"

	"siteplan/internal/domain"
)

const projectColumns = `id,name,job_number,description,start_date,end_date,status,budget,created_at`

type ProjectFilters struct {
	Status domain.ProjectStatus
	// ActiveFrom/ActiveTo keep projects whose date range intersects the window.
	ActiveFrom string
	ActiveTo   string
}

func scanProject(scan func(...any) error) (domain.Project, error) {
	var p domain.Project
	err := scan(&p.ID, &p.Name, &p.JobNumber, &p.Description, &p.StartDate, &p.EndDate, &p.Status, &p.Budget, &p.CreatedAt)
	return p, err
}

func (r Repo) InsertProject(ctx context.Context, p domain.Project) error {
	_, err := r.exec(ctx, `INSERT INTO projects(`+projectColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Name, p.JobNumber, p.Description, p.StartDate, p.EndDate, string(p.Status), p.Budget, p.CreatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	p, err := scanProject(r.q().QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	return p, err
}

// ListProjects orders by start date then name, the order the Gantt chart uses.
func (r Repo) ListProjects(ctx context.Context, f ProjectFilters) ([]domain.Project, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, string(f.Status))
	}
	if f.ActiveTo != "" {
		clauses = append(clauses, "start_date<=?")
		args = append(args, f.ActiveTo)
	}
	if f.ActiveFrom != "" {
		clauses = append(clauses, "end_date>=?")
		args = append(args, f.ActiveFrom)
	}
	rows, err := r.q().QueryContext(ctx, `SELECT `+projectColumns+` FROM projects`+where(clauses)+` ORDER BY start_date, name`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) UpdateProject(ctx context.Context, p domain.Project) error {
	return r.execOne(ctx, `UPDATE projects SET name=?, job_number=?, description=?, start_date=?, end_date=?, status=?, budget=? WHERE id=?`,
		p.Name, p.JobNumber, p.Description, p.StartDate, p.EndDate, string(p.Status), p.Budget, p.ID)
}

func (r Repo) DeleteProject(ctx context.Context, id string) error {
	return r.execOne(ctx, `DELETE FROM projects WHERE id=?`, id)
}

func (r Repo) ProjectExists(ctx context.Context, id string) (bool, error) {
	return r.exists(ctx, "projects", id)
}
