package repo

import (
	"context"
	"database/sql"
	"errors"

	"siteplan/internal/domain"
)

const assignmentColumns = `id,artisan_id,project_id,start_date,end_date,hours_per_day,completed_hours,notes,status,priority,created_at,updated_at`

type AssignmentFilters struct {
	ArtisanID string
	ProjectID string
	Status    domain.AssignmentStatus
	// From/To keep assignments that intersect the inclusive window.
	From string
	To   string
}

func scanAssignment(scan func(...any) error) (domain.Assignment, error) {
	var a domain.Assignment
	err := scan(&a.ID, &a.ArtisanID, &a.ProjectID, &a.StartDate, &a.EndDate, &a.HoursPerDay,
		&a.CompletedHours, &a.Notes, &a.Status, &a.Priority, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r Repo) InsertAssignment(ctx context.Context, a domain.Assignment) error {
	_, err := r.exec(ctx, `INSERT INTO assignments(`+assignmentColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.ArtisanID, a.ProjectID, a.StartDate, a.EndDate, a.HoursPerDay,
		a.CompletedHours, a.Notes, string(a.Status), a.Priority, a.CreatedAt, a.UpdatedAt)
	return err
}

func (r Repo) GetAssignment(ctx context.Context, id string) (domain.Assignment, error) {
	a, err := scanAssignment(r.q().QueryRowContext(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE id=?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return a, ErrNotFound
	}
	return a, err
}

func (r Repo) ListAssignments(ctx context.Context, f AssignmentFilters) ([]domain.Assignment, error) {
	var clauses []string
	var args []any
	if f.ArtisanID != "" {
		clauses = append(clauses, "artisan_id=?")
		args = append(args, f.ArtisanID)
	}
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, string(f.Status))
	}
	if f.To != "" {
		clauses = append(clauses, "start_date<=?")
		args = append(args, f.To)
	}
	if f.From != "" {
		clauses = append(clauses, "end_date>=?")
		args = append(args, f.From)
	}
	rows, err := r.q().QueryContext(ctx, `SELECT `+assignmentColumns+` FROM assignments`+where(clauses)+` ORDER BY start_date, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// AssignmentsForArtisan returns every stored assignment of the artisan.
func (r Repo) AssignmentsForArtisan(ctx context.Context, artisanID string) ([]domain.Assignment, error) {
	return r.ListAssignments(ctx, AssignmentFilters{ArtisanID: artisanID})
}

func (r Repo) UpdateAssignment(ctx context.Context, a domain.Assignment) error {
	return r.execOne(ctx, `UPDATE assignments SET artisan_id=?, project_id=?, start_date=?, end_date=?, hours_per_day=?, completed_hours=?, notes=?, status=?, priority=?, updated_at=? WHERE id=?`,
		a.ArtisanID, a.ProjectID, a.StartDate, a.EndDate, a.HoursPerDay, a.CompletedHours, a.Notes, string(a.Status), a.Priority, a.UpdatedAt, a.ID)
}

func (r Repo) DeleteAssignment(ctx context.Context, id string) error {
	return r.execOne(ctx, `DELETE FROM assignments WHERE id=?`, id)
}
