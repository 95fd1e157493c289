package engine

import (
	"context"
	"io"
	"time"

	"siteplan/internal/domain"
	"siteplan/internal/engine/auth"
	"siteplan/internal/export"
	"siteplan/internal/gantt"
	"siteplan/internal/repo"
	"siteplan/internal/schedule"
)

// Gantt builds chart data for the window starting at from. days <= 0 uses
// the configured window length.
func (e Engine) Gantt(ctx context.Context, actor domain.User, from time.Time, days int) (gantt.Chart, error) {
	if err := auth.Require(actor, auth.PermRead); err != nil {
		return gantt.Chart{}, err
	}
	if days <= 0 {
		days = e.Config.Schedule.WindowDays
	}
	w := gantt.NewWindow(from, days)
	data, err := e.ganttData(ctx, w)
	if err != nil {
		return gantt.Chart{}, err
	}
	return gantt.Build(w, data, e.Config.HolidaySet()), nil
}

func (e Engine) ganttData(ctx context.Context, w gantt.Window) (gantt.Data, error) {
	from, to := schedule.FormatDate(w.Start), schedule.FormatDate(w.End())
	var d gantt.Data
	var err error
	if d.Projects, err = e.Repo.ListProjects(ctx, repo.ProjectFilters{Status: domain.ProjectActive}); err != nil {
		return d, err
	}
	if d.Assignments, err = e.Repo.ListAssignments(ctx, repo.AssignmentFilters{From: from, To: to}); err != nil {
		return d, err
	}
	if d.Artisans, err = e.Repo.ListArtisans(ctx, repo.ArtisanFilters{}); err != nil {
		return d, err
	}
	if d.Teams, err = e.Repo.ListTeams(ctx); err != nil {
		return d, err
	}
	return d, nil
}

// ExportXLSX writes the Gantt window as a spreadsheet.
func (e Engine) ExportXLSX(ctx context.Context, actor domain.User, w io.Writer, from time.Time, days int) error {
	chart, err := e.Gantt(ctx, actor, from, days)
	if err != nil {
		return err
	}
	return export.WriteXLSX(w, chart)
}

// ExportICS writes assignments, optionally for one artisan, as an
// iCalendar feed and returns the number of events.
func (e Engine) ExportICS(ctx context.Context, actor domain.User, w io.Writer, artisanID string) (int, error) {
	if err := auth.Require(actor, auth.PermRead); err != nil {
		return 0, err
	}
	assignments, err := e.Repo.ListAssignments(ctx, repo.AssignmentFilters{ArtisanID: artisanID})
	if err != nil {
		return 0, err
	}
	projects, err := e.Repo.ListProjects(ctx, repo.ProjectFilters{})
	if err != nil {
		return 0, err
	}
	artisans, err := e.Repo.ListArtisans(ctx, repo.ArtisanFilters{})
	if err != nil {
		return 0, err
	}
	return export.WriteICS(w, export.Calendar{
		Assignments: assignments,
		Projects:    projects,
		Artisans:    artisans,
		Stamp:       e.now(),
	})
}

func (e Engine) ListAudit(ctx context.Context, actor domain.User, f repo.AuditFilters) ([]domain.AuditEntry, error) {
	if err := auth.Require(actor, auth.PermReadAudit); err != nil {
		return nil, err
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 50
	}
	return e.Repo.ListAudit(ctx, f)
}
