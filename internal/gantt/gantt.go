// Package gantt turns projects and assignments into timeline rows for a
// fixed window of days. It draws nothing; front-ends render the Chart.
package gantt

import (
	"sort"
	"time"

	"siteplan/internal/domain"
	"siteplan/internal/schedule"
)

const (
	DefaultDays = 42
	NoTeam      = "No Team"
)

// Palette assigns row colours in order, wrapping around.
var Palette = []string{
	"#FF6347", "#4682B4", "#32CD32", "#FFD700", "#6A5ACD", "#FF4500",
	"#20B2AA", "#DAA520", "#9932CC", "#00CED1", "#FF69B4", "#8B008B",
	"#00FF7F", "#B22222", "#7FFF00", "#DC143C", "#00FA9A", "#4169E1",
	"#FF1493", "#ADFF2F", "#FF8C00", "#8A2BE2", "#228B22", "#FF00FF",
	"#1E90FF", "#FF4040", "#2E8B57", "#BA55D3", "#00BFFF", "#FF7F50",
}

// Window is a run of consecutive calendar days starting at Start.
type Window struct {
	Start time.Time
	Days  int
}

// NewWindow truncates start to a calendar day. days <= 0 means DefaultDays.
func NewWindow(start time.Time, days int) Window {
	if days <= 0 {
		days = DefaultDays
	}
	y, m, d := start.Date()
	return Window{Start: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), Days: days}
}

// End is the last day inside the window.
func (w Window) End() time.Time { return w.Start.AddDate(0, 0, w.Days-1) }

func (w Window) Next() Window { return Window{Start: w.Start.AddDate(0, 0, w.Days), Days: w.Days} }

func (w Window) Prev() Window { return Window{Start: w.Start.AddDate(0, 0, -w.Days), Days: w.Days} }

func (w Window) Interval() schedule.Interval {
	return schedule.Interval{Start: w.Start, End: w.End()}
}

type Day struct {
	Date    string `json:"date" format:"date"`
	Weekday string `json:"weekday"`
	Weekend bool   `json:"weekend"`
	Holiday bool   `json:"holiday"`
}

// Bar is one assignment clipped to the window. Offset is the index of its
// first visible day; Span counts visible days.
type Bar struct {
	AssignmentID string                  `json:"assignment_id"`
	ArtisanID    string                  `json:"artisan_id"`
	ArtisanName  string                  `json:"artisan_name"`
	StartDate    string                  `json:"start_date" format:"date"`
	EndDate      string                  `json:"end_date" format:"date"`
	HoursPerDay  float64                 `json:"hours_per_day"`
	Status       domain.AssignmentStatus `json:"status"`
	Offset       int                     `json:"offset"`
	Span         int                     `json:"span"`
	ClippedStart bool                    `json:"clipped_start,omitempty"`
	ClippedEnd   bool                    `json:"clipped_end,omitempty"`
}

type Row struct {
	ProjectID   string `json:"project_id"`
	ProjectName string `json:"project_name"`
	JobNumber   string `json:"job_number,omitempty"`
	StartDate   string `json:"start_date" format:"date"`
	EndDate     string `json:"end_date" format:"date"`
	Team        string `json:"team"`
	Color       string `json:"color"`
	Bars        []Bar  `json:"bars"`
}

type Chart struct {
	From string `json:"from" format:"date"`
	To   string `json:"to" format:"date"`
	Days []Day  `json:"days"`
	Rows []Row  `json:"rows"`
}

// Data is everything Build reads. Assignments outside the window and
// non-active projects are ignored, so callers may pass supersets.
type Data struct {
	Projects    []domain.Project
	Assignments []domain.Assignment
	Artisans    []domain.Artisan
	Teams       []domain.Team
}

// Build lays out the chart. Rows are active projects with at least one
// assignment in the window, ordered by project start date then name. Each
// row is labelled with the team of its earliest assignment's artisan.
func Build(w Window, d Data, holidays map[string]bool) Chart {
	chart := Chart{
		From: schedule.FormatDate(w.Start),
		To:   schedule.FormatDate(w.End()),
		Days: make([]Day, 0, w.Days),
		Rows: []Row{},
	}
	for i := 0; i < w.Days; i++ {
		day := w.Start.AddDate(0, 0, i)
		date := schedule.FormatDate(day)
		wd := day.Weekday()
		chart.Days = append(chart.Days, Day{
			Date:    date,
			Weekday: wd.String()[:2],
			Weekend: wd == time.Saturday || wd == time.Sunday,
			Holiday: holidays[date],
		})
	}

	artisans := make(map[string]domain.Artisan, len(d.Artisans))
	for _, a := range d.Artisans {
		artisans[a.ID] = a
	}
	teams := make(map[string]string, len(d.Teams))
	for _, t := range d.Teams {
		teams[t.ID] = t.Name
	}

	byProject := make(map[string][]Bar)
	window := w.Interval()
	for _, a := range d.Assignments {
		iv, err := schedule.ParseInterval(a.StartDate, a.EndDate)
		if err != nil || !iv.Overlaps(window) {
			continue
		}
		byProject[a.ProjectID] = append(byProject[a.ProjectID], clip(w, iv, a, artisans[a.ArtisanID]))
	}

	projects := make([]domain.Project, 0, len(d.Projects))
	for _, p := range d.Projects {
		if p.Status == domain.ProjectActive && len(byProject[p.ID]) > 0 {
			projects = append(projects, p)
		}
	}
	sort.SliceStable(projects, func(i, j int) bool {
		if projects[i].StartDate != projects[j].StartDate {
			return projects[i].StartDate < projects[j].StartDate
		}
		return projects[i].Name < projects[j].Name
	})

	for i, p := range projects {
		bars := byProject[p.ID]
		sort.SliceStable(bars, func(a, b int) bool {
			if bars[a].StartDate != bars[b].StartDate {
				return bars[a].StartDate < bars[b].StartDate
			}
			return bars[a].AssignmentID < bars[b].AssignmentID
		})
		chart.Rows = append(chart.Rows, Row{
			ProjectID:   p.ID,
			ProjectName: p.Name,
			JobNumber:   p.JobNumber,
			StartDate:   p.StartDate,
			EndDate:     p.EndDate,
			Team:        teamOf(artisans[bars[0].ArtisanID], teams),
			Color:       Palette[i%len(Palette)],
			Bars:        bars,
		})
	}
	return chart
}

func clip(w Window, iv schedule.Interval, a domain.Assignment, artisan domain.Artisan) Bar {
	start, end := iv.Start, iv.End
	bar := Bar{
		AssignmentID: a.ID,
		ArtisanID:    a.ArtisanID,
		ArtisanName:  artisan.Name,
		StartDate:    a.StartDate,
		EndDate:      a.EndDate,
		HoursPerDay:  a.HoursPerDay,
		Status:       a.Status,
	}
	if start.Before(w.Start) {
		start = w.Start
		bar.ClippedStart = true
	}
	if end.After(w.End()) {
		end = w.End()
		bar.ClippedEnd = true
	}
	bar.Offset = schedule.Interval{Start: w.Start, End: start}.Days() - 1
	bar.Span = schedule.Interval{Start: start, End: end}.Days()
	return bar
}

func teamOf(a domain.Artisan, teams map[string]string) string {
	if a.TeamID == nil {
		return NoTeam
	}
	if name, ok := teams[*a.TeamID]; ok && name != "" {
		return name
	}
	return NoTeam
}
