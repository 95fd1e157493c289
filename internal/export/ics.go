package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"siteplan/internal/domain"
	"siteplan/internal/schedule"
)

const productID = "-//siteplan//schedule//EN"

// Calendar is the input of WriteICS. Projects and Artisans are lookups for
// event titles; assignments referencing unknown ids fall back to the id.
type Calendar struct {
	Assignments []domain.Assignment
	Projects    []domain.Project
	Artisans    []domain.Artisan
	// Stamp is written as DTSTAMP on every event.
	Stamp time.Time
}

// WriteICS writes one all-day event per assignment. DTEND is exclusive, so an
// assignment ending on the 10th ends on the 11th in the calendar. Assignments
// with unparsable dates are skipped.
func WriteICS(w io.Writer, c Calendar) (int, error) {
	projects := make(map[string]domain.Project, len(c.Projects))
	for _, p := range c.Projects {
		projects[p.ID] = p
	}
	artisans := make(map[string]domain.Artisan, len(c.Artisans))
	for _, a := range c.Artisans {
		artisans[a.ID] = a
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(productID)

	written := 0
	for _, a := range c.Assignments {
		iv, err := schedule.ParseInterval(a.StartDate, a.EndDate)
		if err != nil {
			continue
		}
		projectName := a.ProjectID
		if p, ok := projects[a.ProjectID]; ok {
			projectName = p.Name
		}
		artisanName := a.ArtisanID
		if ar, ok := artisans[a.ArtisanID]; ok {
			artisanName = ar.Name
		}

		evt := cal.AddEvent(a.ID)
		evt.SetDtStampTime(c.Stamp.UTC())
		evt.SetAllDayStartAt(iv.Start)
		evt.SetAllDayEndAt(iv.End.AddDate(0, 0, 1))
		evt.SetSummary(fmt.Sprintf("%s: %s", projectName, artisanName))
		evt.SetDescription(describe(a))
		if a.Status == domain.AssignmentCancelled {
			evt.SetStatus(ics.ObjectStatusCancelled)
		} else {
			evt.SetStatus(ics.ObjectStatusConfirmed)
		}
		written++
	}
	if _, err := io.WriteString(w, cal.Serialize()); err != nil {
		return 0, err
	}
	return written, nil
}

func describe(a domain.Assignment) string {
	lines := []string{
		fmt.Sprintf("Hours per day: %g", a.HoursPerDay),
		fmt.Sprintf("Status: %s", a.Status),
	}
	if a.Notes != "" {
		lines = append(lines, "Notes: "+a.Notes)
	}
	return strings.Join(lines, "\n")
}
