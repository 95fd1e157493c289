// Package schedule decides whether an assignment may be committed for an
// artisan. Validate is a pure function over its inputs; Check adapts it to a
// read-only Source so callers can plug in any store.
package schedule

import (
	"context"
	"fmt"
	"math"

	"siteplan/internal/domain"
)

const (
	MinHoursPerDay = 1.0
	MaxHoursPerDay = 12.0
)

// Candidate is a proposed assignment, or the merged state of an update.
type Candidate struct {
	ArtisanID   string
	ProjectID   string
	StartDate   string
	EndDate     string
	HoursPerDay float64
}

// Validate runs the checks in a fixed order and returns the first failure as a
// *Rejection, or nil when the candidate is acceptable. existing must hold the
// stored assignments of c.ArtisanID; the one whose ID equals excludingID (the
// assignment being updated) is skipped in the overlap check.
func Validate(c Candidate, existing []domain.Assignment, artisanExists, projectExists bool, excludingID string) error {
	if !artisanExists {
		return reject(ReasonUnknownArtisan, "artisan %q does not exist", c.ArtisanID)
	}
	if !projectExists {
		return reject(ReasonUnknownProject, "project %q does not exist", c.ProjectID)
	}
	start, err := ParseDate(c.StartDate)
	if err != nil {
		return reject(ReasonMalformedDate, "start date %q is not a YYYY-MM-DD date", c.StartDate)
	}
	end, err := ParseDate(c.EndDate)
	if err != nil {
		return reject(ReasonMalformedDate, "end date %q is not a YYYY-MM-DD date", c.EndDate)
	}
	if start.After(end) {
		return reject(ReasonInvertedDateRange, "%s is after %s", c.StartDate, c.EndDate)
	}
	if !HoursInRange(c.HoursPerDay) {
		return reject(ReasonHoursOutOfRange, "%v not in [%v, %v]", c.HoursPerDay, MinHoursPerDay, MaxHoursPerDay)
	}
	if conflicts := Conflicts(Interval{Start: start, End: end}, existing, excludingID); len(conflicts) > 0 {
		return &Rejection{
			Reason:    ReasonOverlappingAssignment,
			Detail:    fmt.Sprintf("%s..%s", c.StartDate, c.EndDate),
			Conflicts: conflicts,
		}
	}
	return nil
}

// HoursInRange reports whether h is a finite value within the daily workload bounds.
func HoursInRange(h float64) bool {
	if math.IsNaN(h) || math.IsInf(h, 0) {
		return false
	}
	return h >= MinHoursPerDay && h <= MaxHoursPerDay
}

// Conflicts returns the IDs of assignments in existing that intersect iv.
// A stored assignment whose dates do not parse counts as a conflict.
func Conflicts(iv Interval, existing []domain.Assignment, excludingID string) []string {
	var ids []string
	for _, a := range existing {
		if excludingID != "" && a.ID == excludingID {
			continue
		}
		other, err := ParseInterval(a.StartDate, a.EndDate)
		if err != nil || iv.Overlaps(other) {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

// Source is the read side of the store the validator depends on.
type Source interface {
	ArtisanExists(ctx context.Context, id string) (bool, error)
	ProjectExists(ctx context.Context, id string) (bool, error)
	AssignmentsForArtisan(ctx context.Context, artisanID string) ([]domain.Assignment, error)
}

// Check fetches what Validate needs from src and validates c. Storage failures
// are returned wrapped; validation failures are returned as *Rejection.
func Check(ctx context.Context, src Source, c Candidate, excludingID string) error {
	artisanOK, err := src.ArtisanExists(ctx, c.ArtisanID)
	if err != nil {
		return fmt.Errorf("lookup artisan: %w", err)
	}
	projectOK, err := src.ProjectExists(ctx, c.ProjectID)
	if err != nil {
		return fmt.Errorf("lookup project: %w", err)
	}
	var existing []domain.Assignment
	if artisanOK {
		existing, err = src.AssignmentsForArtisan(ctx, c.ArtisanID)
		if err != nil {
			return fmt.Errorf("load assignments: %w", err)
		}
	}
	return Validate(c, existing, artisanOK, projectOK, excludingID)
}
