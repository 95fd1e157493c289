package domain

import (
	"fmt"
	"strings"
)

type Availability string

const (
	FullTime Availability = "Full-time"
	PartTime Availability = "Part-time"
	OnCall   Availability = "On-call"
)

var Availabilities = []Availability{FullTime, PartTime, OnCall}

type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "Active"
	ProjectPending   ProjectStatus = "Pending"
	ProjectCompleted ProjectStatus = "Completed"
	ProjectCancelled ProjectStatus = "Cancelled"
)

var ProjectStatuses = []ProjectStatus{ProjectActive, ProjectPending, ProjectCompleted, ProjectCancelled}

type AssignmentStatus string

const (
	AssignmentPlanned    AssignmentStatus = "Planned"
	AssignmentInProgress AssignmentStatus = "In Progress"
	AssignmentCompleted  AssignmentStatus = "Completed"
	AssignmentCancelled  AssignmentStatus = "Cancelled"
)

var AssignmentStatuses = []AssignmentStatus{AssignmentPlanned, AssignmentInProgress, AssignmentCompleted, AssignmentCancelled}

type Role string

const (
	RoleConstructionManager Role = "Construction Manager"
	RoleManager             Role = "Manager"
	RoleViewer              Role = "Viewer"
)

var Roles = []Role{RoleConstructionManager, RoleManager, RoleViewer}

// EnumError reports a value outside one of the closed enumerations.
type EnumError struct {
	Kind  string
	Value string
}

func (e EnumError) Error() string {
	return fmt.Sprintf("invalid %s %q", e.Kind, e.Value)
}

// fold normalises user input so "in_progress", "In Progress" and "in-progress" match.
func fold(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(s)
}

func parseEnum[T ~string](kind, raw string, values []T) (T, error) {
	want := fold(raw)
	for _, v := range values {
		if fold(string(v)) == want {
			return v, nil
		}
	}
	var zero T
	return zero, EnumError{Kind: kind, Value: raw}
}

func ParseAvailability(s string) (Availability, error) {
	return parseEnum("availability", s, Availabilities)
}

func ParseProjectStatus(s string) (ProjectStatus, error) {
	return parseEnum("project status", s, ProjectStatuses)
}

func ParseAssignmentStatus(s string) (AssignmentStatus, error) {
	return parseEnum("assignment status", s, AssignmentStatuses)
}

func ParseRole(s string) (Role, error) {
	return parseEnum("role", s, Roles)
}
