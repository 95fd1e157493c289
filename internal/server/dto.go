package server

import (
	"time"

	"siteplan/internal/domain"
	"siteplan/internal/engine"
)

// Request payloads

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TeamRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ManagerID   string `json:"manager_id,omitempty"`
}

func (r TeamRequest) input() engine.TeamInput {
	return engine.TeamInput{Name: r.Name, Description: r.Description, ManagerID: r.ManagerID}
}

type TeamPatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	ManagerID   *string `json:"manager_id,omitempty" doc:"Empty string clears the manager"`
}

func (p TeamPatch) update(id string) engine.TeamUpdate {
	return engine.TeamUpdate{ID: id, Name: p.Name, Description: p.Description, ManagerID: p.ManagerID}
}

type ArtisanRequest struct {
	Name         string  `json:"name"`
	TeamID       string  `json:"team_id,omitempty"`
	Skill        string  `json:"skill,omitempty"`
	Availability string  `json:"availability,omitempty" doc:"Full-time, Part-time or On-call"`
	HourlyRate   float64 `json:"hourly_rate,omitempty"`
	Email        string  `json:"email,omitempty"`
	Phone        string  `json:"phone,omitempty"`
}

func (r ArtisanRequest) input() engine.ArtisanInput {
	return engine.ArtisanInput{
		Name: r.Name, TeamID: r.TeamID, Skill: r.Skill, Availability: r.Availability,
		HourlyRate: r.HourlyRate, Email: r.Email, Phone: r.Phone,
	}
}

type ArtisanPatch struct {
	Name         *string  `json:"name,omitempty"`
	TeamID       *string  `json:"team_id,omitempty" doc:"Empty string removes the artisan from its team"`
	Skill        *string  `json:"skill,omitempty"`
	Availability *string  `json:"availability,omitempty"`
	HourlyRate   *float64 `json:"hourly_rate,omitempty"`
	Email        *string  `json:"email,omitempty"`
	Phone        *string  `json:"phone,omitempty"`
}

func (p ArtisanPatch) update(id string) engine.ArtisanUpdate {
	return engine.ArtisanUpdate{
		ID: id, Name: p.Name, TeamID: p.TeamID, Skill: p.Skill, Availability: p.Availability,
		HourlyRate: p.HourlyRate, Email: p.Email, Phone: p.Phone,
	}
}

type ProjectRequest struct {
	Name        string  `json:"name"`
	JobNumber   string  `json:"job_number,omitempty"`
	Description string  `json:"description,omitempty"`
	StartDate   string  `json:"start_date" doc:"YYYY-MM-DD"`
	EndDate     string  `json:"end_date" doc:"YYYY-MM-DD"`
	Status      string  `json:"status,omitempty" doc:"Active, Pending, Completed or Cancelled"`
	Budget      float64 `json:"budget,omitempty"`
}

func (r ProjectRequest) input() engine.ProjectInput {
	return engine.ProjectInput{
		Name: r.Name, JobNumber: r.JobNumber, Description: r.Description,
		StartDate: r.StartDate, EndDate: r.EndDate, Status: r.Status, Budget: r.Budget,
	}
}

type ProjectPatch struct {
	Name        *string  `json:"name,omitempty"`
	JobNumber   *string  `json:"job_number,omitempty"`
	Description *string  `json:"description,omitempty"`
	StartDate   *string  `json:"start_date,omitempty"`
	EndDate     *string  `json:"end_date,omitempty"`
	Status      *string  `json:"status,omitempty"`
	Budget      *float64 `json:"budget,omitempty"`
}

func (p ProjectPatch) update(id string) engine.ProjectUpdate {
	return engine.ProjectUpdate{
		ID: id, Name: p.Name, JobNumber: p.JobNumber, Description: p.Description,
		StartDate: p.StartDate, EndDate: p.EndDate, Status: p.Status, Budget: p.Budget,
	}
}

type StaffRequest struct {
	Project     ProjectRequest `json:"project"`
	ArtisanIDs  []string       `json:"artisan_ids" minItems:"1"`
	HoursPerDay float64        `json:"hours_per_day,omitempty" doc:"Defaults to 8"`
	TeamName    string         `json:"team_name,omitempty"`
}

func (r StaffRequest) input() engine.StaffInput {
	return engine.StaffInput{Project: r.Project.input(), ArtisanIDs: r.ArtisanIDs, HoursPerDay: r.HoursPerDay, TeamName: r.TeamName}
}

type AssignmentRequest struct {
	ArtisanID      string  `json:"artisan_id"`
	ProjectID      string  `json:"project_id"`
	StartDate      string  `json:"start_date" doc:"YYYY-MM-DD"`
	EndDate        string  `json:"end_date" doc:"YYYY-MM-DD"`
	HoursPerDay    float64 `json:"hours_per_day"`
	CompletedHours float64 `json:"completed_hours,omitempty"`
	Notes          string  `json:"notes,omitempty"`
	Status         string  `json:"status,omitempty"`
	Priority       int     `json:"priority,omitempty"`
}

func (r AssignmentRequest) input() engine.AssignmentInput {
	return engine.AssignmentInput{
		ArtisanID: r.ArtisanID, ProjectID: r.ProjectID, StartDate: r.StartDate, EndDate: r.EndDate,
		HoursPerDay: r.HoursPerDay, CompletedHours: r.CompletedHours, Notes: r.Notes,
		Status: r.Status, Priority: r.Priority,
	}
}

type CheckAssignmentRequest struct {
	AssignmentRequest
	ExcludingID string `json:"excluding_id,omitempty" doc:"Assignment being edited; ignored in the overlap check"`
}

type AssignmentPatch struct {
	ArtisanID      *string  `json:"artisan_id,omitempty"`
	ProjectID      *string  `json:"project_id,omitempty"`
	StartDate      *string  `json:"start_date,omitempty"`
	EndDate        *string  `json:"end_date,omitempty"`
	HoursPerDay    *float64 `json:"hours_per_day,omitempty"`
	CompletedHours *float64 `json:"completed_hours,omitempty"`
	Notes          *string  `json:"notes,omitempty"`
	Status         *string  `json:"status,omitempty"`
	Priority       *int     `json:"priority,omitempty"`
}

func (p AssignmentPatch) update(id string) engine.AssignmentUpdate {
	return engine.AssignmentUpdate{
		ID: id, ArtisanID: p.ArtisanID, ProjectID: p.ProjectID, StartDate: p.StartDate, EndDate: p.EndDate,
		HoursPerDay: p.HoursPerDay, CompletedHours: p.CompletedHours, Notes: p.Notes,
		Status: p.Status, Priority: p.Priority,
	}
}

type CreateUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role" doc:"Construction Manager, Manager or Viewer"`
}

type RoleRequest struct {
	Role string `json:"role"`
}

type PasswordRequest struct {
	Password string `json:"password"`
}

// Response payloads

type LoginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      domain.User `json:"user"`
}

type MeResponse struct {
	User        domain.User `json:"user"`
	Permissions []string    `json:"permissions"`
}

type CheckResponse struct {
	OK bool `json:"ok"`
}

type StatusResponse struct {
	Status string `json:"status"`
}
