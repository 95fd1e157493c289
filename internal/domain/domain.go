package domain

type Team struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	ManagerID   *string `json:"manager_id,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

type Artisan struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	TeamID       *string      `json:"team_id,omitempty"`
	Skill        string       `json:"skill"`
	Availability Availability `json:"availability" enum:"Full-time,Part-time,On-call"`
	HourlyRate   float64      `json:"hourly_rate"`
	Email        string       `json:"email,omitempty"`
	Phone        string       `json:"phone,omitempty"`
	CreatedAt    string       `json:"created_at" format:"date-time"`
}

type Project struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	JobNumber   string        `json:"job_number,omitempty"`
	Description string        `json:"description,omitempty"`
	StartDate   string        `json:"start_date" format:"date"`
	EndDate     string        `json:"end_date" format:"date"`
	Status      ProjectStatus `json:"status" enum:"Active,Pending,Completed,Cancelled"`
	Budget      float64       `json:"budget"`
	CreatedAt   string        `json:"created_at" format:"date-time"`
}

type Assignment struct {
	ID             string           `json:"id"`
	ArtisanID      string           `json:"artisan_id"`
	ProjectID      string           `json:"project_id"`
	StartDate      string           `json:"start_date" format:"date"`
	EndDate        string           `json:"end_date" format:"date"`
	HoursPerDay    float64          `json:"hours_per_day"`
	CompletedHours float64          `json:"completed_hours"`
	Notes          string           `json:"notes,omitempty"`
	Status         AssignmentStatus `json:"status" enum:"Planned,In Progress,Completed,Cancelled"`
	Priority       int              `json:"priority"`
	CreatedAt      string           `json:"created_at" format:"date-time"`
	UpdatedAt      string           `json:"updated_at" format:"date-time"`
}

type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	Role         Role   `json:"role" enum:"Construction Manager,Manager,Viewer"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

// AuditEntry is a row of the append-only audit log.
type AuditEntry struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	UserID     string `json:"user_id,omitempty"`
	Username   string `json:"username"`
	Action     string `json:"action"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Details    string `json:"details_json"`
}
