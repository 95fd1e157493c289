package siteplansdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal siteplan HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type Artisan struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	TeamID       *string `json:"team_id,omitempty"`
	Skill        string  `json:"skill"`
	Availability string  `json:"availability"`
	HourlyRate   float64 `json:"hourly_rate"`
}

type Project struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	JobNumber string  `json:"job_number,omitempty"`
	StartDate string  `json:"start_date"`
	EndDate   string  `json:"end_date"`
	Status    string  `json:"status"`
	Budget    float64 `json:"budget"`
}

// Assignment is an artisan booked on a project for an inclusive date range.
type Assignment struct {
	ID             string  `json:"id,omitempty"`
	ArtisanID      string  `json:"artisan_id"`
	ProjectID      string  `json:"project_id"`
	StartDate      string  `json:"start_date"`
	EndDate        string  `json:"end_date"`
	HoursPerDay    float64 `json:"hours_per_day"`
	CompletedHours float64 `json:"completed_hours,omitempty"`
	Notes          string  `json:"notes,omitempty"`
	Status         string  `json:"status,omitempty"`
	Priority       int     `json:"priority,omitempty"`
}

// AssignmentPatch changes the non-nil fields of an assignment.
type AssignmentPatch struct {
	ArtisanID   *string  `json:"artisan_id,omitempty"`
	ProjectID   *string  `json:"project_id,omitempty"`
	StartDate   *string  `json:"start_date,omitempty"`
	EndDate     *string  `json:"end_date,omitempty"`
	HoursPerDay *float64 `json:"hours_per_day,omitempty"`
	Notes       *string  `json:"notes,omitempty"`
	Status      *string  `json:"status,omitempty"`
}

type AssignmentFilter struct {
	ArtisanID string
	ProjectID string
	Status    string
	From      string
	To        string
}

type Chart struct {
	From string `json:"from"`
	To   string `json:"to"`
	Days []struct {
		Date    string `json:"date"`
		Weekday string `json:"weekday"`
		Weekend bool   `json:"weekend"`
		Holiday bool   `json:"holiday"`
	} `json:"days"`
	Rows []struct {
		ProjectID   string `json:"project_id"`
		ProjectName string `json:"project_name"`
		Team        string `json:"team"`
		Color       string `json:"color"`
		Bars        []struct {
			AssignmentID string `json:"assignment_id"`
			ArtisanID    string `json:"artisan_id"`
			Offset       int    `json:"offset"`
			Span         int    `json:"span"`
		} `json:"bars"`
	} `json:"rows"`
}

// APIError wraps non-2xx responses. Code is the machine-readable error code;
// for rejected assignments it is the rejection reason, e.g.
// "overlapping_assignment", and Conflicts lists the clashing assignment ids.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Conflicts  []string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsRejection reports whether err is an assignment rejection with the given reason.
func IsRejection(err error, reason string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnprocessableEntity && apiErr.Code == reason
}

// Login exchanges credentials for a token and stores it on the client.
func (c *Client) Login(ctx context.Context, username, password string) (User, error) {
	var resp struct {
		Token string `json:"token"`
		User  User   `json:"user"`
	}
	body := map[string]any{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "auth/login", body, &resp); err != nil {
		return User{}, err
	}
	c.BearerToken = resp.Token
	return resp.User, nil
}

// CreateArtisan creates an artisan.
func (c *Client) CreateArtisan(ctx context.Context, name, skill, availability string) (Artisan, error) {
	body := map[string]any{"name": name, "skill": skill}
	if availability != "" {
		body["availability"] = availability
	}
	var resp Artisan
	err := c.do(ctx, http.MethodPost, "artisans", body, &resp)
	return resp, err
}

// CreateProject creates a project.
func (c *Client) CreateProject(ctx context.Context, name, startDate, endDate string) (Project, error) {
	body := map[string]any{"name": name, "start_date": startDate, "end_date": endDate}
	var resp Project
	err := c.do(ctx, http.MethodPost, "projects", body, &resp)
	return resp, err
}

// CreateAssignment validates and commits an assignment.
func (c *Client) CreateAssignment(ctx context.Context, a Assignment) (Assignment, error) {
	a.ID = ""
	var resp Assignment
	err := c.do(ctx, http.MethodPost, "assignments", a, &resp)
	return resp, err
}

// CheckAssignment validates without writing. excludingID names the
// assignment being edited, if any.
func (c *Client) CheckAssignment(ctx context.Context, a Assignment, excludingID string) error {
	body := struct {
		Assignment
		ExcludingID string `json:"excluding_id,omitempty"`
	}{a, excludingID}
	body.ID = ""
	return c.do(ctx, http.MethodPost, "assignments/check", body, nil)
}

// UpdateAssignment validates and applies a patch.
func (c *Client) UpdateAssignment(ctx context.Context, id string, patch AssignmentPatch) (Assignment, error) {
	var resp Assignment
	err := c.do(ctx, http.MethodPatch, "assignments/"+url.PathEscape(id), patch, &resp)
	return resp, err
}

// DeleteAssignment removes an assignment.
func (c *Client) DeleteAssignment(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "assignments/"+url.PathEscape(id), nil, nil)
}

// ListAssignments returns assignments matching the filter.
func (c *Client) ListAssignments(ctx context.Context, f AssignmentFilter) ([]Assignment, error) {
	q := url.Values{}
	for k, v := range map[string]string{
		"artisan_id": f.ArtisanID,
		"project_id": f.ProjectID,
		"status":     f.Status,
		"from":       f.From,
		"to":         f.To,
	} {
		if v != "" {
			q.Set(k, v)
		}
	}
	endpoint := "assignments"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Assignment
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Gantt returns chart data for days days starting at from (YYYY-MM-DD).
// Empty from means today; days <= 0 means the server default.
func (c *Client) Gantt(ctx context.Context, from string, days int) (Chart, error) {
	q := url.Values{}
	if from != "" {
		q.Set("from", from)
	}
	if days > 0 {
		q.Set("days", strconv.Itoa(days))
	}
	endpoint := "gantt"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp Chart
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return decodeAPIError(resp.StatusCode, b)
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: string(body)}
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			Details struct {
				Conflicts []string `json:"conflicts"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.Conflicts = env.Error.Details.Conflicts
	}
	return apiErr
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
