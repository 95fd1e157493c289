package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"siteplan/internal/config"
	"siteplan/internal/db"
	"siteplan/internal/domain"
	"siteplan/internal/engine"
	"siteplan/internal/engine/auth"
	"siteplan/internal/gantt"
	"siteplan/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	engine engine.Engine
	cm     domain.User
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if _, err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default(), zap.NewNop())
	e.Now = func() time.Time { return time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC) }
	cm, err := e.Bootstrap(context.Background(), "cm_user", "pass123")
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if _, err := e.CreateUser(context.Background(), cm, "viewer1", "viewerpass1", "Viewer"); err != nil {
		t.Fatalf("create viewer: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth: AuthConfig{
			Tokens:     auth.Tokens{Secret: []byte("test-secret"), TTL: time.Hour},
			LoginRate:  rate.Every(time.Hour),
			LoginBurst: 3,
		},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		engine: e,
		cm:     cm,
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func login(t *testing.T, srv *testServer, username, password string) map[string]string {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/login", map[string]any{
		"username": username,
		"password": password,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login %s: %d %s", username, res.StatusCode, string(data))
	}
	var out LoginResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + out.Token}
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, data []byte) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error: %v (%s)", err, string(data))
	}
	return env
}

func TestAssignmentLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	hdr := login(t, srv, "cm_user", "pass123")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/artisans", map[string]any{
		"name":  "John Smith",
		"skill": "Carpenter",
	}, hdr)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create artisan: %d %s", res.StatusCode, string(data))
	}
	var artisan domain.Artisan
	_ = json.Unmarshal(data, &artisan)

	projectIDs := []string{}
	for _, name := range []string{"P1", "P2"} {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects", map[string]any{
			"name":       name,
			"start_date": "2025-01-01",
			"end_date":   "2025-12-31",
		}, hdr)
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("create project: %d %s", res.StatusCode, string(data))
		}
		var p domain.Project
		_ = json.Unmarshal(data, &p)
		projectIDs = append(projectIDs, p.ID)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/assignments", map[string]any{
		"artisan_id":    artisan.ID,
		"project_id":    projectIDs[0],
		"start_date":    "2025-03-01",
		"end_date":      "2025-03-10",
		"hours_per_day": 8,
	}, hdr)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create assignment: %d %s", res.StatusCode, string(data))
	}
	var first domain.Assignment
	_ = json.Unmarshal(data, &first)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/assignments", map[string]any{
		"artisan_id":    artisan.ID,
		"project_id":    projectIDs[1],
		"start_date":    "2025-03-05",
		"end_date":      "2025-03-06",
		"hours_per_day": 6,
	}, hdr)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d %s", res.StatusCode, string(data))
	}
	env := decodeError(t, data)
	if env.Error.Code != "overlapping_assignment" {
		t.Fatalf("unexpected code %q", env.Error.Code)
	}
	conflicts, _ := env.Error.Details["conflicts"].([]any)
	if len(conflicts) != 1 || conflicts[0] != first.ID {
		t.Fatalf("unexpected conflicts %v", env.Error.Details)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/assignments/check", map[string]any{
		"artisan_id":    artisan.ID,
		"project_id":    projectIDs[0],
		"start_date":    "2025-03-02",
		"end_date":      "2025-03-12",
		"hours_per_day": 8,
		"excluding_id":  first.ID,
	}, hdr)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), `"ok":true`) {
		t.Fatalf("check: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/assignments/"+first.ID, map[string]any{
		"hours_per_day": 13,
	}, hdr)
	if res.StatusCode != http.StatusUnprocessableEntity || decodeError(t, data).Error.Code != "hours_out_of_range" {
		t.Fatalf("expected hours rejection, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/assignments?artisan_id="+artisan.ID, nil, hdr)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list: %d %s", res.StatusCode, string(data))
	}
	var listed []domain.Assignment
	_ = json.Unmarshal(data, &listed)
	if len(listed) != 1 || listed[0].EndDate != "2025-03-10" {
		t.Fatalf("unexpected assignments %+v", listed)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/assignments", map[string]any{
		"artisan_id":    "ar_missing",
		"project_id":    projectIDs[0],
		"start_date":    "2025-05-01",
		"end_date":      "2025-05-02",
		"hours_per_day": 8,
	}, hdr)
	if res.StatusCode != http.StatusUnprocessableEntity || decodeError(t, data).Error.Code != "unknown_artisan" {
		t.Fatalf("expected unknown artisan, got %d %s", res.StatusCode, string(data))
	}

	res, _ = doJSON(t, client, http.MethodDelete, srv.URL+"/v1/assignments/"+first.ID, nil, hdr)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: %d", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/assignments/"+first.ID, nil, hdr)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", res.StatusCode)
	}
}

func TestAuthentication(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health: %d", res.StatusCode)
	}
	if res.Header.Get("X-Request-Id") == "" {
		t.Fatal("missing request id header")
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/artisans", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/artisans", nil, map[string]string{"Authorization": "Bearer nope"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", res.StatusCode)
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/login", map[string]any{
		"username": "viewer1",
		"password": "wrong",
	}, nil)
	if res.StatusCode != http.StatusUnauthorized || decodeError(t, data).Error.Code != "invalid_credentials" {
		t.Fatalf("expected invalid credentials, got %d %s", res.StatusCode, string(data))
	}

	hdr := login(t, srv, "viewer1", "viewerpass1")
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, hdr)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), `"Viewer"`) {
		t.Fatalf("me: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/artisans", map[string]any{"name": "Nope"}, hdr)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("viewer write: expected 403, got %d %s", res.StatusCode, string(data))
	}

	// the burst is three attempts per username; the failed login counts too
	login(t, srv, "viewer1", "viewerpass1")
	res, _ = doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/login", map[string]any{
		"username": "viewer1",
		"password": "viewerpass1",
	}, nil)
	if res.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", res.StatusCode)
	}

	// a deleted user's token stops working at once
	users, _ := srv.engine.ListUsers(context.Background(), srv.cm)
	for _, u := range users {
		if u.Username == "viewer1" {
			if err := srv.engine.DeleteUser(context.Background(), srv.cm, u.ID); err != nil {
				t.Fatal(err)
			}
		}
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, hdr)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for deleted user, got %d", res.StatusCode)
	}
}

func TestErrorMapping(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	hdr := login(t, srv, "cm_user", "pass123")

	res, _ := doJSON(t, client, http.MethodPost, srv.URL+"/v1/teams", map[string]any{"name": "Framers"}, hdr)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create team: %d", res.StatusCode)
	}
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/teams", map[string]any{"name": "Framers"}, hdr)
	if res.StatusCode != http.StatusConflict || decodeError(t, data).Error.Code != "duplicate" {
		t.Fatalf("expected 409 duplicate, got %d %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/teams/tm_missing", nil, hdr)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.StatusCode)
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects", map[string]any{
		"name":       "Inverted",
		"start_date": "2025-02-01",
		"end_date":   "2025-01-01",
	}, hdr)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for inverted project, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/artisans", map[string]any{
		"name":         "Odd",
		"availability": "weekends",
	}, hdr)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad availability, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v1/users/"+srv.cm.ID+"/role", map[string]any{"role": "Viewer"}, hdr)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for last manager, got %d %s", res.StatusCode, string(data))
	}
}

func TestViewsAndMetrics(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	hdr := login(t, srv, "cm_user", "pass123")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/artisans", map[string]any{"name": "Aisha Khan", "skill": "Electrician"}, hdr)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create artisan: %d %s", res.StatusCode, string(data))
	}
	var a domain.Artisan
	_ = json.Unmarshal(data, &a)
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/staff", map[string]any{
		"project":     map[string]any{"name": "Clinic", "start_date": "2025-03-03", "end_date": "2025-03-07"},
		"artisan_ids": []string{a.ID},
	}, hdr)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("staff: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/gantt?days=14", nil, hdr)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("gantt: %d %s", res.StatusCode, string(data))
	}
	var chart gantt.Chart
	if err := json.Unmarshal(data, &chart); err != nil {
		t.Fatal(err)
	}
	if chart.From != "2025-03-01" || len(chart.Days) != 14 || len(chart.Rows) != 1 {
		t.Fatalf("unexpected chart %+v", chart)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/gantt?from=2025-02-30", nil, hdr)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad from, got %d", res.StatusCode)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/export/assignments.ics", nil, hdr)
	if res.StatusCode != http.StatusOK || !strings.HasPrefix(res.Header.Get("Content-Type"), "text/calendar") {
		t.Fatalf("ics: %d %s", res.StatusCode, res.Header.Get("Content-Type"))
	}
	if !strings.Contains(string(data), "BEGIN:VEVENT") {
		t.Fatalf("ics body has no events: %s", string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/export/schedule.xlsx?from=2025-03-01", nil, hdr)
	if res.StatusCode != http.StatusOK || !bytes.HasPrefix(data, []byte("PK")) {
		t.Fatalf("xlsx: %d", res.StatusCode)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/audit?entity_kind=assignment", nil, hdr)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("audit: %d %s", res.StatusCode, string(data))
	}
	var entries []domain.AuditEntry
	_ = json.Unmarshal(data, &entries)
	if len(entries) != 1 || entries[0].Action != "staff" {
		t.Fatalf("unexpected audit %+v", entries)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/metrics", nil, nil)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), "siteplan_http_requests_total") {
		t.Fatalf("metrics: %d", res.StatusCode)
	}
}
