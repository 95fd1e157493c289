package engine_test

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"siteplan/internal/config"
	"siteplan/internal/db"
	"siteplan/internal/domain"
	"siteplan/internal/engine"
	"siteplan/internal/engine/auth"
	"siteplan/internal/migrate"
	"siteplan/internal/repo"
	"siteplan/internal/schedule"
)

type testEnv struct {
	Engine  engine.Engine
	Ctx     context.Context
	CM      domain.User
	Manager domain.User
	Viewer  domain.User
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default(), nil)
	eng.Now = func() time.Time { return time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC) }

	cm, err := eng.Bootstrap(ctx, "cm_user", "pass123")
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	manager, err := eng.CreateUser(ctx, cm, "manager1", "managerpass1", "Manager")
	if err != nil {
		t.Fatalf("create manager: %v", err)
	}
	viewer, err := eng.CreateUser(ctx, cm, "viewer1", "viewerpass1", "viewer")
	if err != nil {
		t.Fatalf("create viewer: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx, CM: cm, Manager: manager, Viewer: viewer}
}

func (env testEnv) artisan(t *testing.T, name string) domain.Artisan {
	t.Helper()
	a, err := env.Engine.CreateArtisan(env.Ctx, env.Manager, engine.ArtisanInput{Name: name, Skill: "Carpenter", HourlyRate: 250})
	if err != nil {
		t.Fatalf("create artisan %s: %v", name, err)
	}
	return a
}

func (env testEnv) project(t *testing.T, name string) domain.Project {
	t.Helper()
	p, err := env.Engine.CreateProject(env.Ctx, env.Manager, engine.ProjectInput{Name: name, StartDate: "2025-01-01", EndDate: "2025-12-31"})
	if err != nil {
		t.Fatalf("create project %s: %v", name, err)
	}
	return p
}

func (env testEnv) assign(artisanID, projectID, start, end string, hours float64) (domain.Assignment, error) {
	return env.Engine.CreateAssignment(env.Ctx, env.Manager, engine.AssignmentInput{
		ArtisanID: artisanID, ProjectID: projectID, StartDate: start, EndDate: end, HoursPerDay: hours,
	})
}

func (env testEnv) countAssignments(t *testing.T) int {
	t.Helper()
	all, err := env.Engine.ListAssignments(env.Ctx, env.Viewer, engine.AssignmentQuery{})
	if err != nil {
		t.Fatalf("list assignments: %v", err)
	}
	return len(all)
}

func TestConcreteScenarioAgainstStore(t *testing.T) {
	env := newTestEnv(t)
	a1 := env.artisan(t, "John Smith")
	p1 := env.project(t, "P1")
	p2 := env.project(t, "P2")

	first, err := env.assign(a1.ID, p1.ID, "2025-03-01", "2025-03-10", 8)
	if err != nil {
		t.Fatalf("first assignment: %v", err)
	}
	_, err = env.assign(a1.ID, p2.ID, "2025-03-05", "2025-03-06", 6)
	rej, ok := schedule.AsRejection(err)
	if !ok || rej.Reason != schedule.ReasonOverlappingAssignment || !reflect.DeepEqual(rej.Conflicts, []string{first.ID}) {
		t.Fatalf("expected overlap with %s, got %v", first.ID, err)
	}
	if _, err := env.assign(a1.ID, p2.ID, "2025-03-11", "2025-03-15", 6); err != nil {
		t.Fatalf("expected accept, got %v", err)
	}
	if n := env.countAssignments(t); n != 2 {
		t.Fatalf("expected 2 stored assignments, got %d", n)
	}
}

func TestBoundaryAndAdjacency(t *testing.T) {
	env := newTestEnv(t)
	a := env.artisan(t, "Aisha Khan")
	p := env.project(t, "Tower")
	if _, err := env.assign(a.ID, p.ID, "2025-01-01", "2025-01-05", 8); err != nil {
		t.Fatal(err)
	}
	if _, err := env.assign(a.ID, p.ID, "2025-01-05", "2025-01-10", 8); !errors.Is(err, schedule.ErrOverlappingAssignment) {
		t.Fatalf("touching boundary should overlap, got %v", err)
	}
	if _, err := env.assign(a.ID, p.ID, "2025-01-06", "2025-01-10", 8); err != nil {
		t.Fatalf("adjacent should be accepted: %v", err)
	}
}

func TestOtherArtisansDoNotConflict(t *testing.T) {
	env := newTestEnv(t)
	a := env.artisan(t, "Thabo Mokoena")
	b := env.artisan(t, "Sarah Jones")
	p := env.project(t, "Mall")
	if _, err := env.assign(a.ID, p.ID, "2025-04-01", "2025-04-30", 8); err != nil {
		t.Fatal(err)
	}
	if _, err := env.assign(b.ID, p.ID, "2025-04-01", "2025-04-30", 8); err != nil {
		t.Fatalf("different artisan rejected: %v", err)
	}
}

func TestReferentialRejectionsWriteNothing(t *testing.T) {
	env := newTestEnv(t)
	a := env.artisan(t, "Michael Brown")
	p := env.project(t, "Depot")

	_, err := env.assign("ar_missing", p.ID, "2025-01-01", "2025-01-02", 8)
	if !errors.Is(err, schedule.ErrUnknownArtisan) {
		t.Fatalf("expected unknown artisan, got %v", err)
	}
	_, err = env.assign(a.ID, "pj_missing", "2025-01-01", "2025-01-02", 8)
	if !errors.Is(err, schedule.ErrUnknownProject) {
		t.Fatalf("expected unknown project, got %v", err)
	}
	_, err = env.assign(a.ID, p.ID, "2025-01-01", "2025-01-02", 13)
	if !errors.Is(err, schedule.ErrHoursOutOfRange) {
		t.Fatalf("expected hours out of range, got %v", err)
	}
	if n := env.countAssignments(t); n != 0 {
		t.Fatalf("rejections must not write, found %d", n)
	}
	entries, err := env.Engine.ListAudit(env.Ctx, env.Manager, repo.AuditFilters{EntityKind: "assignment"})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("rejections must not be audited, found %d", len(entries))
	}
}

func TestUpdateSelfExclusion(t *testing.T) {
	env := newTestEnv(t)
	a := env.artisan(t, "John Smith")
	p := env.project(t, "Tower")
	x, err := env.assign(a.ID, p.ID, "2025-03-01", "2025-03-10", 8)
	if err != nil {
		t.Fatal(err)
	}
	y, err := env.assign(a.ID, p.ID, "2025-03-20", "2025-03-25", 8)
	if err != nil {
		t.Fatal(err)
	}

	start, end := "2025-03-02", "2025-03-12"
	updated, err := env.Engine.UpdateAssignment(env.Ctx, env.Manager, engine.AssignmentUpdate{ID: x.ID, StartDate: &start, EndDate: &end})
	if err != nil {
		t.Fatalf("self-overlapping update rejected: %v", err)
	}
	if updated.StartDate != start || updated.EndDate != end {
		t.Fatalf("update not applied: %+v", updated)
	}

	end = "2025-03-21"
	_, err = env.Engine.UpdateAssignment(env.Ctx, env.Manager, engine.AssignmentUpdate{ID: x.ID, EndDate: &end})
	rej, ok := schedule.AsRejection(err)
	if !ok || !reflect.DeepEqual(rej.Conflicts, []string{y.ID}) {
		t.Fatalf("expected conflict with %s, got %v", y.ID, err)
	}
	stored, err := env.Engine.GetAssignment(env.Ctx, env.Viewer, x.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.EndDate != "2025-03-12" {
		t.Fatalf("rejected update changed state: %+v", stored)
	}

	hours := 12.5
	if _, err := env.Engine.UpdateAssignment(env.Ctx, env.Manager, engine.AssignmentUpdate{ID: x.ID, HoursPerDay: &hours}); !errors.Is(err, schedule.ErrHoursOutOfRange) {
		t.Fatalf("expected hours rejection, got %v", err)
	}
	status := "in_progress"
	done := 16.0
	updated, err = env.Engine.UpdateAssignment(env.Ctx, env.Manager, engine.AssignmentUpdate{ID: x.ID, Status: &status, CompletedHours: &done})
	if err != nil || updated.Status != domain.AssignmentInProgress || updated.CompletedHours != 16 {
		t.Fatalf("status update: %v %+v", err, updated)
	}
}

func TestUpdateMovesToOtherArtisan(t *testing.T) {
	env := newTestEnv(t)
	a := env.artisan(t, "John Smith")
	b := env.artisan(t, "Aisha Khan")
	p := env.project(t, "Tower")
	x, err := env.assign(a.ID, p.ID, "2025-05-01", "2025-05-05", 8)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.assign(b.ID, p.ID, "2025-05-04", "2025-05-09", 8); err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.UpdateAssignment(env.Ctx, env.Manager, engine.AssignmentUpdate{ID: x.ID, ArtisanID: &b.ID})
	if !errors.Is(err, schedule.ErrOverlappingAssignment) {
		t.Fatalf("expected overlap on new artisan, got %v", err)
	}
	start, end := "2025-05-10", "2025-05-12"
	moved, err := env.Engine.UpdateAssignment(env.Ctx, env.Manager, engine.AssignmentUpdate{ID: x.ID, ArtisanID: &b.ID, StartDate: &start, EndDate: &end})
	if err != nil || moved.ArtisanID != b.ID {
		t.Fatalf("move failed: %v", err)
	}
	missing := "ar_missing"
	if _, err := env.Engine.UpdateAssignment(env.Ctx, env.Manager, engine.AssignmentUpdate{ID: x.ID, ArtisanID: &missing}); !errors.Is(err, schedule.ErrUnknownArtisan) {
		t.Fatalf("expected unknown artisan, got %v", err)
	}
	if _, err := env.Engine.UpdateAssignment(env.Ctx, env.Manager, engine.AssignmentUpdate{ID: "as_missing"}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCheckAssignmentIsDryRun(t *testing.T) {
	env := newTestEnv(t)
	a := env.artisan(t, "John Smith")
	p := env.project(t, "Tower")
	x, err := env.assign(a.ID, p.ID, "2025-06-01", "2025-06-10", 8)
	if err != nil {
		t.Fatal(err)
	}
	in := engine.AssignmentInput{ArtisanID: a.ID, ProjectID: p.ID, StartDate: "2025-06-05", EndDate: "2025-06-06", HoursPerDay: 8}
	if err := env.Engine.CheckAssignment(env.Ctx, env.Viewer, in, ""); !errors.Is(err, schedule.ErrOverlappingAssignment) {
		t.Fatalf("expected overlap, got %v", err)
	}
	if err := env.Engine.CheckAssignment(env.Ctx, env.Viewer, in, x.ID); err != nil {
		t.Fatalf("excluding itself should pass: %v", err)
	}
	if n := env.countAssignments(t); n != 1 {
		t.Fatalf("check must not write, found %d", n)
	}
}

func TestConcurrentBookingsAdmitOne(t *testing.T) {
	env := newTestEnv(t)
	a := env.artisan(t, "John Smith")
	p := env.project(t, "Tower")

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.assign(a.ID, p.ID, "2025-07-01", "2025-07-0"+string(rune('2'+i)), 8)
		}(i)
	}
	wg.Wait()
	accepted := 0
	for _, err := range errs {
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, schedule.ErrOverlappingAssignment):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if accepted != 1 || env.countAssignments(t) != 1 {
		t.Fatalf("expected exactly one booking, got %d", accepted)
	}
}

func TestStorageTriggerBacksUpValidator(t *testing.T) {
	env := newTestEnv(t)
	a := env.artisan(t, "John Smith")
	p := env.project(t, "Tower")
	x, err := env.assign(a.ID, p.ID, "2025-08-01", "2025-08-10", 8)
	if err != nil {
		t.Fatal(err)
	}
	raw := x
	raw.ID = "as_raw"
	raw.StartDate, raw.EndDate = "2025-08-10", "2025-08-12"
	if err := env.Engine.Repo.InsertAssignment(env.Ctx, raw); !errors.Is(err, repo.ErrOverlap) {
		t.Fatalf("expected trigger to reject overlap, got %v", err)
	}
	raw.StartDate, raw.EndDate = "2025-08-11", "2025-08-12"
	if err := env.Engine.Repo.InsertAssignment(env.Ctx, raw); err != nil {
		t.Fatalf("non-overlapping raw insert: %v", err)
	}
}

func TestPermissions(t *testing.T) {
	env := newTestEnv(t)
	var forbidden auth.ForbiddenError

	_, err := env.Engine.CreateArtisan(env.Ctx, env.Viewer, engine.ArtisanInput{Name: "Nope"})
	if !errors.As(err, &forbidden) {
		t.Fatalf("viewer write should be forbidden, got %v", err)
	}
	_, err = env.Engine.CreateUser(env.Ctx, env.Manager, "someone", "secret1", "Viewer")
	if !errors.As(err, &forbidden) {
		t.Fatalf("manager should not manage users, got %v", err)
	}
	if _, err := env.Engine.ListAudit(env.Ctx, env.Viewer, repo.AuditFilters{}); !errors.As(err, &forbidden) {
		t.Fatalf("viewer should not read audit, got %v", err)
	}
	if _, err := env.Engine.ListArtisans(env.Ctx, env.Viewer, engine.ArtisanQuery{}); err != nil {
		t.Fatalf("viewer read: %v", err)
	}
}

func TestCascadesAndDuplicates(t *testing.T) {
	env := newTestEnv(t)
	team, err := env.Engine.CreateTeam(env.Ctx, env.Manager, engine.TeamInput{Name: "Framers"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CreateTeam(env.Ctx, env.Manager, engine.TeamInput{Name: "Framers"}); !errors.Is(err, repo.ErrDuplicate) {
		t.Fatalf("expected duplicate team, got %v", err)
	}
	a, err := env.Engine.CreateArtisan(env.Ctx, env.Manager, engine.ArtisanInput{Name: "John Smith", Skill: "Carpenter", TeamID: team.ID, Availability: "part-time"})
	if err != nil {
		t.Fatal(err)
	}
	if a.Availability != domain.PartTime {
		t.Fatalf("availability not parsed: %q", a.Availability)
	}
	if _, err := env.Engine.CreateArtisan(env.Ctx, env.Manager, engine.ArtisanInput{Name: "John Smith", Skill: "Carpenter", TeamID: team.ID}); !errors.Is(err, repo.ErrDuplicate) {
		t.Fatalf("expected duplicate artisan, got %v", err)
	}
	if _, err := env.Engine.CreateArtisan(env.Ctx, env.Manager, engine.ArtisanInput{Name: "X", Availability: "weekends"}); !errors.Is(err, engine.ErrInvalidInput) {
		t.Fatalf("expected invalid availability, got %v", err)
	}

	if err := env.Engine.DeleteTeam(env.Ctx, env.Manager, team.ID); err != nil {
		t.Fatal(err)
	}
	a, err = env.Engine.GetArtisan(env.Ctx, env.Viewer, a.ID)
	if err != nil || a.TeamID != nil {
		t.Fatalf("team reference should be cleared: %v %+v", err, a)
	}

	p := env.project(t, "Tower")
	if _, err := env.assign(a.ID, p.ID, "2025-02-01", "2025-02-02", 8); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.DeleteArtisan(env.Ctx, env.Manager, a.ID); err != nil {
		t.Fatal(err)
	}
	if n := env.countAssignments(t); n != 0 {
		t.Fatalf("artisan delete should cascade, found %d", n)
	}
	if err := env.Engine.DeleteArtisan(env.Ctx, env.Manager, a.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestProjectValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := []engine.ProjectInput{
		{Name: "", StartDate: "2025-01-01", EndDate: "2025-01-02"},
		{Name: "Inverted", StartDate: "2025-02-01", EndDate: "2025-01-02"},
		{Name: "Bad date", StartDate: "2025-02-30", EndDate: "2025-03-02"},
		{Name: "Budget", StartDate: "2025-01-01", EndDate: "2025-01-02", Budget: -1},
		{Name: "Status", StartDate: "2025-01-01", EndDate: "2025-01-02", Status: "Paused"},
	}
	for _, in := range cases {
		if _, err := env.Engine.CreateProject(env.Ctx, env.Manager, in); !errors.Is(err, engine.ErrInvalidInput) {
			t.Fatalf("%q: expected invalid input, got %v", in.Name, err)
		}
	}
	p := env.project(t, "Tower")
	if _, err := env.Engine.CreateProject(env.Ctx, env.Manager, engine.ProjectInput{Name: "Tower", StartDate: "2025-01-01", EndDate: "2025-01-01"}); !errors.Is(err, repo.ErrDuplicate) {
		t.Fatalf("expected duplicate project, got %v", err)
	}
	a := env.artisan(t, "John Smith")
	if _, err := env.assign(a.ID, p.ID, "2025-02-01", "2025-02-02", 8); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.DeleteProject(env.Ctx, env.Manager, p.ID); err != nil {
		t.Fatal(err)
	}
	if n := env.countAssignments(t); n != 0 {
		t.Fatalf("project delete should cascade, found %d", n)
	}
}

func TestStaffProject(t *testing.T) {
	env := newTestEnv(t)
	a := env.artisan(t, "John Smith")
	b := env.artisan(t, "Aisha Khan")

	res, err := env.Engine.StaffProject(env.Ctx, env.Manager, engine.StaffInput{
		Project:    engine.ProjectInput{Name: "Clinic", StartDate: "2025-03-01", EndDate: "2025-03-14"},
		ArtisanIDs: []string{a.ID, b.ID},
		TeamName:   "Clinic crew",
	})
	if err != nil {
		t.Fatalf("staff: %v", err)
	}
	if len(res.Assignments) != 2 || res.Team == nil || res.Assignments[0].HoursPerDay != 8 {
		t.Fatalf("unexpected staffing result %+v", res)
	}
	got, _ := env.Engine.GetArtisan(env.Ctx, env.Viewer, a.ID)
	if got.TeamID == nil || *got.TeamID != res.Team.ID {
		t.Fatalf("artisan not moved into team: %+v", got)
	}

	// a is already booked in March: the whole staffing must roll back
	_, err = env.Engine.StaffProject(env.Ctx, env.Manager, engine.StaffInput{
		Project:    engine.ProjectInput{Name: "Annex", StartDate: "2025-03-10", EndDate: "2025-03-20"},
		ArtisanIDs: []string{env.artisan(t, "Sarah Jones").ID, a.ID},
		TeamName:   "Annex crew",
	})
	if !errors.Is(err, schedule.ErrOverlappingAssignment) {
		t.Fatalf("expected overlap, got %v", err)
	}
	projects, _ := env.Engine.ListProjects(env.Ctx, env.Viewer, "")
	teams, _ := env.Engine.ListTeams(env.Ctx, env.Viewer)
	if len(projects) != 1 || len(teams) != 1 || env.countAssignments(t) != 2 {
		t.Fatalf("failed staffing left state behind: %d projects, %d teams", len(projects), len(teams))
	}
}

func TestUsersAndLogin(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.Bootstrap(env.Ctx, "again", "pass123"); !errors.Is(err, engine.ErrAlreadyInitialized) {
		t.Fatalf("expected already initialized, got %v", err)
	}
	u, err := env.Engine.Authenticate(env.Ctx, "manager1", "managerpass1")
	if err != nil || u.ID != env.Manager.ID {
		t.Fatalf("login: %v", err)
	}
	if _, err := env.Engine.Authenticate(env.Ctx, "manager1", "nope"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := env.Engine.Authenticate(env.Ctx, "ghost", "nope"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown user, got %v", err)
	}
	if _, err := env.Engine.SetUserRole(env.Ctx, env.CM, env.CM.ID, "Viewer"); !errors.Is(err, engine.ErrLastManager) {
		t.Fatalf("expected last manager protection, got %v", err)
	}
	promoted, err := env.Engine.SetUserRole(env.Ctx, env.CM, env.Manager.ID, "construction manager")
	if err != nil || promoted.Role != domain.RoleConstructionManager {
		t.Fatalf("promote: %v", err)
	}
	if err := env.Engine.DeleteUser(env.Ctx, env.CM, env.CM.ID); !errors.Is(err, engine.ErrInvalidInput) {
		t.Fatalf("self delete should be refused, got %v", err)
	}
	if err := env.Engine.DeleteUser(env.Ctx, promoted, env.CM.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.Engine.CreateUser(env.Ctx, promoted, "viewer1", "another1", "Viewer"); !errors.Is(err, repo.ErrDuplicate) {
		t.Fatalf("expected duplicate username, got %v", err)
	}
	if err := env.Engine.ChangePassword(env.Ctx, env.Viewer, env.Viewer.ID, "newpass1"); err != nil {
		t.Fatalf("own password: %v", err)
	}
	if _, err := env.Engine.Authenticate(env.Ctx, "viewer1", "newpass1"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestAuditTrail(t *testing.T) {
	env := newTestEnv(t)
	a := env.artisan(t, "John Smith")
	p := env.project(t, "Tower")
	x, err := env.assign(a.ID, p.ID, "2025-03-01", "2025-03-02", 8)
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.DeleteAssignment(env.Ctx, env.Manager, x.ID); err != nil {
		t.Fatal(err)
	}
	entries, err := env.Engine.ListAudit(env.Ctx, env.CM, repo.AuditFilters{EntityKind: "assignment", EntityID: x.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Action != "delete" || entries[1].Action != "create" {
		t.Fatalf("unexpected audit trail %+v", entries)
	}
	if entries[0].Username != "manager1" || entries[0].TS != "2025-02-01T09:00:00Z" {
		t.Fatalf("unexpected audit entry %+v", entries[0])
	}
}

func TestGanttFromStore(t *testing.T) {
	env := newTestEnv(t)
	a := env.artisan(t, "John Smith")
	p := env.project(t, "Tower")
	if _, err := env.assign(a.ID, p.ID, "2025-03-03", "2025-03-05", 8); err != nil {
		t.Fatal(err)
	}
	chart, err := env.Engine.Gantt(env.Ctx, env.Viewer, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(chart.Days) != 42 || len(chart.Rows) != 1 || chart.Rows[0].Bars[0].Offset != 2 {
		t.Fatalf("unexpected chart %+v", chart)
	}
}
