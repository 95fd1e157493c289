package repo_test

import (
	"context"
	"errors"
	"testing"

	"siteplan/internal/db"
	"siteplan/internal/domain"
	"siteplan/internal/migrate"
	"siteplan/internal/repo"
)

const stamp = "2025-01-01T00:00:00Z"

func openRepo(t *testing.T) (repo.Repo, context.Context) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn}, ctx
}

func seed(t *testing.T, r repo.Repo, ctx context.Context) {
	t.Helper()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(r.InsertArtisan(ctx, domain.Artisan{ID: "ar_1", Name: "John Smith", Skill: "Carpenter", Availability: domain.FullTime, CreatedAt: stamp}))
	must(r.InsertArtisan(ctx, domain.Artisan{ID: "ar_2", Name: "Aisha Khan", Skill: "Electrician", Availability: domain.OnCall, CreatedAt: stamp}))
	must(r.InsertProject(ctx, domain.Project{ID: "pj_1", Name: "Tower", StartDate: "2025-01-01", EndDate: "2025-12-31", Status: domain.ProjectActive, CreatedAt: stamp}))
	must(r.InsertProject(ctx, domain.Project{ID: "pj_2", Name: "Clinic", StartDate: "2025-02-01", EndDate: "2025-02-28", Status: domain.ProjectPending, CreatedAt: stamp}))
}

func assignment(id, artisan, start, end string) domain.Assignment {
	return domain.Assignment{ID: id, ArtisanID: artisan, ProjectID: "pj_1", StartDate: start, EndDate: end,
		HoursPerDay: 8, Status: domain.AssignmentPlanned, CreatedAt: stamp, UpdatedAt: stamp}
}

func TestAssignmentQueries(t *testing.T) {
	r, ctx := openRepo(t)
	seed(t, r, ctx)
	for _, a := range []domain.Assignment{
		assignment("as_1", "ar_1", "2025-03-01", "2025-03-10"),
		assignment("as_2", "ar_1", "2025-04-01", "2025-04-05"),
		assignment("as_3", "ar_2", "2025-03-05", "2025-03-20"),
	} {
		if err := r.InsertAssignment(ctx, a); err != nil {
			t.Fatalf("insert %s: %v", a.ID, err)
		}
	}

	mine, err := r.AssignmentsForArtisan(ctx, "ar_1")
	if err != nil || len(mine) != 2 || mine[0].ID != "as_1" {
		t.Fatalf("for artisan: %v %+v", err, mine)
	}
	window, err := r.ListAssignments(ctx, repo.AssignmentFilters{From: "2025-03-10", To: "2025-03-31"})
	if err != nil || len(window) != 2 {
		t.Fatalf("window: %v %+v", err, window)
	}
	got, err := r.GetAssignment(ctx, "as_3")
	if err != nil || got.Status != domain.AssignmentPlanned || got.HoursPerDay != 8 {
		t.Fatalf("get: %v %+v", err, got)
	}
	if _, err := r.GetAssignment(ctx, "as_9"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSchemaConstraints(t *testing.T) {
	r, ctx := openRepo(t)
	seed(t, r, ctx)

	bad := assignment("as_1", "ar_1", "2025-03-01", "2025-03-02")
	bad.HoursPerDay = 13
	if err := r.InsertAssignment(ctx, bad); !errors.Is(err, repo.ErrConstraint) {
		t.Fatalf("expected check violation, got %v", err)
	}
	orphan := assignment("as_1", "ar_missing", "2025-03-01", "2025-03-02")
	if err := r.InsertAssignment(ctx, orphan); !errors.Is(err, repo.ErrReference) {
		t.Fatalf("expected reference violation, got %v", err)
	}
	if err := r.InsertProject(ctx, domain.Project{ID: "pj_3", Name: "Tower", StartDate: "2025-01-01", EndDate: "2025-01-02", Status: domain.ProjectActive, CreatedAt: stamp}); !errors.Is(err, repo.ErrDuplicate) {
		t.Fatalf("expected duplicate project name, got %v", err)
	}
	inverted := domain.Project{ID: "pj_4", Name: "Inverted", StartDate: "2025-02-01", EndDate: "2025-01-01", Status: domain.ProjectActive, CreatedAt: stamp}
	if err := r.InsertProject(ctx, inverted); !errors.Is(err, repo.ErrConstraint) {
		t.Fatalf("expected inverted project to be refused, got %v", err)
	}
}

func TestOverlapTriggers(t *testing.T) {
	r, ctx := openRepo(t)
	seed(t, r, ctx)
	if err := r.InsertAssignment(ctx, assignment("as_1", "ar_1", "2025-03-01", "2025-03-10")); err != nil {
		t.Fatal(err)
	}
	if err := r.InsertAssignment(ctx, assignment("as_2", "ar_1", "2025-03-10", "2025-03-12")); !errors.Is(err, repo.ErrOverlap) {
		t.Fatalf("insert trigger: got %v", err)
	}
	later := assignment("as_2", "ar_1", "2025-03-11", "2025-03-12")
	if err := r.InsertAssignment(ctx, later); err != nil {
		t.Fatal(err)
	}
	later.StartDate = "2025-03-09"
	if err := r.UpdateAssignment(ctx, later); !errors.Is(err, repo.ErrOverlap) {
		t.Fatalf("update trigger: got %v", err)
	}
	// an assignment never conflicts with its own previous dates
	first := assignment("as_1", "ar_1", "2025-03-02", "2025-03-10")
	if err := r.UpdateAssignment(ctx, first); err != nil {
		t.Fatalf("self update: %v", err)
	}
}

func TestDeleteCascades(t *testing.T) {
	r, ctx := openRepo(t)
	seed(t, r, ctx)
	team := "tm_1"
	if err := r.InsertTeam(ctx, domain.Team{ID: team, Name: "Framers", ManagerID: ptr("ar_1"), CreatedAt: stamp}); err != nil {
		t.Fatal(err)
	}
	if err := r.SetArtisanTeam(ctx, "ar_2", team); err != nil {
		t.Fatal(err)
	}
	if err := r.InsertAssignment(ctx, assignment("as_1", "ar_1", "2025-03-01", "2025-03-10")); err != nil {
		t.Fatal(err)
	}

	if err := r.DeleteArtisan(ctx, "ar_1"); err != nil {
		t.Fatal(err)
	}
	if left, _ := r.ListAssignments(ctx, repo.AssignmentFilters{}); len(left) != 0 {
		t.Fatalf("assignments survived artisan delete: %+v", left)
	}
	tm, err := r.GetTeam(ctx, team)
	if err != nil || tm.ManagerID != nil {
		t.Fatalf("manager should be cleared: %v %+v", err, tm)
	}

	if err := r.DeleteTeam(ctx, team); err != nil {
		t.Fatal(err)
	}
	a, err := r.GetArtisan(ctx, "ar_2")
	if err != nil || a.TeamID != nil {
		t.Fatalf("team should be cleared: %v %+v", err, a)
	}
	members, err := r.ListArtisans(ctx, repo.ArtisanFilters{Availability: domain.OnCall})
	if err != nil || len(members) != 1 {
		t.Fatalf("filter by availability: %v %+v", err, members)
	}
}

func TestAuditPaging(t *testing.T) {
	r, ctx := openRepo(t)
	for i := 0; i < 5; i++ {
		_, err := r.DB.ExecContext(ctx, `INSERT INTO audit_log(ts,username,action,entity_kind,entity_id,details_json) VALUES (?,?,?,?,?,?)`,
			stamp, "cm_user", "create", "artisan", "ar_1", "{}")
		if err != nil {
			t.Fatal(err)
		}
	}
	page, err := r.ListAudit(ctx, repo.AuditFilters{EntityKind: "artisan", Limit: 2})
	if err != nil || len(page) != 2 || page[0].ID != 5 {
		t.Fatalf("first page: %v %+v", err, page)
	}
	next, err := r.ListAudit(ctx, repo.AuditFilters{Before: page[1].ID})
	if err != nil || len(next) != 3 || next[0].ID != 3 {
		t.Fatalf("second page: %v %+v", err, next)
	}
	if next[0].UserID != "" || next[0].EntityID != "ar_1" {
		t.Fatalf("nullable columns: %+v", next[0])
	}
}

func ptr(s string) *string { return &s }
