package repo

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"siteplan/internal/domain"
)

func newMock(t *testing.T) (Repo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return Repo{DB: db}, mock
}

func TestTranslateMessages(t *testing.T) {
	cases := []struct {
		msg  string
		want error
	}{
		{"UNIQUE constraint failed: teams.name", ErrDuplicate},
		{"FOREIGN KEY constraint failed", ErrReference},
		{"assignment_overlap", ErrOverlap},
	}
	for _, tc := range cases {
		if got := translate(errors.New(tc.msg)); !errors.Is(got, tc.want) {
			t.Fatalf("%q: got %v want %v", tc.msg, got, tc.want)
		}
	}
	other := errors.New("disk I/O error")
	if got := translate(other); got != other {
		t.Fatalf("unrelated errors must pass through, got %v", got)
	}
	if translate(nil) != nil {
		t.Fatal("nil must stay nil")
	}
}

func TestExecOneReportsMissingRow(t *testing.T) {
	r, mock := newMock(t)
	mock.ExpectExec("DELETE FROM teams WHERE id=").WithArgs("tm_1").WillReturnResult(sqlmock.NewResult(0, 0))
	if err := r.DeleteTeam(context.Background(), "tm_1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	mock.ExpectExec("DELETE FROM teams WHERE id=").WithArgs("tm_2").WillReturnResult(sqlmock.NewResult(0, 1))
	if err := r.DeleteTeam(context.Background(), "tm_2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertTranslatesDriverErrors(t *testing.T) {
	r, mock := newMock(t)
	mock.ExpectExec("INSERT INTO teams").WillReturnError(errors.New("UNIQUE constraint failed: teams.name"))
	err := r.InsertTeam(context.Background(), domain.Team{ID: "tm_1", Name: "Framers"})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	mock.ExpectExec("INSERT INTO assignments").WillReturnError(errors.New("constraint failed: assignment_overlap (1811)"))
	err = r.InsertAssignment(context.Background(), domain.Assignment{ID: "as_1"})
	if !errors.Is(err, ErrOverlap) {
		t.Fatalf("expected ErrOverlap, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetMapsNoRows(t *testing.T) {
	r, mock := newMock(t)
	mock.ExpectQuery("SELECT (.+) FROM projects WHERE id=").WithArgs("pj_1").WillReturnError(sql.ErrNoRows)
	if _, err := r.GetProject(context.Background(), "pj_1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM artisans").WithArgs("ar_1").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
	ok, err := r.ArtisanExists(context.Background(), "ar_1")
	if err != nil || !ok {
		t.Fatalf("exists: %v %v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestWhere(t *testing.T) {
	if where(nil) != "" {
		t.Fatal("empty clauses should render nothing")
	}
	if got := where([]string{"a=?", "b=?"}); got != " WHERE a=? AND b=?" {
		t.Fatalf("unexpected %q", got)
	}
}
