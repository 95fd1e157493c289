package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrDuplicate  = errors.New("already exists")
	ErrReference  = errors.New("referenced record does not exist")
	ErrOverlap    = errors.New("assignment overlaps an existing assignment")
	ErrConstraint = errors.New("constraint violated")
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repo reads and writes the siteplan tables. The zero Tx runs statements
// directly on DB; WithTx binds every call to an open transaction.
type Repo struct {
	DB *sql.DB
	Tx *sql.Tx
}

// WithTx returns a copy of r whose statements run inside tx.
func (r Repo) WithTx(tx *sql.Tx) Repo {
	return Repo{DB: r.DB, Tx: tx}
}

func (r Repo) q() querier {
	if r.Tx != nil {
		return r.Tx
	}
	return r.DB
}

func (r Repo) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := r.q().ExecContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}
	return res, nil
}

// execOne runs a statement that must touch exactly one row.
func (r Repo) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) exists(ctx context.Context, table, id string) (bool, error) {
	var n int
	err := r.q().QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table+` WHERE id=?`, id).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// translate maps SQLite constraint failures to the package sentinels so that
// callers never need to inspect driver errors.
func translate(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %s", ErrDuplicate, constraintDetail(msg))
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return ErrReference
		case sqlite3.SQLITE_CONSTRAINT_TRIGGER:
			if strings.Contains(msg, "assignment_overlap") {
				return ErrOverlap
			}
			return fmt.Errorf("%w: %s", ErrConstraint, msg)
		case sqlite3.SQLITE_CONSTRAINT_CHECK, sqlite3.SQLITE_CONSTRAINT_NOTNULL:
			return fmt.Errorf("%w: %s", ErrConstraint, constraintDetail(msg))
		}
	}
	switch {
	case strings.Contains(msg, "assignment_overlap"):
		return ErrOverlap
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %s", ErrDuplicate, constraintDetail(msg))
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return ErrReference
	case strings.Contains(msg, "CHECK constraint failed"), strings.Contains(msg, "NOT NULL constraint failed"):
		return fmt.Errorf("%w: %s", ErrConstraint, constraintDetail(msg))
	}
	return err
}

func constraintDetail(msg string) string {
	if i := strings.Index(msg, "constraint failed: "); i >= 0 {
		return msg[i+len("constraint failed: "):]
	}
	return msg
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	s := ns.String
	return &s
}

// where joins clauses into a WHERE prefix, or returns "" when there are none.
func where(clauses []string) string {
	if len(clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(clauses, " AND ")
}
