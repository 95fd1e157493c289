package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"siteplan/internal/audit"
	"siteplan/internal/config"
	"siteplan/internal/domain"
	"siteplan/internal/repo"
)

// ErrInvalidInput marks caller-correctable input problems outside the
// assignment validator: bad enum values, project dates, negative amounts.
var ErrInvalidInput = errors.New("invalid input")

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

var tracer = otel.Tracer("siteplan/internal/engine")

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Audit  audit.Writer
	Config *config.Config
	Logger *zap.Logger
	Now    func() time.Time

	locks *keyedMutex
}

func New(db *sql.DB, cfg *config.Config, logger *zap.Logger) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Config: cfg,
		Logger: logger,
		Now:    time.Now,
		locks:  newKeyedMutex(),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) writer() audit.Writer {
	w := e.Audit
	if w.Now == nil {
		w.Now = e.now
	}
	return w
}

// inTx runs fn in a transaction with a repo bound to it, committing only if
// fn succeeds.
func (e Engine) inTx(ctx context.Context, fn func(r repo.Repo, tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(e.Repo.WithTx(tx), tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) record(ctx context.Context, tx *sql.Tx, actor domain.User, action, kind, id string, details audit.Details) error {
	return e.writer().Append(ctx, tx, audit.Actor{UserID: actor.ID, Username: actor.Username}, action, kind, id, details)
}

func startSpan(ctx context.Context, name string, actor domain.User, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("actor.username", actor.Username))
	return tracer.Start(ctx, "engine."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func nonNegative(field string, v float64) error {
	if !finite(v) || v < 0 {
		return invalidf("%s must be a non-negative number", field)
	}
	return nil
}
