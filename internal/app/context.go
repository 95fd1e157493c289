package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"siteplan/internal/config"
	"siteplan/internal/db"
	"siteplan/internal/domain"
	"siteplan/internal/engine"
	"siteplan/internal/migrate"
	"siteplan/internal/obs"
)

// ErrNotInitialized is returned when a command runs against a workspace that
// has no database yet.
var ErrNotInitialized = errors.New("workspace not initialized; run `siteplan init`")

// ErrNoActor is returned when a write needs an actor and none was given.
var ErrNoActor = errors.New("no actor: pass --actor or set SITEPLAN_ACTOR")

type Options struct {
	Dir        string
	ConfigPath string
	// Create allows opening a workspace that has no database yet.
	Create bool
	// Logger overrides the logger built from the config.
	Logger *zap.Logger
}

// Workspace bundles the resources a command works with.
type Workspace struct {
	Dir    string
	Config *config.Config
	Logger *zap.Logger
	DB     *sql.DB
	Engine engine.Engine
}

// Open loads the config, opens the database, applies pending migrations and
// builds the engine.
func Open(ctx context.Context, opts Options) (*Workspace, error) {
	if !opts.Create && !db.Exists(opts.Dir) {
		return nil, ErrNotInitialized
	}
	cfg, err := config.Load(opts.Dir, opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger, err = obs.NewLogger(cfg.Log.Level, cfg.Log.Format)
		if err != nil {
			return nil, err
		}
	}
	conn, err := db.Open(db.Config{Workspace: opts.Dir})
	if err != nil {
		return nil, err
	}
	applied, err := migrate.Migrate(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if applied > 0 {
		logger.Info("applied migrations", zap.Int("count", applied), zap.String("db", db.Path(opts.Dir)))
	}
	return &Workspace{
		Dir:    opts.Dir,
		Config: cfg,
		Logger: logger,
		DB:     conn,
		Engine: engine.New(conn, cfg, logger),
	}, nil
}

func (w *Workspace) Close() error {
	_ = w.Logger.Sync()
	return w.DB.Close()
}

// Actor resolves the acting user by username.
func (w *Workspace) Actor(ctx context.Context, username string) (domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return domain.User{}, ErrNoActor
	}
	return w.Engine.Actor(ctx, username)
}

// Init creates a workspace: the config file (unless one exists), the database
// and the first Construction Manager.
func Init(ctx context.Context, opts Options, username, password string) (*Workspace, domain.User, error) {
	if db.Exists(opts.Dir) {
		return nil, domain.User{}, fmt.Errorf("workspace already initialized at %s", db.Path(opts.Dir))
	}
	if _, err := db.EnsureWorkspace(opts.Dir); err != nil {
		return nil, domain.User{}, err
	}
	if opts.ConfigPath == "" {
		path := config.Path(opts.Dir)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return nil, domain.User{}, fmt.Errorf("write config: %w", err)
			}
		}
	}
	opts.Create = true
	ws, err := Open(ctx, opts)
	if err != nil {
		return nil, domain.User{}, err
	}
	u, err := ws.Engine.Bootstrap(ctx, username, password)
	if err != nil {
		ws.Close()
		return nil, domain.User{}, err
	}
	return ws, u, nil
}
