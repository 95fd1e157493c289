package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"siteplan/internal/audit"
	"siteplan/internal/domain"
	"siteplan/internal/engine/auth"
	"siteplan/internal/ids"
	"siteplan/internal/repo"
)

var (
	ErrAlreadyInitialized = errors.New("workspace already has users")
	ErrLastManager        = errors.New("at least one Construction Manager must remain")
)

func parseRole(raw string) (domain.Role, error) {
	role, err := domain.ParseRole(raw)
	if err != nil {
		return "", invalidf("%v", err)
	}
	return role, nil
}

func (e Engine) newUser(username, password, role string) (domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return domain.User{}, invalidf("username is required")
	}
	r, err := parseRole(role)
	if err != nil {
		return domain.User{}, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, invalidf("%v", err)
	}
	return domain.User{
		ID:           ids.New(ids.PrefixUser),
		Username:     username,
		PasswordHash: hash,
		Role:         r,
		CreatedAt:    e.timestamp(),
	}, nil
}

// Bootstrap creates the first Construction Manager of an empty workspace.
func (e Engine) Bootstrap(ctx context.Context, username, password string) (u domain.User, err error) {
	ctx, span := startSpan(ctx, "Bootstrap", domain.User{Username: username})
	defer func() { endSpan(span, err) }()

	u, err = e.newUser(username, password, string(domain.RoleConstructionManager))
	if err != nil {
		return domain.User{}, err
	}
	err = e.inTx(ctx, func(r repo.Repo, tx *sql.Tx) error {
		n, err := r.CountUsers(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrAlreadyInitialized
		}
		if err := r.InsertUser(ctx, u); err != nil {
			return err
		}
		return e.writer().Append(ctx, tx, audit.Actor{Username: "system"}, audit.ActionCreate, audit.KindUser, u.ID,
			audit.Details{"username": u.Username, "role": u.Role, "bootstrap": true})
	})
	if err != nil {
		return domain.User{}, err
	}
	e.Logger.Info("workspace bootstrapped", zap.String("username", u.Username))
	return u, nil
}

// Authenticate checks a username/password pair and records the login.
// Unknown users and wrong passwords yield the same error.
func (e Engine) Authenticate(ctx context.Context, username, password string) (u domain.User, err error) {
	ctx, span := startSpan(ctx, "Authenticate", domain.User{Username: username})
	defer func() { endSpan(span, err) }()

	u, err = e.Repo.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, repo.ErrNotFound) {
		e.Logger.Info("login failed", zap.String("username", username))
		return domain.User{}, auth.ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, err
	}
	if err := auth.VerifyPassword(u.PasswordHash, password); err != nil {
		e.Logger.Info("login failed", zap.String("username", username))
		return domain.User{}, err
	}
	err = e.inTx(ctx, func(_ repo.Repo, tx *sql.Tx) error {
		return e.record(ctx, tx, u, audit.ActionLogin, audit.KindUser, u.ID, nil)
	})
	if err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// Actor resolves a username to a user without checking credentials. The CLI
// uses it for --actor; network callers must go through Authenticate.
func (e Engine) Actor(ctx context.Context, username string) (domain.User, error) {
	u, err := e.Repo.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, invalidf("unknown user %q", username)
	}
	return u, err
}

// UserByID reloads a user, e.g. from a token subject.
func (e Engine) UserByID(ctx context.Context, id string) (domain.User, error) {
	return e.Repo.GetUser(ctx, id)
}

func (e Engine) CreateUser(ctx context.Context, actor domain.User, username, password, role string) (u domain.User, err error) {
	ctx, span := startSpan(ctx, "CreateUser", actor)
	defer func() { endSpan(span, err) }()

	if err := auth.Require(actor, auth.PermManageUsers); err != nil {
		return domain.User{}, err
	}
	u, err = e.newUser(username, password, role)
	if err != nil {
		return domain.User{}, err
	}
	err = e.inTx(ctx, func(r repo.Repo, tx *sql.Tx) error {
		if err := r.InsertUser(ctx, u); err != nil {
			return err
		}
		return e.record(ctx, tx, actor, audit.ActionCreate, audit.KindUser, u.ID, audit.Details{"username": u.Username, "role": u.Role})
	})
	if err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// SetUserRole changes a user's role. The last Construction Manager cannot be
// demoted.
func (e Engine) SetUserRole(ctx context.Context, actor domain.User, id, role string) (u domain.User, err error) {
	ctx, span := startSpan(ctx, "SetUserRole", actor, attribute.String("user.id", id))
	defer func() { endSpan(span, err) }()

	if err := auth.Require(actor, auth.PermManageUsers); err != nil {
		return domain.User{}, err
	}
	newRole, err := parseRole(role)
	if err != nil {
		return domain.User{}, err
	}
	err = e.inTx(ctx, func(r repo.Repo, tx *sql.Tx) error {
		stored, err := r.GetUser(ctx, id)
		if err != nil {
			return err
		}
		if err := ensureManagerRemains(ctx, r, stored, newRole); err != nil {
			return err
		}
		u = stored
		u.Role = newRole
		if err := r.UpdateUser(ctx, u); err != nil {
			return err
		}
		return e.record(ctx, tx, actor, audit.ActionUpdate, audit.KindUser, u.ID, audit.Details{"from": stored.Role, "to": u.Role})
	})
	if err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// ChangePassword lets users change their own password; managing other users'
// passwords needs the user-management permission.
func (e Engine) ChangePassword(ctx context.Context, actor domain.User, id, password string) (err error) {
	ctx, span := startSpan(ctx, "ChangePassword", actor, attribute.String("user.id", id))
	defer func() { endSpan(span, err) }()

	if actor.ID != id {
		if err := auth.Require(actor, auth.PermManageUsers); err != nil {
			return err
		}
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return invalidf("%v", err)
	}
	return e.inTx(ctx, func(r repo.Repo, tx *sql.Tx) error {
		u, err := r.GetUser(ctx, id)
		if err != nil {
			return err
		}
		u.PasswordHash = hash
		if err := r.UpdateUser(ctx, u); err != nil {
			return err
		}
		return e.record(ctx, tx, actor, audit.ActionUpdate, audit.KindUser, u.ID, audit.Details{"password": "changed"})
	})
}

func (e Engine) DeleteUser(ctx context.Context, actor domain.User, id string) (err error) {
	ctx, span := startSpan(ctx, "DeleteUser", actor, attribute.String("user.id", id))
	defer func() { endSpan(span, err) }()

	if err := auth.Require(actor, auth.PermManageUsers); err != nil {
		return err
	}
	if actor.ID == id {
		return invalidf("users cannot delete themselves")
	}
	return e.inTx(ctx, func(r repo.Repo, tx *sql.Tx) error {
		stored, err := r.GetUser(ctx, id)
		if err != nil {
			return err
		}
		if err := ensureManagerRemains(ctx, r, stored, ""); err != nil {
			return err
		}
		if err := r.DeleteUser(ctx, id); err != nil {
			return err
		}
		return e.record(ctx, tx, actor, audit.ActionDelete, audit.KindUser, id, audit.Details{"username": stored.Username})
	})
}

func ensureManagerRemains(ctx context.Context, r repo.Repo, u domain.User, newRole domain.Role) error {
	if u.Role != domain.RoleConstructionManager || newRole == domain.RoleConstructionManager {
		return nil
	}
	n, err := r.CountUsersWithRole(ctx, domain.RoleConstructionManager)
	if err != nil {
		return err
	}
	if n <= 1 {
		return ErrLastManager
	}
	return nil
}

func (e Engine) ListUsers(ctx context.Context, actor domain.User) ([]domain.User, error) {
	if err := auth.Require(actor, auth.PermManageUsers); err != nil {
		return nil, err
	}
	return e.Repo.ListUsers(ctx)
}
