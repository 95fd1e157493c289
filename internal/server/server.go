package server

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"siteplan/internal/domain"
	"siteplan/internal/engine"
	"siteplan/internal/engine/auth"
	"siteplan/internal/gantt"
	"siteplan/internal/obs"
	"siteplan/internal/repo"
	"siteplan/internal/schedule"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Logger   *zap.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"overlapping_assignment"`
	Message string         `json:"message" example:"overlapping assignment: 2025-03-05..2025-03-06"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError is the error envelope of every non-2xx response.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

type output[T any] struct {
	Body T
}

type idPath struct {
	ID string `path:"id"`
}

// New returns an HTTP handler exposing the siteplan API under cfg.BasePath,
// plus /metrics at the root.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.Auth.Tokens.Secret) == 0 {
		return nil, errors.New("jwt secret not configured")
	}
	if cfg.Auth.Tokens.TTL <= 0 && cfg.Engine.Config != nil {
		cfg.Auth.Tokens.TTL = cfg.Engine.Config.Session.TTL
	}

	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// request schema failures are the caller's input, not a domain rejection
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(requestLogger(logger))
	router.Use(obs.Instrument)
	router.Use(newAuthMiddleware(basePath, cfg.Auth.Tokens, cfg.Engine, logger))
	router.Handle("/metrics", obs.Handler())

	hcfg := huma.DefaultConfig("Siteplan API", "1.0.0")
	hcfg.OpenAPIPath = basePath + "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerAuth(group, cfg.Engine, cfg.Auth, logger)
	registerTeams(group, cfg.Engine)
	registerArtisans(group, cfg.Engine)
	registerProjects(group, cfg.Engine)
	registerAssignments(group, cfg.Engine)
	registerUsers(group, cfg.Engine)
	registerViews(group, cfg.Engine)

	return otelhttp.NewHandler(router, "siteplan.http"), nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps engine errors onto the API envelope. Validator rejections
// use their reason as the code and carry the conflicting assignment ids.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if rej, ok := schedule.AsRejection(err); ok {
		details := map[string]any{}
		if len(rej.Conflicts) > 0 {
			details["conflicts"] = rej.Conflicts
		}
		return newAPIError(http.StatusUnprocessableEntity, string(rej.Reason), err.Error(), details)
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"permission": fe.Permission})
	}
	var ee domain.EnumError
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, repo.ErrDuplicate):
		return newAPIError(http.StatusConflict, "duplicate", err.Error(), nil)
	case errors.Is(err, repo.ErrOverlap):
		return newAPIError(http.StatusUnprocessableEntity, string(schedule.ReasonOverlappingAssignment), err.Error(), nil)
	case errors.Is(err, engine.ErrLastManager), errors.Is(err, engine.ErrAlreadyInitialized):
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	case errors.Is(err, auth.ErrInvalidCredentials):
		return newAPIError(http.StatusUnauthorized, "invalid_credentials", err.Error(), nil)
	case errors.Is(err, engine.ErrInvalidInput), errors.As(err, &ee),
		errors.Is(err, repo.ErrReference), errors.Is(err, repo.ErrConstraint):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil)
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// requestLogger tags each request with an id and logs its outcome.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-Id")
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set("X-Request-Id", id)
			sw := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(sw, r)
			logger.Info("http request",
				zap.String("request_id", id),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", sw.code),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*output[StatusResponse], error) {
		return &output[StatusResponse]{Body: StatusResponse{Status: "ok"}}, nil
	})
}

func registerAuth(api huma.API, e engine.Engine, cfg AuthConfig, logger *zap.Logger) {
	limiter := newLoginLimiter(cfg.LoginRate, cfg.LoginBurst)
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Exchange username and password for a session token",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusTooManyRequests},
	}, func(ctx context.Context, input *struct{ Body LoginRequest }) (*output[LoginResponse], error) {
		if !limiter.Allow(input.Body.Username) {
			logger.Warn("login rate limited", zap.String("username", input.Body.Username))
			return nil, newAPIError(http.StatusTooManyRequests, "rate_limited", "too many login attempts", nil)
		}
		u, err := e.Authenticate(ctx, input.Body.Username, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		token, exp, err := cfg.Tokens.Issue(u)
		if err != nil {
			return nil, handleError(err)
		}
		return &output[LoginResponse]{Body: LoginResponse{Token: token, ExpiresAt: exp, User: u}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current user",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*output[MeResponse], error) {
		u, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		perms := []string{}
		for _, p := range auth.Permissions(u.Role) {
			perms = append(perms, string(p))
		}
		return &output[MeResponse]{Body: MeResponse{User: u, Permissions: perms}}, nil
	})
}

var writeErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusUnprocessableEntity,
}

func registerTeams(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-team",
		Method:        http.MethodPost,
		Path:          "/teams",
		Summary:       "Create team",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct{ Body TeamRequest }) (*output[domain.Team], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CreateTeam(ctx, actor, input.Body.input())
		if err != nil {
			return nil, handleError(err)
		}
		return &output[domain.Team]{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-teams",
		Method:      http.MethodGet,
		Path:        "/teams",
		Summary:     "List teams",
	}, func(ctx context.Context, _ *struct{}) (*output[[]domain.Team], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListTeams(ctx, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &output[[]domain.Team]{Body: nonNil(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-team",
		Method:      http.MethodGet,
		Path:        "/teams/{id}",
		Summary:     "Get team",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*output[domain.Team], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.GetTeam(ctx, actor, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &output[domain.Team]{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-team",
		Method:      http.MethodPatch,
		Path:        "/teams/{id}",
		Summary:     "Update team",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body TeamPatch
	}) (*output[domain.Team], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.UpdateTeam(ctx, actor, input.Body.update(input.ID))
		if err != nil {
			return nil, handleError(err)
		}
		return &output[domain.Team]{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-team",
		Method:        http.MethodDelete,
		Path:          "/teams/{id}",
		Summary:       "Delete team; members stay, without a team",
		DefaultStatus: http.StatusNoContent,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *idPath) (*struct{}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteTeam(ctx, actor, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerArtisans(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-artisan",
		Method:        http.MethodPost,
		Path:          "/artisans",
		Summary:       "Create artisan",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct{ Body ArtisanRequest }) (*output[domain.Artisan], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.CreateArtisan(ctx, actor, input.Body.input())
		if err != nil {
			return nil, handleError(err)
		}
		return &output[domain.Artisan]{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-artisans",
		Method:      http.MethodGet,
		Path:        "/artisans",
		Summary:     "List artisans",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		TeamID       string `query:"team_id"`
		Skill        string `query:"skill"`
		Availability string `query:"availability"`
	}) (*output[[]domain.Artisan], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListArtisans(ctx, actor, engine.ArtisanQuery{TeamID: input.TeamID, Skill: input.Skill, Availability: input.Availability})
		if err != nil {
			return nil, handleError(err)
		}
		return &output[[]domain.Artisan]{Body: nonNil(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-artisan",
		Method:      http.MethodGet,
		Path:        "/artisans/{id}",
		Summary:     "Get artisan",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*output[domain.Artisan], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.GetArtisan(ctx, actor, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &output[domain.Artisan]{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-artisan",
		Method:      http.MethodPatch,
		Path:        "/artisans/{id}",
		Summary:     "Update artisan",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body ArtisanPatch
	}) (*output[domain.Artisan], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.UpdateArtisan(ctx, actor, input.Body.update(input.ID))
		if err != nil {
			return nil, handleError(err)
		}
		return &output[domain.Artisan]{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-artisan",
		Method:        http.MethodDelete,
		Path:          "/artisans/{id}",
		Summary:       "Delete artisan and their assignments",
		DefaultStatus: http.StatusNoContent,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *idPath) (*struct{}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteArtisan(ctx, actor, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct{ Body ProjectRequest }) (*output[domain.Project], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreateProject(ctx, actor, input.Body.input())
		if err != nil {
			return nil, handleError(err)
		}
		return &output[domain.Project]{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "staff-project",
		Method:        http.MethodPost,
		Path:          "/projects/staff",
		Summary:       "Create a project and book artisans for its whole duration",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct{ Body StaffRequest }) (*output[engine.StaffResult], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.StaffProject(ctx, actor, input.Body.input())
		if err != nil {
			return nil, handleError(err)
		}
		return &output[engine.StaffResult]{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status"`
	}) (*output[[]domain.Project], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListProjects(ctx, actor, input.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &output[[]domain.Project]{Body: nonNil(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*output[domain.Project], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.GetProject(ctx, actor, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &output[domain.Project]{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{id}",
		Summary:     "Update project",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body ProjectPatch
	}) (*output[domain.Project], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.UpdateProject(ctx, actor, input.Body.update(input.ID))
		if err != nil {
			return nil, handleError(err)
		}
		return &output[domain.Project]{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-project",
		Method:        http.MethodDelete,
		Path:          "/projects/{id}",
		Summary:       "Delete project and its assignments",
		DefaultStatus: http.StatusNoContent,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *idPath) (*struct{}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteProject(ctx, actor, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerAssignments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-assignment",
		Method:        http.MethodPost,
		Path:          "/assignments",
		Summary:       "Validate and commit an assignment",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct{ Body AssignmentRequest }) (*output[domain.Assignment], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.CreateAssignment(ctx, actor, input.Body.input())
		if err != nil {
			return nil, handleError(err)
		}
		return &output[domain.Assignment]{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "check-assignment",
		Method:      http.MethodPost,
		Path:        "/assignments/check",
		Summary:     "Validate an assignment without writing it",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct{ Body CheckAssignmentRequest }) (*output[CheckResponse], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.CheckAssignment(ctx, actor, input.Body.input(), input.Body.ExcludingID); err != nil {
			return nil, handleError(err)
		}
		return &output[CheckResponse]{Body: CheckResponse{OK: true}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-assignments",
		Method:      http.MethodGet,
		Path:        "/assignments",
		Summary:     "List assignments",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ArtisanID string `query:"artisan_id"`
		ProjectID string `query:"project_id"`
		Status    string `query:"status"`
		From      string `query:"from" doc:"Keep assignments ending on or after this date"`
		To        string `query:"to" doc:"Keep assignments starting on or before this date"`
	}) (*output[[]domain.Assignment], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListAssignments(ctx, actor, engine.AssignmentQuery{
			ArtisanID: input.ArtisanID, ProjectID: input.ProjectID, Status: input.Status, From: input.From, To: input.To,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &output[[]domain.Assignment]{Body: nonNil(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-assignment",
		Method:      http.MethodGet,
		Path:        "/assignments/{id}",
		Summary:     "Get assignment",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*output[domain.Assignment], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.GetAssignment(ctx, actor, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &output[domain.Assignment]{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-assignment",
		Method:      http.MethodPatch,
		Path:        "/assignments/{id}",
		Summary:     "Validate and apply changes to an assignment",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body AssignmentPatch
	}) (*output[domain.Assignment], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.UpdateAssignment(ctx, actor, input.Body.update(input.ID))
		if err != nil {
			return nil, handleError(err)
		}
		return &output[domain.Assignment]{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-assignment",
		Method:        http.MethodDelete,
		Path:          "/assignments/{id}",
		Summary:       "Delete assignment",
		DefaultStatus: http.StatusNoContent,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *idPath) (*struct{}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteAssignment(ctx, actor, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerUsers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Create user",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct{ Body CreateUserRequest }) (*output[domain.User], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.CreateUser(ctx, actor, input.Body.Username, input.Body.Password, input.Body.Role)
		if err != nil {
			return nil, handleError(err)
		}
		return &output[domain.User]{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*output[[]domain.User], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListUsers(ctx, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &output[[]domain.User]{Body: nonNil(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-user-role",
		Method:      http.MethodPut,
		Path:        "/users/{id}/role",
		Summary:     "Change a user's role",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body RoleRequest
	}) (*output[domain.User], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.SetUserRole(ctx, actor, input.ID, input.Body.Role)
		if err != nil {
			return nil, handleError(err)
		}
		return &output[domain.User]{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "set-user-password",
		Method:        http.MethodPut,
		Path:          "/users/{id}/password",
		Summary:       "Change a password",
		DefaultStatus: http.StatusNoContent,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body PasswordRequest
	}) (*struct{}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.ChangePassword(ctx, actor, input.ID, input.Body.Password); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-user",
		Method:        http.MethodDelete,
		Path:          "/users/{id}",
		Summary:       "Delete user",
		DefaultStatus: http.StatusNoContent,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *idPath) (*struct{}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteUser(ctx, actor, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

type fileOutput struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}

type windowQuery struct {
	From string `query:"from" doc:"First day of the window, YYYY-MM-DD; defaults to today"`
	Days int    `query:"days" minimum:"0" maximum:"366" doc:"Window length; defaults to schedule.window_days"`
}

func (q windowQuery) start(e engine.Engine) (time.Time, error) {
	if q.From == "" {
		now := time.Now
		if e.Now != nil {
			now = e.Now
		}
		today := now().UTC()
		return time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	t, err := schedule.ParseDate(q.From)
	if err != nil {
		return time.Time{}, newAPIError(http.StatusBadRequest, "bad_request", "from must be a YYYY-MM-DD date", nil)
	}
	return t, nil
}

func registerViews(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "gantt",
		Method:      http.MethodGet,
		Path:        "/gantt",
		Summary:     "Gantt chart data for a window of days",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *windowQuery) (*output[gantt.Chart], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		from, err := input.start(e)
		if err != nil {
			return nil, err
		}
		chart, err := e.Gantt(ctx, actor, from, input.Days)
		if err != nil {
			return nil, handleError(err)
		}
		return &output[gantt.Chart]{Body: chart}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "export-xlsx",
		Method:      http.MethodGet,
		Path:        "/export/schedule.xlsx",
		Summary:     "Gantt window as a spreadsheet",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *windowQuery) (*fileOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		from, err := input.start(e)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := e.ExportXLSX(ctx, actor, &buf, from, input.Days); err != nil {
			return nil, handleError(err)
		}
		return &fileOutput{
			ContentType:        "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			ContentDisposition: `attachment; filename="schedule.xlsx"`,
			Body:               buf.Bytes(),
		}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "export-ics",
		Method:      http.MethodGet,
		Path:        "/export/assignments.ics",
		Summary:     "Assignments as an iCalendar feed",
	}, func(ctx context.Context, input *struct {
		ArtisanID string `query:"artisan_id"`
	}) (*fileOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		var buf bytes.Buffer
		if _, err := e.ExportICS(ctx, actor, &buf, input.ArtisanID); err != nil {
			return nil, handleError(err)
		}
		return &fileOutput{
			ContentType:        "text/calendar; charset=utf-8",
			ContentDisposition: `attachment; filename="assignments.ics"`,
			Body:               buf.Bytes(),
		}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "audit",
		Method:      http.MethodGet,
		Path:        "/audit",
		Summary:     "Audit log, newest first",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		UserID     string `query:"user_id"`
		Before     int64  `query:"before" doc:"Only entries with a smaller id"`
		Limit      int    `query:"limit" maximum:"500"`
	}) (*output[[]domain.AuditEntry], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListAudit(ctx, actor, repo.AuditFilters{
			EntityKind: input.EntityKind, EntityID: input.EntityID, UserID: input.UserID,
			Before: input.Before, Limit: input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &output[[]domain.AuditEntry]{Body: nonNil(items)}, nil
	})
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
