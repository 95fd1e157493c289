package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"siteplan/internal/domain"
	"siteplan/internal/engine"
	"siteplan/internal/engine/auth"
	"siteplan/internal/repo"
)

type AuthConfig struct {
	Tokens auth.Tokens
	// LoginRate and LoginBurst bound login attempts per username.
	LoginRate  rate.Limit
	LoginBurst int
}

type userKey struct{}

func withUser(ctx context.Context, u domain.User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

func userFromContext(ctx context.Context) (domain.User, bool) {
	u, ok := ctx.Value(userKey{}).(domain.User)
	return u, ok
}

// actorFromContext returns the authenticated user of the request.
func actorFromContext(ctx context.Context) (domain.User, huma.StatusError) {
	if u, ok := userFromContext(ctx); ok && u.ID != "" {
		return u, nil
	}
	return domain.User{}, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// newAuthMiddleware requires a valid bearer token on every API route except
// health, login and the OpenAPI document. The user is reloaded on each request
// so role changes and deletions take effect before the token expires.
func newAuthMiddleware(basePath string, tokens auth.Tokens, e engine.Engine, logger *zap.Logger) func(http.Handler) http.Handler {
	open := map[string]bool{
		path.Join(basePath, "health"):       true,
		path.Join(basePath, "auth/login"):   true,
		path.Join(basePath, "openapi.json"): true,
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !strings.HasPrefix(req.URL.Path, basePath) || open[req.URL.Path] {
				next.ServeHTTP(w, req)
				return
			}
			token, ok := bearerToken(strings.TrimSpace(req.Header.Get("Authorization")))
			if !ok {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
				return
			}
			claims, err := tokens.Parse(token)
			if err != nil {
				logger.Debug("rejected token", zap.Error(err))
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
				return
			}
			u, err := e.UserByID(req.Context(), claims.Subject)
			if errors.Is(err, repo.ErrNotFound) {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
				return
			}
			if err != nil {
				respondStatusError(w, handleError(err))
				return
			}
			next.ServeHTTP(w, req.WithContext(withUser(req.Context(), u)))
		})
	}
}

// loginLimiter hands out one token bucket per username.
type loginLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets map[string]*loginBucket
}

type loginBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

const loginBucketTTL = 10 * time.Minute

func newLoginLimiter(limit rate.Limit, burst int) *loginLimiter {
	if limit == 0 {
		limit = rate.Every(12 * time.Second)
	}
	if burst <= 0 {
		burst = 5
	}
	return &loginLimiter{limit: limit, burst: burst, buckets: map[string]*loginBucket{}}
}

func (l *loginLimiter) Allow(username string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	for k, b := range l.buckets {
		if now.Sub(b.seen) > loginBucketTTL {
			delete(l.buckets, k)
		}
	}
	key := strings.ToLower(strings.TrimSpace(username))
	b, ok := l.buckets[key]
	if !ok {
		b = &loginBucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.seen = now
	return b.lim.Allow()
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}
