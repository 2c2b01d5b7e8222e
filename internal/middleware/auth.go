// Package middleware contains HTTP middleware for the quota ledger API.
//
// Middleware functions follow the standard Go pattern of wrapping
// http.Handler and are composed with Stack.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/DukeRupert/quotaledger/internal/auth"
	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/DukeRupert/quotaledger/internal/handler"
	"github.com/DukeRupert/quotaledger/internal/service"
)

// GetUser retrieves the authenticated user from the request context.
// Returns nil if the request carried no valid token.
func GetUser(ctx context.Context) *domain.User {
	return auth.GetUser(ctx)
}

// =============================================================================
// Auth Middleware
// =============================================================================

// AuthMiddleware authenticates requests by API token.
//
// Clients send "Authorization: Bearer <token>". Failed attempts are counted
// per client IP; once the limiter trips, further attempts from that IP are
// answered 429 without touching the database.
type AuthMiddleware struct {
	userService service.UserService
	failures    *RateLimiter
	logger      *slog.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware. failures may be nil to
// disable throttling.
func NewAuthMiddleware(userService service.UserService, failures *RateLimiter, logger *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		userService: userService,
		failures:    failures,
		logger:      logger,
	}
}

// WithUser loads the user for a bearer token into the request context.
//
// Requests without an Authorization header continue anonymously. A header
// carrying an invalid token is rejected with 401 rather than downgraded to
// anonymous, so clients notice revoked tokens.
func (m *AuthMiddleware) WithUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		clientIP := getClientIP(r)
		if m.failures != nil && m.failures.Blocked(clientIP) {
			m.logger.Warn("auth attempts throttled", "ip", clientIP, "path", r.URL.Path)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(m.failures, clientIP)))
			handler.ErrorResponse(w, r, m.logger, domain.RateLimit("auth.with_user"))
			return
		}

		token, ok := bearerToken(header)
		if !ok {
			m.reject(w, r, clientIP)
			return
		}

		user, err := m.userService.GetByToken(r.Context(), token)
		if err != nil {
			if domain.ErrorCode(err) != domain.EUNAUTHORIZED {
				handler.ErrorResponse(w, r, m.logger, err)
				return
			}
			m.reject(w, r, clientIP)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.SetUser(r.Context(), user)))
	})
}

// RequireUser answers 401 unless WithUser authenticated the request.
// It must run after WithUser.
func (m *AuthMiddleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUser(r.Context()) == nil {
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Authenticated is WithUser followed by RequireUser.
func (m *AuthMiddleware) Authenticated(next http.Handler) http.Handler {
	return m.WithUser(m.RequireUser(next))
}

func (m *AuthMiddleware) reject(w http.ResponseWriter, r *http.Request, clientIP string) {
	if m.failures != nil {
		m.failures.RecordFailure(clientIP)
	}
	m.logger.Info("invalid api token", "ip", clientIP, "path", r.URL.Path)
	handler.UnauthorizedResponse(w, r, m.logger)
}

// bearerToken extracts the token from an Authorization header value.
// The scheme is case-insensitive.
func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// =============================================================================
// Middleware Stack Helpers
// =============================================================================

// Stack composes middleware so the first one listed is the outermost.
//
//	stack := Stack(logging.Handler, authMw.WithUser, authMw.RequireUser)
//	mux.Handle("GET /user/usage", stack(usageHandler))
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

var (
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).WithUser
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).RequireUser
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).Authenticated
)
