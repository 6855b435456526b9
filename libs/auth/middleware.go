package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/edusched/school/libs/httpx"
)

type ctxKey struct{}

func WithUser(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// CurrentUser returns the authenticated caller, if any.
func CurrentUser(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(ctxKey{}).(*Claims)
	return c, ok && c != nil
}

// Require rejects requests without a valid token.
func Require(s *Signer, logger *slog.Logger) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if h == "" {
				httpx.WriteError(w, http.StatusUnauthorized, "No authorization header")
				return
			}
			claims, err := s.Parse(TokenFromHeader(h))
			if err != nil {
				logger.Warn("authentication failed",
					"request_id", httpx.RequestIDFromContext(r.Context()),
					"err", err,
				)
				httpx.WriteError(w, http.StatusUnauthorized, "Authentication failed")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), claims)))
		})
	}
}

// Optional attaches the caller when a valid token is present and otherwise
// lets the request through anonymously.
func Optional(s *Signer, logger *slog.Logger) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if h == "" {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := s.Parse(TokenFromHeader(h))
			if err != nil {
				logger.Debug("optional auth ignored invalid token", "err", err)
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), claims)))
		})
	}
}

// RequireRole lets through callers whose token carries one of roles. It reads
// the claims attached by Require, so it must be installed after it.
func RequireRole(roles ...string) httpx.Middleware {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, ok := CurrentUser(r.Context())
			if !ok {
				httpx.WriteError(w, http.StatusUnauthorized, "Authentication failed")
				return
			}
			if _, ok := allowed[c.Role]; !ok {
				httpx.WriteError(w, http.StatusForbidden, "Forbidden: insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
