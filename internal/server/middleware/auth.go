package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/vrcreator/internal/auth"
)

// LocalSubject is the identity given to every caller when auth is disabled.
const LocalSubject = "local"

// Auth authenticates requests with a bearer token or, for clients that cannot
// set headers (EventSource, WebSocket in browsers), a token query parameter.
// With an empty secret every request passes as the local operator.
func Auth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if jwtSecret == "" {
				next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), LocalSubject, auth.RoleOperator)))
				return
			}

			tok := extractBearer(r)
			if tok == "" {
				tok = r.URL.Query().Get("token")
			}
			if tok != "" {
				claims, err := auth.ValidateToken(jwtSecret, tok)
				if err == nil {
					next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), claims.Subject, claims.Role)))
					return
				}
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("middleware.Auth: token rejected")
			}

			http.Error(w, `{"title":"Unauthorized","status":401,"detail":"missing or invalid credentials"}`, http.StatusUnauthorized)
		})
	}
}

func withIdentity(ctx context.Context, subject, role string) context.Context {
	ctx = context.WithValue(ctx, ContextKeySubject, subject)
	return context.WithValue(ctx, ContextKeyRole, role)
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return h[7:]
	}
	return ""
}
