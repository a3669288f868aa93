package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/vrcreator/internal/auth"
	"github.com/gosuda/vrcreator/internal/server/middleware"
)

const testJWTSecret = "test-jwt-secret-for-middleware-tests"

// okHandler is a simple handler that writes 200 OK.
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { //nolint:gochecknoglobals // test fixture
	w.WriteHeader(http.StatusOK)
})

// contextHandler records the identity Auth stored in the request context.
type contextHandler struct {
	called  bool
	subject string
	role    string
}

func (h *contextHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.called = true
	h.subject, _ = middleware.SubjectFromContext(r.Context())
	h.role, _ = middleware.RoleFromContext(r.Context())
	w.WriteHeader(http.StatusOK)
}

func issue(t *testing.T, role string, ttl time.Duration) string {
	t.Helper()
	tok, err := auth.IssueToken(testJWTSecret, "alice", role, ttl)
	require.NoError(t, err)
	return tok
}

// withRole runs the request through Auth so RoleFromContext is populated.
func withRole(t *testing.T, role string, next http.Handler) http.Handler {
	t.Helper()
	tok := issue(t, role, time.Minute)
	authed := middleware.Auth(testJWTSecret)(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+tok)
		authed.ServeHTTP(w, r)
	})
}

// ===========================================================================
// 1. Context helpers
// ===========================================================================

func TestContextHelpers_Absent(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	_, ok := middleware.SubjectFromContext(req.Context())
	assert.False(t, ok)
	_, ok = middleware.RoleFromContext(req.Context())
	assert.False(t, ok)
}

// ===========================================================================
// 2. Auth middleware
// ===========================================================================

func TestAuth_Disabled_IsLocalOperator(t *testing.T) {
	t.Parallel()

	capture := &contextHandler{}
	rec := httptest.NewRecorder()
	middleware.Auth("")(capture).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	require.True(t, capture.called)
	assert.Equal(t, middleware.LocalSubject, capture.subject)
	assert.Equal(t, auth.RoleOperator, capture.role)
}

func TestAuth_ValidToken_PopulatesContext(t *testing.T) {
	t.Parallel()

	tok := issue(t, auth.RoleViewer, 15*time.Minute)

	tests := []struct {
		name string
		req  func() *http.Request
	}{
		{
			name: "bearer header",
			req: func() *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
				r.Header.Set("Authorization", "Bearer "+tok)
				return r
			},
		},
		{
			name: "query parameter",
			req: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/events?token="+tok, http.NoBody)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			capture := &contextHandler{}
			rec := httptest.NewRecorder()
			middleware.Auth(testJWTSecret)(capture).ServeHTTP(rec, tt.req())

			require.True(t, capture.called, "inner handler must be called")
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "alice", capture.subject)
			assert.Equal(t, auth.RoleViewer, capture.role)
		})
	}
}

func TestAuth_Rejects(t *testing.T) {
	t.Parallel()

	expired := issue(t, auth.RoleOperator, -time.Second)
	foreign, err := auth.IssueToken("a-completely-different-secret-value", "bob", auth.RoleOperator, time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name       string
		authHeader string
	}{
		{name: "no credentials"},
		{name: "garbage token", authHeader: "Bearer totally.invalid.token"},
		{name: "expired token", authHeader: "Bearer " + expired},
		{name: "wrong secret", authHeader: "Bearer " + foreign},
		{name: "basic scheme", authHeader: "Basic " + issue(t, auth.RoleOperator, time.Minute)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()
			middleware.Auth(testJWTSecret)(okHandler).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), "Unauthorized")
		})
	}
}

func TestAuth_BearerCaseInsensitive(t *testing.T) {
	t.Parallel()

	tok := issue(t, auth.RoleOperator, time.Minute)
	for _, scheme := range []string{"Bearer ", "bearer ", "BEARER "} {
		req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		req.Header.Set("Authorization", scheme+tok)
		rec := httptest.NewRecorder()
		middleware.Auth(testJWTSecret)(okHandler).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, scheme)
	}
}

// ===========================================================================
// 3. Roles
// ===========================================================================

func TestRequireRole(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		role       string
		wantStatus int
	}{
		{name: "operator allowed", role: auth.RoleOperator, wantStatus: http.StatusOK},
		{name: "viewer forbidden", role: auth.RoleViewer, wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := withRole(t, tt.role, middleware.RequireRole(auth.RoleOperator)(okHandler))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", http.NoBody))
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestRequireRole_NoRoleInContext(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	middleware.RequireRole(auth.RoleOperator)(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRoleForWrites(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		role       string
		method     string
		wantStatus int
	}{
		{name: "viewer reads", role: auth.RoleViewer, method: http.MethodGet, wantStatus: http.StatusOK},
		{name: "viewer writes", role: auth.RoleViewer, method: http.MethodPost, wantStatus: http.StatusForbidden},
		{name: "viewer deletes", role: auth.RoleViewer, method: http.MethodDelete, wantStatus: http.StatusForbidden},
		{name: "operator writes", role: auth.RoleOperator, method: http.MethodPost, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := withRole(t, tt.role, middleware.RequireRoleForWrites(auth.RoleOperator)(okHandler))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, "/", http.NoBody))
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

// ===========================================================================
// 4. RateLimitByIP
// ===========================================================================

func TestRateLimitByIP_BurstExceeded_Returns429(t *testing.T) {
	t.Parallel()

	// Very low rate (effectively zero refill during the test) with burst of 2.
	handler := middleware.RateLimitByIP(t.Context(), 0.001, 2)(okHandler)

	for i := range 2 {
		req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equalf(t, http.StatusOK, rec.Code, "request %d should pass", i+1)
	}

	// A new source port is the same client.
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.RemoteAddr = "10.0.0.1:5678"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "rate limit exceeded")
}

func TestRateLimitByIP_IndependentPerIP(t *testing.T) {
	t.Parallel()

	handler := middleware.RateLimitByIP(t.Context(), 0.001, 1)(okHandler)

	for _, tc := range []struct {
		addr string
		want int
	}{
		{"10.0.0.1", http.StatusOK},
		{"10.0.0.1", http.StatusTooManyRequests},
		{"10.0.0.2", http.StatusOK},
	} {
		req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		req.RemoteAddr = tc.addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, tc.want, rec.Code, tc.addr)
	}
}
