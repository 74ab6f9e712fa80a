package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"messenger/internal/service"
	apperrors "messenger/pkg/errors"
	"messenger/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeAuth принимает только токен "good"
type fakeAuth struct {
	service.AuthService
}

func (fakeAuth) VerifyToken(_ context.Context, token string) (string, error) {
	switch token {
	case "good":
		return "user-1", nil
	case "expired":
		return "", apperrors.ErrTokenExpired
	default:
		return "", apperrors.ErrInvalidToken
	}
}

type fakeLimiter struct {
	allowed bool
	err     error
}

func (f fakeLimiter) Allow(context.Context, string) (bool, int, error) {
	if f.err != nil {
		return false, 0, f.err
	}
	if f.allowed {
		return true, 9, nil
	}
	return false, 0, nil
}

func (fakeLimiter) Limit() int { return 10 }

func TestRequireAuth(t *testing.T) {
	auth := NewAuthMiddleware(fakeAuth{}, logger.Nop())

	r := gin.New()
	r.GET("/me", auth.RequireAuth(), func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c))
	})

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"missing header", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic good", http.StatusUnauthorized, ""},
		{"invalid token", "Bearer bad", http.StatusUnauthorized, ""},
		{"expired token", "Bearer expired", http.StatusUnauthorized, ""},
		{"valid token", "Bearer good", http.StatusOK, "user-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, w.Code)
			}
			if tt.body != "" && w.Body.String() != tt.body {
				t.Errorf("Expected body %q, got %q", tt.body, w.Body.String())
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	tests := []struct {
		name      string
		limiter   fakeLimiter
		status    int
		remaining string
	}{
		{"allowed", fakeLimiter{allowed: true}, http.StatusOK, "9"},
		{"exceeded", fakeLimiter{}, http.StatusTooManyRequests, "0"},
		{"backend error passes through", fakeLimiter{err: errors.New("redis down")}, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(NewRateLimitMiddleware(tt.limiter, logger.Nop()).Limit())
			r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

			if w.Code != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, w.Code)
			}
			if got := w.Header().Get("X-RateLimit-Remaining"); got != tt.remaining {
				t.Errorf("Expected remaining %q, got %q", tt.remaining, got)
			}
		})
	}
}

func TestErrorHandlerHidesInternalErrors(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler(logger.Nop()))
	r.GET("/internal", func(c *gin.Context) { _ = c.Error(errors.New("pq: connection refused")) })
	r.GET("/missing", func(c *gin.Context) { _ = c.Error(apperrors.ErrChatNotFound) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/internal", nil))
	if w.Code != http.StatusInternalServerError || w.Body.String() != `{"error":"internal server error"}` {
		t.Errorf("Unexpected internal error response: %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"https://app.example.com"}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent || w.Header().Get("Access-Control-Allow-Origin") != "https://app.example.com" {
		t.Errorf("Unexpected preflight response: %d %v", w.Code, w.Header())
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Errorf("Expected no CORS headers for a foreign origin")
	}

	if !OriginAllowed([]string{"*"}, "https://any.example.com") || OriginAllowed([]string{"https://a.example.com"}, "https://b.example.com") {
		t.Errorf("OriginAllowed returned unexpected results")
	}
}
