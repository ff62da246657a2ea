package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"comms-orchestrator/internal/config"

	"github.com/gin-gonic/gin"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(config.AuthConfig{
		JWTSecret:       "secret",
		JWTIssuer:       "issuer",
		JWTAudience:     "aud",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	return m
}

func TestIssueAndVerifyAccessToken(t *testing.T) {
	m := newManager(t)
	now := time.Unix(1700000000, 0).UTC()
	pair, err := m.IssuePair(now, "user-1", "tenant-1", "planner")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected token strings")
	}

	claims, err := m.Verify(pair.AccessToken, TokenTypeAccess, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "user-1" || claims.TenantID != "tenant-1" || claims.Role != "planner" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyRejectsWrongTokenType(t *testing.T) {
	m := newManager(t)
	now := time.Unix(1700000000, 0).UTC()
	p, err := m.IssuePair(now, "u", "t", "service")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(p.RefreshToken, TokenTypeAccess, now); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected token_type mismatch, got %v", err)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	m := newManager(t)
	now := time.Unix(1700000000, 0).UTC()
	p, _ := m.IssuePair(now, "u", "t", "service")
	if _, err := m.Verify(p.AccessToken, TokenTypeAccess, now.Add(time.Hour)); err == nil {
		t.Fatalf("expected expired token to fail")
	}
}

func TestRefreshIssuesNewPair(t *testing.T) {
	m := newManager(t)
	now := time.Unix(1700000000, 0).UTC()
	p, _ := m.IssuePair(now, "u", "t", "planner")

	next, err := m.Refresh(now.Add(time.Hour), p.RefreshToken, "u", "planner")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	claims, err := m.Verify(next.AccessToken, TokenTypeAccess, now.Add(time.Hour))
	if err != nil || claims.TenantID != "t" {
		t.Fatalf("unexpected refreshed claims: %+v %v", claims, err)
	}
	if _, err := m.Refresh(now, p.AccessToken, "u", "planner"); err == nil {
		t.Fatalf("expected access token to be refused for refresh")
	}
	if _, err := m.Refresh(now, p.RefreshToken, "someone-else", "planner"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected foreign refresh token to be refused, got %v", err)
	}
}

func TestRequireAccessToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newManager(t)
	now := time.Unix(1700000000, 0).UTC()
	p, _ := m.IssuePair(now, "u", "tenant-9", "admin")

	r := gin.New()
	r.GET("/x", requireAccessTokenAt(m, func() time.Time { return now }), func(c *gin.Context) {
		tid, _ := TenantID(c.Request.Context())
		c.String(http.StatusOK, tid)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+p.AccessToken)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "tenant-9" {
		t.Fatalf("expected 200 tenant-9, got %d %q", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
}
