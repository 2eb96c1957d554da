package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"cabpool/internal/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type staticResolver map[string]Principal

func (s staticResolver) Resolve(_ context.Context, token string) (Principal, error) {
	if p, ok := s[token]; ok {
		return p, nil
	}
	if token == "broken" {
		return Principal{}, errors.New("redis down")
	}
	return Principal{}, ErrUnauthenticated
}

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memoryCache) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return d, nil
}

func (m *memoryCache) Set(_ context.Context, key string, data []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), data...)
	return nil
}

func newAuthRouter() *gin.Engine {
	r := gin.New()
	resolver := staticResolver{
		"alice-token": {UserID: "alice", Role: domain.UserRoleUser},
		"root-token":  {UserID: "root", Role: domain.UserRoleAdmin},
	}
	r.Use(Auth(resolver))
	r.GET("/me", func(c *gin.Context) {
		p, _ := PrincipalFrom(c)
		c.String(http.StatusOK, p.UserID)
	})
	r.GET("/admin", RequireRole(domain.UserRoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestAuth(t *testing.T) {
	t.Parallel()

	r := newAuthRouter()
	tests := []struct {
		name   string
		path   string
		header string
		status int
		body   string
	}{
		{name: "valid token", path: "/me", header: "Bearer alice-token", status: http.StatusOK, body: "alice"},
		{name: "lowercase scheme", path: "/me", header: "bearer alice-token", status: http.StatusOK, body: "alice"},
		{name: "missing header", path: "/me", status: http.StatusUnauthorized},
		{name: "wrong scheme", path: "/me", header: "Basic alice-token", status: http.StatusUnauthorized},
		{name: "unknown token", path: "/me", header: "Bearer nope", status: http.StatusUnauthorized},
		{name: "resolver failure", path: "/me", header: "Bearer broken", status: http.StatusInternalServerError},
		{name: "admin route as user", path: "/admin", header: "Bearer alice-token", status: http.StatusForbidden},
		{name: "admin route as admin", path: "/admin", header: "Bearer root-token", status: http.StatusOK},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != tt.status {
			t.Errorf("%s: expected %d, got %d", tt.name, tt.status, w.Code)
		}
		if tt.body != "" && w.Body.String() != tt.body {
			t.Errorf("%s: expected body %q, got %q", tt.name, tt.body, w.Body.String())
		}
	}
}

func TestAuth_QueryTokenOnlyForWebSocket(t *testing.T) {
	t.Parallel()

	r := newAuthRouter()

	plain := httptest.NewRequest(http.MethodGet, "/me?token=alice-token", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, plain)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected query token to be ignored on plain requests, got %d", w.Code)
	}

	upgrade := httptest.NewRequest(http.MethodGet, "/me?token=alice-token", nil)
	upgrade.Header.Set("Connection", "Upgrade")
	upgrade.Header.Set("Upgrade", "websocket")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, upgrade)
	if w.Code != http.StatusOK || w.Body.String() != "alice" {
		t.Errorf("expected query token accepted on upgrade, got %d %q", w.Code, w.Body.String())
	}
}

func TestIdempotencyMiddleware_ReplaysPerUser(t *testing.T) {
	t.Parallel()

	cache := &memoryCache{data: make(map[string][]byte)}
	calls := 0

	r := gin.New()
	r.Use(func(c *gin.Context) {
		SetPrincipal(c, Principal{UserID: c.GetHeader("X-User")})
		c.Next()
	})
	r.Use(IdempotencyMiddleware(cache))
	r.POST("/pool/create", func(c *gin.Context) {
		calls++
		c.JSON(http.StatusCreated, gin.H{"n": calls})
	})

	send := func(user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/pool/create", nil)
		req.Header.Set(idempotencyHeader, "k1")
		req.Header.Set("X-User", user)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	first := send("alice")
	replay := send("alice")
	other := send("bob")

	if calls != 2 {
		t.Fatalf("expected handler to run twice, ran %d times", calls)
	}
	if replay.Code != http.StatusCreated || replay.Body.String() != first.Body.String() {
		t.Errorf("replay differs: %d %s vs %s", replay.Code, replay.Body.String(), first.Body.String())
	}
	if replay.Header().Get("Idempotent-Replayed") != "true" {
		t.Error("replay not marked")
	}
	if other.Body.String() == first.Body.String() {
		t.Error("key leaked across users")
	}
}

func TestIdempotencyMiddleware_KeyScopedToResource(t *testing.T) {
	t.Parallel()

	cache := &memoryCache{data: make(map[string][]byte)}

	r := gin.New()
	r.Use(func(c *gin.Context) {
		SetPrincipal(c, Principal{UserID: "alice"})
		c.Next()
	})
	r.Use(IdempotencyMiddleware(cache))
	r.POST("/group/join/:groupId", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"joined": c.Param("groupId")})
	})

	send := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.Header.Set(idempotencyHeader, "same-key")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	a := send("/group/join/A")
	b := send("/group/join/B")

	if a.Body.String() != `{"joined":"A"}` {
		t.Fatalf("unexpected first body %s", a.Body.String())
	}
	if b.Body.String() != `{"joined":"B"}` {
		t.Errorf("second group got replayed response %s", b.Body.String())
	}
	if b.Header().Get("Idempotent-Replayed") != "" {
		t.Error("second group marked as replay")
	}
	if again := send("/group/join/A"); again.Header().Get("Idempotent-Replayed") != "true" {
		t.Error("retry on the same group was not replayed")
	}
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	t.Parallel()

	r := gin.New()
	r.Use(CORSMiddleware())
	r.OPTIONS("/x", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/x", nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing allow-origin header")
	}
}
