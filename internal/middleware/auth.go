package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"cabpool/internal/domain"
	"cabpool/internal/redis"
)

const principalKey = "principal"

// ErrUnauthenticated is returned when a bearer token does not resolve.
var ErrUnauthenticated = errors.New("unauthenticated")

// Principal is the caller behind a request.
type Principal struct {
	UserID string
	Role   domain.UserRole
}

// SessionResolver turns a bearer token into a Principal.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (Principal, error)
}

// RedisSessions resolves tokens against sessions the credential service
// writes to Redis.
type RedisSessions struct {
	store *redis.SessionStore
}

// NewRedisSessions creates a resolver over store.
func NewRedisSessions(store *redis.SessionStore) *RedisSessions {
	return &RedisSessions{store: store}
}

func (r *RedisSessions) Resolve(ctx context.Context, token string) (Principal, error) {
	sess, err := r.store.Get(ctx, token)
	if err != nil {
		if errors.Is(err, redis.ErrSessionNotFound) {
			return Principal{}, ErrUnauthenticated
		}
		return Principal{}, err
	}
	if sess.Role == "" {
		sess.Role = domain.UserRoleUser
	}
	return Principal{UserID: sess.UserID, Role: sess.Role}, nil
}

// Auth rejects requests without a valid bearer token. WebSocket upgrades may
// pass the token as the token query parameter since browsers cannot set
// headers on them.
func Auth(resolver SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" && websocket.IsWebSocketUpgrade(c.Request) {
			token = c.Query("token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		p, err := resolver.Resolve(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, ErrUnauthenticated) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
				return
			}
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		SetPrincipal(c, p)
		c.Next()
	}
}

// RequireRole rejects principals without role.
func RequireRole(role domain.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		if p, ok := PrincipalFrom(c); !ok || p.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// SetPrincipal attaches p to the request.
func SetPrincipal(c *gin.Context, p Principal) {
	c.Set(principalKey, p)
}

// PrincipalFrom returns the authenticated caller.
func PrincipalFrom(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
