// Package middleware holds the gin middleware for protected routes: Bearer
// token validation plus session liveness, with the caller identity stored on
// the request context for handlers.
package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lanstar128/jjds-auth-service/internal/api"
	"github.com/lanstar128/jjds-auth-service/internal/security"
	"github.com/lanstar128/jjds-auth-service/internal/session/store"
)

const bearerPrefix = "bearer "

type contextKey struct{ name string }

var identityKey = contextKey{"identity"}

// WithIdentity returns a context carrying the authenticated caller.
func WithIdentity(ctx context.Context, id *security.AccessIdentity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// GetIdentity returns the authenticated caller from ctx and true if set.
func GetIdentity(ctx context.Context) (*security.AccessIdentity, bool) {
	id, ok := ctx.Value(identityKey).(*security.AccessIdentity)
	return id, ok
}

// AuthRequired validates the Bearer access token and checks that its session
// is still alive, so tokens of evicted or logged-out sessions fail even
// before expiry. On success the identity is placed on the request context.
func AuthRequired(tokens *security.TokenProvider, sessions store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearer(c.GetHeader("Authorization"))
		if token == "" {
			reject(c)
			return
		}
		id, err := tokens.ValidateAccess(token)
		if err != nil {
			reject(c)
			return
		}
		ok, err := sessions.IsValid(c.Request.Context(), id.SessionID)
		if err != nil {
			api.Fail(c, 500, api.CodeInternalError, "服务器内部错误", nil)
			c.Abort()
			return
		}
		if !ok {
			reject(c)
			return
		}
		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

func reject(c *gin.Context) {
	api.Fail(c, 401, api.CodeInvalidSession, "会话无效或已失效", nil)
	c.Abort()
}

// extractBearer returns the token from an Authorization header value, or ""
// when missing or malformed.
func extractBearer(header string) string {
	v := strings.TrimSpace(header)
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}

var clientIPKey = contextKey{"client_ip"}

// ClientInfo stores the client IP on the request context so code that only
// sees a context.Context (e.g. the audit logger) can still read it.
func ClientInfo() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(
			context.WithValue(c.Request.Context(), clientIPKey, c.ClientIP()))
		c.Next()
	}
}

// ExtractIP returns the client IP recorded by ClientInfo, or "unknown" when
// the request never passed through it. Matches the audit logger's
// IPExtractor signature.
func ExtractIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey).(string); ok && ip != "" {
		return ip
	}
	return "unknown"
}
