package middlewares

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/geocoder89/scribe/internal/actorctx"
	"github.com/gin-gonic/gin"
)

// Keep this small interface so tests can fake it easily.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

type AuthMiddleware struct {
	verifier   TokenVerifier
	cookieName string
}

func NewAuthMiddleware(verifier TokenVerifier, cookieName string) *AuthMiddleware {
	if cookieName == "" {
		cookieName = "token"
	}
	return &AuthMiddleware{verifier: verifier, cookieName: cookieName}
}

// RequireAuth admits a request only with a valid session token, read from the
// session cookie or, for non-browser clients, a Bearer header.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := m.token(c)
		if raw == "" {
			abortJSON(c, http.StatusUnauthorized, "unauthenticated", "Missing session token")
			return
		}

		userID, err := m.verifier.Verify(raw)
		if err != nil {
			slog.Default().DebugContext(c.Request.Context(), "session rejected", "err", err)
			abortJSON(c, http.StatusUnauthorized, "unauthenticated", "Invalid or expired session")
			return
		}

		// Stash identity on both contexts
		c.Set(CtxUserID, userID)
		c.Request = c.Request.WithContext(actorctx.WithUserID(c.Request.Context(), userID))

		c.Next()
	}
}

func (m *AuthMiddleware) token(c *gin.Context) string {
	if v, err := c.Cookie(m.cookieName); err == nil && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}

	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return ""
}

// UserIDFromContext returns the id RequireAuth stored. Handlers never take
// the owner from the request body or path.
func UserIDFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(CtxUserID)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}
