package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/codeowl/platform/internal/common/auth"
	"github.com/codeowl/platform/internal/common/errors"
	"github.com/codeowl/platform/internal/session"
)

const (
	// SessionHeader carries the id returned by the login endpoint.
	SessionHeader = "X-Session-ID"
	// AdminHeader carries the admin shared secret.
	AdminHeader = "X-Admin-Secret"

	sessionKey = "session"
)

// SessionRequired resolves the X-Session-ID header to a live session and
// stores it on the gin and request contexts.
func SessionRequired(sessions *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(SessionHeader)
		if id == "" {
			JSONErrorResponse(c, errors.Unauthorized("missing session"))
			return
		}

		s, err := sessions.Get(id)
		if err != nil {
			JSONErrorResponse(c, err)
			return
		}

		c.Set(sessionKey, s)
		c.Set("user_id", s.UserID)
		c.Request = c.Request.WithContext(session.WithSession(c.Request.Context(), s))
		c.Next()
	}
}

// CurrentSession returns the session stored by SessionRequired.
func CurrentSession(c *gin.Context) (*session.Session, error) {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil, errors.Unauthorized("missing session")
	}
	s, ok := v.(*session.Session)
	if !ok {
		return nil, errors.Unauthorized("invalid session")
	}
	return s, nil
}

// AdminRequired rejects requests whose X-Admin-Secret header does not match.
// With no secret configured every request is rejected.
func AdminRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !auth.SecretMatches(c.GetHeader(AdminHeader), secret) {
			JSONErrorResponse(c, errors.Forbidden("admin secret required"))
			return
		}
		c.Next()
	}
}
