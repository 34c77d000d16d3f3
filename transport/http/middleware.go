package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/keyward/vouch/core"
	"github.com/keyward/vouch/service"
)

const sessionContextKey = "deviceSession"

// SessionMiddleware creates middleware that validates device session tokens
func SessionMiddleware(anchors *service.AnchorService) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")

		// Check if the Authorization header is present and in correct format
		if len(auth) < 8 || auth[:7] != "Bearer " {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header"})
			return
		}

		// Validate the token
		session, err := anchors.ValidateSession(c.Request.Context(), auth[7:])
		if err != nil {
			if errors.Is(err, core.ErrSessionExpired) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Session expired"})
			} else {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid session"})
			}
			return
		}

		// Make the session visible to the handlers
		c.Set(sessionContextKey, session)

		c.Next()
	}
}

// sessionFromContext returns the session the middleware stored, if any.
func sessionFromContext(c *gin.Context) *core.DeviceSession {
	value, exists := c.Get(sessionContextKey)
	if !exists {
		return nil
	}
	session, ok := value.(*core.DeviceSession)
	if !ok {
		return nil
	}
	return session
}
