package rbac

import (
	"net/http"

	"voice-agent/internal/auth"
	"voice-agent/pkg/logger"

	"github.com/gin-gonic/gin"
)

// RequireAnyRole admits callers holding one of allowed. Admin passes every
// check. Must run after auth.RequireAccessToken.
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		role, err := auth.Role(ctx)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}
		if _, ok := allowedSet[role]; ok || IsAdmin(role) {
			c.Next()
			return
		}
		subject, _ := auth.Subject(ctx)
		logger.FromGin(c).Warn("role denied", "subject", subject, "role", role, "path", c.FullPath())
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	}
}
