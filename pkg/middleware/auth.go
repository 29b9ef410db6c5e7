package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tirumala-karthikeya/chat-pro/pkg/errors"
	"github.com/tirumala-karthikeya/chat-pro/pkg/jwt"
	"github.com/tirumala-karthikeya/chat-pro/pkg/logger"
)

// ClaimsKey is the gin context key holding validated *jwt.Claims.
const ClaimsKey = "claims"

// RequireAdmin checks for a valid bearer token carrying the admin role.
func RequireAdmin(svc *jwt.Service, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			_ = c.Error(errors.NewUnauthorizedError("AUTH_REQUIRED", "Authorization header is required"))
			c.Abort()
			return
		}

		claims, err := svc.ValidateToken(token)
		if err != nil {
			logger.FromContext(c, log).Warn("Invalid JWT token", "error", err.Error())
			_ = c.Error(errors.NewUnauthorizedError("INVALID_TOKEN", "Invalid or expired token"))
			c.Abort()
			return
		}
		if !claims.HasRole(jwt.RoleAdmin) {
			_ = c.Error(errors.NewForbiddenError("INSUFFICIENT_ROLE", "Your role does not allow this operation"))
			c.Abort()
			return
		}

		c.Set(ClaimsKey, claims)
		c.Next()
	}
}
