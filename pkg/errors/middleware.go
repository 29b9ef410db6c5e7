package errors

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/tirumala-karthikeya/chat-pro/pkg/logger"
)

// ErrorHandler renders the first error attached with c.Error as
// {"error": {code, message, details}} unless the handler already wrote a body.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		appErr := FromError(c.Errors[0].Err)

		log := logger.FromContext(c, logger.GetGlobal())
		log.Warn("request failed",
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"status_code", appErr.StatusCode,
			"error_code", appErr.Code,
			"error", appErr.Error(),
		)

		if c.Writer.Written() {
			return
		}
		c.AbortWithStatusJSON(appErr.StatusCode, gin.H{
			"error": gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
				"details": appErr.Details,
			},
		})
	}
}

// RecoveryWithLogger turns panics into a logged 500 response.
func RecoveryWithLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			stack := string(debug.Stack())
			logger.FromContext(c, logger.GetGlobal()).Error("panic recovered",
				"error", fmt.Sprint(r),
				"stack", stack,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)

			var details any
			if gin.Mode() == gin.DebugMode {
				details = fmt.Sprintf("panic: %v", r)
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": gin.H{
					"code":    "SERVER_ERROR",
					"message": "The server encountered an unexpected error",
					"details": details,
				},
			})
		}()
		c.Next()
	}
}
