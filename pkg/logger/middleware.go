package logger

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader carries the request id in and out.
	RequestIDHeader = "X-Request-ID"
	contextKey      = "logger"
)

// Middleware attaches a request scoped logger to the gin context and logs
// every request once it completes.
func Middleware(base *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(RequestIDHeader, requestID)

		reqLogger := base.WithRequestID(requestID)
		c.Set(contextKey, reqLogger)

		start := time.Now()
		c.Next()

		method, path := c.Request.Method, c.Request.URL.Path
		reqLogger.LogRequest(method, path, c.Writer.Status(), time.Since(start))
		for _, e := range c.Errors {
			reqLogger.LogError(e.Err, "request error", "method", method, "path", path)
		}
	}
}

// FromContext returns the request logger set by Middleware, or fallback.
func FromContext(c *gin.Context, fallback *Logger) *Logger {
	if v, ok := c.Get(contextKey); ok {
		if l, ok := v.(*Logger); ok {
			return l
		}
	}
	return fallback
}
