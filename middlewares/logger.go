package middlewares

import (
	"log/slog"
	"time"

	"academianet/logging"

	"github.com/awslabs/aws-lambda-go-api-proxy/core"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	RequestIDKey    = "requestId"
	RequestIDHeader = "X-Request-Id"
)

// RequestID assigns every request an id: the API Gateway request id under
// Lambda, else the X-Request-Id header, else a fresh UUID.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := ""
		if gw, ok := core.GetAPIGatewayContextFromContext(c.Request.Context()); ok {
			id = gw.RequestID
		}
		if id == "" {
			id = c.GetHeader(RequestIDHeader)
		}
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// GetRequestID returns the id RequestID stored on c, or "".
func GetRequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}

// Logger stores a request-scoped logger in the request context and logs
// every request once it completes.
func Logger(base *slog.Logger) gin.HandlerFunc {
	base = logging.OrNop(base)
	return func(c *gin.Context) {
		start := time.Now()
		logger := base.With("request_id", GetRequestID(c))
		c.Request = c.Request.WithContext(logging.WithLogger(c.Request.Context(), logger))

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
		}
		switch {
		case status >= 500:
			logger.Error("request failed", attrs...)
		case status >= 400:
			logger.Warn("request rejected", attrs...)
		default:
			logger.Info("request handled", attrs...)
		}
	}
}
