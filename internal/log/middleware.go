package log

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ContextKey type for context keys
type ContextKey string

const (
	LoggerContextKey    ContextKey = "logger"
	RequestIDContextKey ContextKey = "request_id"
)

// RequestIDHeader is echoed back on every response.
const RequestIDHeader = "X-Request-ID"

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, LoggerContextKey, logger)
}

// FromContext extracts a logger from the context, falling back to a default one.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	return New(DefaultConfig()).WithComponent("unknown")
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDContextKey, id)
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDContextKey).(string)
	return id
}

// Middleware attaches a request id and a component logger to the request
// context, then logs the completed request. 4xx log at warn, 5xx at error.
func Middleware(logger *Logger) gin.HandlerFunc {
	httpLogger := logger.WithComponent(ComponentHTTP)
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(RequestIDHeader, requestID)

		ctx := WithRequestID(c.Request.Context(), requestID)
		ctx = WithLogger(ctx, httpLogger)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		fields := NewFields().
			WithHTTPResponse(c.Request.Method, c.FullPath(), status, time.Since(start).Milliseconds())
		fields[FieldClientIP] = c.ClientIP()
		if len(c.Errors) > 0 {
			fields[FieldError] = c.Errors.String()
		}

		switch {
		case status >= 500:
			httpLogger.ErrorContext(ctx, "HTTP request completed", fields.ToSlice()...)
		case status >= 400:
			httpLogger.WarnContext(ctx, "HTTP request completed", fields.ToSlice()...)
		default:
			httpLogger.InfoContext(ctx, "HTTP request completed", fields.ToSlice()...)
		}
	}
}
