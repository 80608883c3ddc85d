package middleware

import (
	"net/http"
	"time"

	"remotedesk/pkg/tracing"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Tracing wraps each control request in a span.
func Tracing() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		ctx, span := tracing.TraceControl(c.Request.Context(), c.Request.Method, route)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(
			attribute.Int("http.status_code", status),
			attribute.String("http.remote_addr", c.ClientIP()),
		)
		tracing.MeasureDuration(ctx, start)
		if status >= http.StatusBadRequest {
			span.SetStatus(codes.Error, c.Errors.String())
		}
	}
}
