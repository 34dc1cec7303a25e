// Package middleware holds the gin middleware shared by the HTTP surface:
// security headers, correlation ids, timeouts, audit logging, caller identity
// and per-client rate limiting.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/homeopathy-case-engine/internal/domain"
)

// SecurityHeaders adds security headers to all responses
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")

		// Enforce HTTPS (only in production)
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		// Case records carry patient data; nothing is cacheable by intermediaries.
		c.Header("Cache-Control", "no-store")
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Header("Referrer-Policy", "no-referrer")

		c.Next()
	}
}

// CorrelationID adds a unique correlation ID to each request for audit trails
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		c.Set("correlation_id", correlationID)
		c.Header("X-Correlation-ID", correlationID)

		c.Next()
	}
}

// RequestTimeout attaches a deadline to the request context so store calls
// made by the handler are cancelled once it passes. Requests that finish
// after the deadline without writing a response get 408.
func RequestTimeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Writer.Written() {
			apiErr := domain.NewAPIError(
				domain.ErrCodeInternalServer,
				"Request timeout",
				fmt.Sprintf("request exceeded %s", timeout),
				c.GetString("request_id"),
			)
			c.AbortWithStatusJSON(http.StatusRequestTimeout, gin.H{"error": apiErr})
		}
	}
}

// AuditLogger logs one entry per request with the caller identity, so every
// read and write of a case record can be traced to a doctor. Header-supplied
// values travel as logrus fields and are escaped by the formatter.
func AuditLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.WithFields(logrus.Fields{
			"audit":          true,
			"correlation_id": c.GetString("correlation_id"),
			"request_id":     c.GetString("request_id"),
			"doctor_id":      DoctorID(c),
			"method":         c.Request.Method,
			"path":           path,
			"status":         c.Writer.Status(),
			"latency":        time.Since(start).String(),
			"client_ip":      c.ClientIP(),
			"response_size":  c.Writer.Size(),
		}).Info("Request handled")
	}
}
