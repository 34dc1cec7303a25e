package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// DoctorIDHeader carries the caller identity resolved by the upstream
// authentication layer.
const DoctorIDHeader = "X-Doctor-ID"

const doctorIDKey = "doctor_id"

// CallerIdentity copies the upstream doctor id into the request context.
// Requests without one pass through; handlers that need ownership reject them.
func CallerIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := strings.TrimSpace(c.GetHeader(DoctorIDHeader)); id != "" {
			c.Set(doctorIDKey, id)
		}
		c.Next()
	}
}

// DoctorID returns the caller identity set by CallerIdentity.
func DoctorID(c *gin.Context) string {
	return c.GetString(doctorIDKey)
}
