package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const RequestIDKey = "request_id"

// RequestID ensures every request carries a correlation identifier. A
// client-supplied X-Request-ID is honored when it looks sane; otherwise a
// fresh UUID is generated. The ID is echoed in the response headers and
// stored in the Gin context for the access log.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")

		l := len(requestID)
		if l < 1 || l > 64 {
			requestID = uuid.New().String()
		}

		c.Header("X-Request-ID", requestID)
		c.Set(RequestIDKey, requestID)

		c.Next()
	}
}

// GetRequestID retrieves the request ID from the Gin context, or "" when
// the middleware did not run.
func GetRequestID(c *gin.Context) string {
	if requestID, exists := c.Get(RequestIDKey); exists {
		if id, ok := requestID.(string); ok {
			return id
		}
	}
	return ""
}
