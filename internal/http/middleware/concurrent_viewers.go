package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// LimitConcurrentViewers caps the number of in-flight requests on the routes
// it guards. Each MJPEG viewer holds a connection and an ffmpeg process for
// its whole lifetime, so the feed endpoint is bounded to keep a burst of
// viewers from exhausting the host. Excess requests get HTTP 503.
func LimitConcurrentViewers(maxViewers int) gin.HandlerFunc {
	slots := make(chan struct{}, maxViewers)

	return func(c *gin.Context) {
		select {
		case slots <- struct{}{}:
			defer func() { <-slots }()
			c.Next()
		default:
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "viewer limit reached",
			})
		}
	}
}
