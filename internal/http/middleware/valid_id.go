package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// RequireValidStreamID ensures the path param ":id" is a valid int > 0.
// Handlers behind it may re-parse the param without checking the error.
func RequireValidStreamID() gin.HandlerFunc {
	return func(c *gin.Context) {
		idStr := c.Param("id")
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil || id <= 0 {
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}
		c.Next()
	}
}
