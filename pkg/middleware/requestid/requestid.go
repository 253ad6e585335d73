package requestid

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderKey  = "X-Request-ID"
	contextKey = "request_id"
)

// Middleware propagates the caller's request id or mints a new one.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(HeaderKey)
		if reqID == "" || len(reqID) > 128 {
			reqID = uuid.NewString()
		}

		c.Set(contextKey, reqID)
		c.Writer.Header().Set(HeaderKey, reqID)

		c.Next()
	}
}

// Value returns the request ID stored in the Gin context.
func Value(c *gin.Context) string {
	return c.GetString(contextKey)
}
