package cors

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	allowHeaders = "Authorization, Content-Type, X-Request-ID, X-Actor"
	allowMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
)

// New returns a CORS middleware. An empty origin list allows every origin.
func New(allowedOrigins []string) gin.HandlerFunc {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origins[strings.TrimRight(origin, "/")] = struct{}{}
	}
	allowed := func(origin string) bool {
		if len(origins) == 0 {
			return true
		}
		_, ok := origins[strings.TrimRight(origin, "/")]
		return ok
	}

	return func(c *gin.Context) {
		h := c.Writer.Header()
		origin := c.GetHeader("Origin")
		switch {
		case origin != "" && allowed(origin):
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
		case origin == "" && len(origins) == 0:
			h.Set("Access-Control-Allow-Origin", "*")
		}

		h.Add("Vary", "Origin")
		h.Set("Access-Control-Allow-Headers", allowHeaders)
		h.Set("Access-Control-Allow-Methods", allowMethods)
		h.Set("Access-Control-Expose-Headers", "X-Request-ID")
		h.Set("Access-Control-Max-Age", "600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
