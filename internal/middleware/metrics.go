package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// unmatchedRoute labels requests gin could not route, keeping raw paths out of
// the label set.
const unmatchedRoute = "unmatched"

type requestObserver interface {
	ObserveHTTPRequest(method, path string, status int, duration time.Duration)
}

// Metrics records method, route template, status and latency for every request.
func Metrics(observer requestObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if observer == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		observer.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
