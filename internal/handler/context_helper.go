package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/rutas-academicas/internal/middleware"
	appErrors "github.com/noah-isme/rutas-academicas/pkg/errors"
	"github.com/noah-isme/rutas-academicas/pkg/logger"
)

func actorFromContext(c *gin.Context) string {
	if actor := c.GetString(logger.ActorKey); actor != "" {
		return actor
	}
	return middleware.DefaultActor
}

func invalidPayload(err error) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload")
}

func queryInt(c *gin.Context, key string, fallback int) int {
	if v, err := strconv.Atoi(c.Query(key)); err == nil {
		return v
	}
	return fallback
}

// queryIntPtr returns nil when the parameter is absent or not a number.
func queryIntPtr(c *gin.Context, key string) *int {
	v, err := strconv.Atoi(strings.TrimSpace(c.Query(key)))
	if err != nil {
		return nil
	}
	return &v
}

func queryBool(c *gin.Context, key string) bool {
	v, _ := strconv.ParseBool(c.Query(key))
	return v
}

// queryTime accepts RFC3339 timestamps or plain dates. A plain date bound
// with endOfDay covers the whole day.
func queryTime(c *gin.Context, key string, endOfDay bool) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		if endOfDay {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return &t, nil
	}
	return nil, appErrors.Clone(appErrors.ErrValidation, key+" must be a date (YYYY-MM-DD) or RFC3339 timestamp")
}
