package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/rutas-academicas/internal/models"
	appErrors "github.com/noah-isme/rutas-academicas/pkg/errors"
)

// Envelope is the body shape of every API response.
type Envelope struct {
	Data       interface{}            `json:"data,omitempty"`
	Error      *appErrors.Error       `json:"error,omitempty"`
	Pagination *models.Pagination     `json:"pagination,omitempty"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
}

func noStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
}

// JSON sends a success response with optional pagination metadata.
func JSON(c *gin.Context, status int, data interface{}, pagination *models.Pagination, meta ...map[string]interface{}) {
	noStore(c)
	envelope := Envelope{Data: data, Pagination: pagination}
	if len(meta) > 0 && meta[0] != nil {
		envelope.Meta = meta[0]
	}
	c.JSON(status, envelope)
}

func Created(c *gin.Context, data interface{}) {
	JSON(c, http.StatusCreated, data, nil)
}

// Accepted acknowledges work handed to the background queue.
func Accepted(c *gin.Context, data interface{}) {
	JSON(c, http.StatusAccepted, data, nil)
}

// Error converts err to the common structure and aborts the chain.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	noStore(c)
	c.AbortWithStatusJSON(appErr.Status, Envelope{Error: appErr})
}

func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
