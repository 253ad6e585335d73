package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/rutas-academicas/internal/models"
	appErrors "github.com/noah-isme/rutas-academicas/pkg/errors"
	"github.com/noah-isme/rutas-academicas/pkg/logger"
	"github.com/noah-isme/rutas-academicas/pkg/response"
)

// ActorHeader names the acting user when token auth is disabled.
const ActorHeader = "X-Actor"

// DefaultActor is recorded when no actor is supplied.
const DefaultActor = "admin"

type tokenValidator interface {
	Validate(token string) (*models.ActorClaims, error)
}

// JWT requires a valid bearer token and stores its subject as the actor.
func JWT(tokens tokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			return
		}

		claims, err := tokens.Validate(strings.TrimSpace(parts[1]))
		if err != nil {
			response.Error(c, err)
			return
		}

		c.Set(logger.ActorKey, claims.Actor)
		c.Next()
	}
}

// HeaderActor trusts the X-Actor header, falling back to DefaultActor.
func HeaderActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := strings.TrimSpace(c.GetHeader(ActorHeader))
		if actor == "" {
			actor = DefaultActor
		}
		c.Set(logger.ActorKey, actor)
		c.Next()
	}
}

// Actor picks JWT or header resolution depending on whether auth is enabled.
func Actor(enabled bool, tokens tokenValidator) gin.HandlerFunc {
	if enabled {
		return JWT(tokens)
	}
	return HeaderActor()
}
