package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/rutas-academicas/internal/models"
	"github.com/noah-isme/rutas-academicas/pkg/config"
	appErrors "github.com/noah-isme/rutas-academicas/pkg/errors"
)

// TokenService issues and validates HS256 bearer tokens naming an actor.
type TokenService struct {
	config config.JWTConfig
	clock  Clock
}

func NewTokenService(cfg config.JWTConfig, clock Clock) *TokenService {
	if cfg.Expiration <= 0 {
		cfg.Expiration = 12 * time.Hour
	}
	return &TokenService{config: cfg, clock: clockOrSystem(clock)}
}

// Generate signs a token for actor.
func (s *TokenService) Generate(actor string) (*models.IssuedToken, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "actor is required")
	}
	if s.config.Secret == "" {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "token secret is not configured")
	}

	issuedAt := s.clock.Now()
	expiresAt := issuedAt.Add(s.config.Expiration)
	claims := &models.ActorClaims{
		Actor: actor,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   actor,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.Secret))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign token")
	}
	return &models.IssuedToken{Token: signed, Actor: actor, ExpiresAt: expiresAt}, nil
}

// Validate parses a token and returns its claims.
func (s *TokenService) Validate(tokenString string) (*models.ActorClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.ActorClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	}, jwt.WithTimeFunc(s.clock.Now))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.ActorClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	if claims.Actor == "" {
		claims.Actor = claims.Subject
	}
	return claims, nil
}
