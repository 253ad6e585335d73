package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ActorClaims identifies who performs a change. The actor is also the token subject.
type ActorClaims struct {
	Actor string `json:"actor"`
	jwt.RegisteredClaims
}

// IssuedToken is a signed bearer token.
type IssuedToken struct {
	Token     string    `json:"token"`
	Actor     string    `json:"actor"`
	ExpiresAt time.Time `json:"expires_at"`
}
