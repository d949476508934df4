package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Authenticator issues and checks the bearer tokens client business
// systems present to the gateway.
type Authenticator interface {
	GenerateClientToken(clientID int64, ttl time.Duration) (string, error)
	ValidateToken(token string) (*jwt.Token, error)
}
