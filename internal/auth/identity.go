package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tradewell/twchat/internal/model"
)

// Identity is the authenticated user extracted from the gateway token.
type Identity struct {
	User      model.User
	ExpiresAt time.Time
}

// Expired reports whether the token expiry has passed. Tokens without
// an exp claim never expire from the client's point of view.
func (id Identity) Expired(now time.Time) bool {
	return !id.ExpiresAt.IsZero() && now.After(id.ExpiresAt)
}

type tokenClaims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// ParseIdentity extracts the current user from a gateway-issued JWT.
// The signature is not verified here; the gateway rejects forged
// tokens on every call, the client only needs the claims.
func ParseIdentity(token string) (Identity, error) {
	var claims tokenClaims
	_, _, err := jwt.NewParser().ParseUnverified(token, &claims)
	if err != nil {
		return Identity{}, fmt.Errorf("parse token: %w", err)
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("token missing sub claim")
	}

	id := Identity{
		User: model.User{
			ID:   claims.Subject,
			Name: claims.Name,
		},
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}
