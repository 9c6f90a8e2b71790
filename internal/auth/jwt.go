package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNoIdentity = errors.New("auth: token carries no user id")

// Claims is what the auth service puts in the tokens it issues.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Identity is the local user as named by the server token.
type Identity struct {
	UserID    string    `json:"user_id"`
	Issuer    string    `json:"issuer,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

func (i Identity) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && now.After(i.ExpiresAt)
}

// IdentityFromToken reads the user id out of the bearer token without
// checking its signature. The server verifies it on every request; the
// client only needs to know who it is.
func IdentityFromToken(token string) (Identity, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return Identity{}, fmt.Errorf("auth: parse token: %w", err)
	}
	id := Identity{UserID: claims.UserID, Issuer: claims.Issuer}
	if id.UserID == "" {
		id.UserID = claims.Subject
	}
	if id.UserID == "" {
		return Identity{}, ErrNoIdentity
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return id, nil
}
