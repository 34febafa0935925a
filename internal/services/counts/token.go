package counts

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenExpired is returned without a network round trip when the bearer
// token's exp claim is already in the past.
var ErrTokenExpired = errors.New("backend token expired")

// tokenExpired inspects the exp claim without verifying the signature; the
// backend remains the authority. Opaque (non-JWT) tokens are never expired.
func tokenExpired(token string, now time.Time) bool {
	if token == "" {
		return false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Before(exp.Time)
}
