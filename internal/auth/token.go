package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// defaultTokenLifetime applies when neither expires_in nor an exp claim is available.
const defaultTokenLifetime = 10 * time.Minute

// tokenExpiry derives the expiry of a token. expires_in wins; otherwise the
// unverified exp claim of a JWT access token is used.
func tokenExpiry(accessToken string, expiresIn int, now time.Time) time.Time {
	if expiresIn > 0 {
		return now.Add(time.Duration(expiresIn) * time.Second)
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	return now.Add(defaultTokenLifetime)
}

// refreshExpiry reads the exp claim of a JWT refresh token. Opaque refresh
// tokens have no known expiry and yield the zero time.
func refreshExpiry(refreshToken string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(refreshToken, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
