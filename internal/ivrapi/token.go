package ivrapi

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// TokenExpiry reads the exp claim from a JWT without verifying the
// signature. The client only presents the token; verification is the
// server's job.
func TokenExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, fmt.Errorf("token has no expiration claim")
	}
	return exp.Time, nil
}

// WarnIfExpiring logs when the credential is expired or close to it, so an
// operator does not sit through a futile reconnect loop.
func WarnIfExpiring(token string, within time.Duration, logger zerolog.Logger) {
	if token == "" {
		return
	}
	exp, err := TokenExpiry(token)
	if err != nil {
		logger.Debug().Err(err).Msg("could not inspect token expiry")
		return
	}
	switch {
	case time.Now().After(exp):
		logger.Warn().Time("expired_at", exp).Msg("auth token is expired")
	case time.Until(exp) < within:
		logger.Warn().Time("expires_at", exp).Msg("auth token expires soon")
	}
}
