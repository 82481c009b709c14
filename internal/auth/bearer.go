package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoSubject is returned when the credential decodes but carries no
	// subject claim.
	ErrNoSubject = errors.New("credential has no subject claim")
)

// SubjectFromToken decodes a bearer credential and returns its subject claim.
// The token is decoded, not cryptographically verified; verification is the
// upstream auth system's responsibility. The subject serves as the rate-limit
// and audit key.
func SubjectFromToken(token string) (string, error) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("decode credential: %w", err)
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return "", fmt.Errorf("read subject claim: %w", err)
	}
	if sub == "" {
		return "", ErrNoSubject
	}
	return sub, nil
}
