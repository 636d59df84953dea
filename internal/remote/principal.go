package remote

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoPrincipal means neither a user id nor a usable access token was
// configured.
var ErrNoPrincipal = errors.New("remote: no principal configured")

// PrincipalFromToken returns the subject of a Supabase access token.
// The signature is not checked here; the server validates every request.
func PrincipalFromToken(token string) (string, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return "", fmt.Errorf("parsing access token: %w", err)
	}
	if claims.Subject == "" {
		return "", errors.New("access token has no subject")
	}
	return claims.Subject, nil
}

// ResolvePrincipal prefers an explicit user id and falls back to the token
// subject.
func ResolvePrincipal(userID, token string) (string, error) {
	if userID != "" {
		return userID, nil
	}
	if token == "" {
		return "", ErrNoPrincipal
	}
	return PrincipalFromToken(token)
}
