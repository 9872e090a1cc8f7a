package token

import (
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Claims defines the session JWT payload.
type Claims struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	SessionID string `json:"session_id"`
	jwtlib.RegisteredClaims
}

// Sign issues a signed JWT with explicit issued-at and expiry instants.
func Sign(claims Claims, secret string, issuedAt, expiresAt time.Time) (string, error) {
	claims.Issuer = "foyer"
	claims.IssuedAt = jwtlib.NewNumericDate(issuedAt)
	claims.ExpiresAt = jwtlib.NewNumericDate(expiresAt)
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// Parse validates and extracts claims from token.
func Parse(token string, secret string) (*Claims, error) {
	parsed, err := jwtlib.ParseWithClaims(token, &Claims{}, func(t *jwtlib.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Name}))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, jwtlib.ErrTokenInvalidClaims
	}
	return claims, nil
}
