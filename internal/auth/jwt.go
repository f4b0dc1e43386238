// Package auth covers account registration, credential checks and the
// bearer tokens that tie API requests to a user.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken covers every way a presented token can fail: bad
// signature, wrong algorithm, expiry, malformed subject.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the token payload. The user id travels as the registered
// subject; Name is informational only and never trusted for authorization.
type Claims struct {
	jwt.RegisteredClaims
	Name string `json:"name,omitempty"`
}

// GenerateToken signs an HS256 token for the given user, valid for ttl.
func GenerateToken(secret []byte, userID uuid.UUID, name string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Name: name,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ValidateToken parses and verifies a token string and returns the user id
// it was issued for. The signing method is pinned to HS256 to prevent
// algorithm confusion attacks.
func ValidateToken(secret []byte, tokenStr string) (uuid.UUID, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return uuid.Nil, ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return userID, nil
}
