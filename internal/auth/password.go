package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword derives a bcrypt hash at the default cost. bcrypt rejects
// passwords over 72 bytes, which surfaces here as an error rather than a
// silent truncation.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
