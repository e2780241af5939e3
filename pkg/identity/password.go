package identity

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials indicates the password does not match the stored
// hash. The error is identical whether the user exists or not, so login
// failures do not leak account existence.
//
// Protocol Mapping:
//   - HTTP: 401 Unauthorized
var ErrInvalidCredentials = errors.New("invalid credentials")

// bcryptCost trades hashing time against login latency. The default cost is
// tuned for interactive logins.
const bcryptCost = bcrypt.DefaultCost

// HashPassword derives the stored bcrypt hash for a password.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword checks a candidate password against the stored hash,
// returning ErrInvalidCredentials on mismatch.
func VerifyPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
