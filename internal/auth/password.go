package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
)

// ErrInvalidCredentials covers both an unknown user and a wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Digest returns the lowercase hex SHA-256 of password, the format stored
// in the password_hash column.
func Digest(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// Verify reports whether password matches the stored digest.
func Verify(password, digest string) bool {
	return subtle.ConstantTimeCompare([]byte(Digest(password)), []byte(digest)) == 1
}

// VerifyKey compares two shared secrets without leaking timing. An empty
// expected key never matches.
func VerifyKey(given, expected string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(given), []byte(expected)) == 1
}
