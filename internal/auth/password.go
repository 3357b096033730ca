// Package auth implements credential hashing and verification.
//
// Hashes are PBKDF2-HMAC-SHA256 with a 16-byte random salt, a 32-byte derived
// key and 100 000 iterations, stored as base64(salt || key). The format is
// byte-compatible with hashes written by the legacy system, so existing user
// rows keep working without a migration.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltLen    = 16
	keyLen     = 32
	iterations = 100_000
)

// HashPassword derives a storable hash from a plaintext password.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := pbkdf2.Key([]byte(password), salt, iterations, keyLen, sha256.New)
	return base64.StdEncoding.EncodeToString(append(salt, key...)), nil
}

// VerifyPassword checks a plaintext password against a stored hash. Any
// decode or format problem counts as a failed verification, never an error.
func VerifyPassword(stored, password string) bool {
	decoded, err := base64.StdEncoding.DecodeString(stored)
	if err != nil || len(decoded) != saltLen+keyLen {
		return false
	}
	salt, want := decoded[:saltLen], decoded[saltLen:]
	got := pbkdf2.Key([]byte(password), salt, iterations, keyLen, sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}
