// Package crypto implements WebAPI credential hashing and gateway-side verification.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"

	"golang.org/x/crypto/argon2"
)

// Hasher derives the userHashPassword value from a plaintext password.
type Hasher func(password string) string

// WebAPIHash is the doLoginEnc encoding: base64(sha256(password)).
func WebAPIHash(password string) string {
	sum := sha256.Sum256([]byte(password))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Argon2id parameters for digests held by the gateway.
const (
	argonTime    uint32 = 3         // iterations
	argonMemory  uint32 = 64 * 1024 // 64 MB
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32
)

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// HashPassword returns the Argon2id digest of a WebAPI hash using salt.
func HashPassword(webapiHash, salt []byte) []byte {
	return argon2.IDKey(webapiHash, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// VerifyPassword checks a WebAPI hash against an expected digest and salt.
func VerifyPassword(webapiHash, salt, expected []byte) bool {
	got := HashPassword(webapiHash, salt)
	return subtle.ConstantTimeCompare(got, expected) == 1
}
