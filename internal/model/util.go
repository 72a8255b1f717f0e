package model

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

func randomString(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails when the OS entropy source is broken
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

func generateSecureID(prefix string) string {
	return prefix + randomString(16)
}

// GenerateSecureToken returns 32 random bytes, URL-safe base64 encoded
func GenerateSecureToken() string {
	return randomString(32)
}

// HashToken returns the hex sha256 of an opaque token; only hashes are stored
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
