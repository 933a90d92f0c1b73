package utils

import (
	"crypto/rand"
	"encoding/base64"
)

// RandomString creates a random base64url string from length bytes of entropy
func RandomString(length int) string {
	b := make([]byte, length)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
