package helpers

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

// GenerateToken returns n random bytes encoded with the unpadded URL-safe base64 alphabet.
func GenerateToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

func S256(s string) string {
	h := sha256.New()
	h.Write([]byte(s))
	hash := h.Sum(nil)
	return base64.RawURLEncoding.EncodeToString(hash)
}

// Redact keeps a short prefix of a credential so log lines can be correlated
// without exposing the value.
func Redact(s string) string {
	if s == "" {
		return ""
	}

	if len(s) <= 6 {
		return "…"
	}

	return s[:6] + "…"
}
