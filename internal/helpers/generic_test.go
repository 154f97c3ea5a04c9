package helpers

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateToken(t *testing.T) {
	assert := assert.New(t)

	tok, err := GenerateToken(32)
	assert.NoError(err)
	assert.Len(tok, 43)
	assert.NotContains(tok, "=")

	raw, err := base64.RawURLEncoding.DecodeString(tok)
	assert.NoError(err)
	assert.Len(raw, 32)

	other, err := GenerateToken(32)
	assert.NoError(err)
	assert.NotEqual(tok, other)
}

func TestS256(t *testing.T) {
	assert := assert.New(t)

	// RFC 7636 appendix B
	assert.Equal(
		"E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		S256("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"),
	)
}

func TestRedact(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("", Redact(""))
	assert.Equal("…", Redact("short"))
	assert.Equal("abcdef…", Redact("abcdefghijklmnop"))
	assert.False(strings.Contains(Redact("abcdefghijklmnop"), "ghij"))
}
