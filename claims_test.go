package oauth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeekClaims(t *testing.T) {
	assert := assert.New(t)

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "u1",
		"iss":   "https://auth.example.com",
		"scope": "profile email",
		"exp":   exp.Unix(),
	})
	signed, err := token.SignedString([]byte("not-our-key"))
	require.NoError(t, err)

	claims, ok := PeekClaims(signed)
	require.True(t, ok)
	assert.Equal("u1", claims.Subject)
	assert.Equal("https://auth.example.com", claims.Issuer)
	assert.Equal("profile email", claims.Scope)
	assert.True(exp.Equal(claims.ExpiresAt))

	_, ok = PeekClaims("T1")
	assert.False(ok)
}
