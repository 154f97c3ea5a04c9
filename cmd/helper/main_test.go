package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	oauth "github.com/haileyok/oauth-pkce-golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func newTestApp(out *bytes.Buffer) *cli.App {
	return &cli.App{
		Name:     "helper-test",
		Writer:   out,
		Commands: []*cli.Command{runGeneratePkce, runGenerateSessionSecret},
	}
}

func TestGeneratePkce(t *testing.T) {
	assert := assert.New(t)

	var out bytes.Buffer
	require.NoError(t, newTestApp(&out).Run([]string{"helper-test", "generate-pkce"}))

	var pair pkcePair
	require.NoError(t, json.Unmarshal(out.Bytes(), &pair))
	assert.Len(pair.Verifier, 43)
	assert.Equal(oauth.DeriveChallenge(pair.Verifier), pair.Challenge)
	assert.Equal("S256", pair.Method)
}

func TestGeneratePkceForVerifier(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, newTestApp(&out).Run([]string{
		"helper-test", "generate-pkce", "--verifier", "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk",
	}))

	var pair pkcePair
	require.NoError(t, json.Unmarshal(out.Bytes(), &pair))
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", pair.Challenge)
}

func TestGenerateSessionSecretToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")

	var out bytes.Buffer
	require.NoError(t, newTestApp(&out).Run([]string{"helper-test", "generate-session-secret", "--out", path}))
	assert.Empty(t, out.String())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(b), "SESSION_SECRET="))
	assert.Len(t, strings.TrimSpace(strings.TrimPrefix(string(b), "SESSION_SECRET=")), 43)
}
