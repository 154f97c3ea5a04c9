package oauth

import (
	"fmt"
	"strings"

	"github.com/haileyok/oauth-pkce-golang/internal/helpers"
)

const (
	// 32 bytes encodes to a 43 character verifier, the RFC 7636 minimum.
	verifierBytes = 32
	stateBytes    = 16

	CodeChallengeMethod = "S256"

	// The nonce is base64url, so '.' can never appear inside it.
	stateModeDelimiter = "."
)

type Mode string

const (
	ModeRedirect Mode = "redirect"
	ModePopup    Mode = "popup"
)

func (m Mode) Valid() bool {
	return m == ModeRedirect || m == ModePopup
}

// GenerateVerifier returns a fresh PKCE code verifier. An error here means the
// system entropy source is unavailable and the flow must not continue.
func GenerateVerifier() (string, error) {
	v, err := helpers.GenerateToken(verifierBytes)
	if err != nil {
		return "", fmt.Errorf("could not generate pkce verifier: %w", err)
	}

	return v, nil
}

// DeriveChallenge computes the S256 code challenge for a verifier.
func DeriveChallenge(verifier string) string {
	return helpers.S256(verifier)
}

// State is the anti-CSRF value round-tripped through the authorization server.
// It is only flattened to a string at the URL boundary.
type State struct {
	Nonce string
	Mode  Mode
}

func GenerateState(mode Mode) (State, error) {
	if mode == "" {
		mode = ModeRedirect
	}

	if !mode.Valid() {
		return State{}, fmt.Errorf("unknown flow mode %q", mode)
	}

	nonce, err := helpers.GenerateToken(stateBytes)
	if err != nil {
		return State{}, fmt.Errorf("could not generate state token: %w", err)
	}

	return State{Nonce: nonce, Mode: mode}, nil
}

// String encodes the state for the query string. Redirect mode is the bare
// nonce so that servers and logs see the conventional opaque value.
func (s State) String() string {
	if s.Mode == ModePopup {
		return s.Nonce + stateModeDelimiter + string(ModePopup)
	}

	return s.Nonce
}

// ParseState reverses State.String. A missing mode marker means redirect.
func ParseState(raw string) (State, error) {
	if raw == "" {
		return State{}, fmt.Errorf("state is empty")
	}

	nonce, mode, found := strings.Cut(raw, stateModeDelimiter)
	if nonce == "" {
		return State{}, fmt.Errorf("state nonce is empty")
	}

	if !found {
		return State{Nonce: nonce, Mode: ModeRedirect}, nil
	}

	if Mode(mode) != ModePopup {
		return State{}, fmt.Errorf("state carries unknown mode %q", mode)
	}

	return State{Nonce: nonce, Mode: ModePopup}, nil
}

// HasModeMarker reports whether the encoded state explicitly names a mode.
func HasModeMarker(raw string) bool {
	return strings.Contains(raw, stateModeDelimiter)
}
