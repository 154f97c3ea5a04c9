package oauth

import (
	"encoding/json"
	"errors"
	"fmt"
)

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type,omitempty"`
	Scope        string `json:"scope,omitempty"`

	// Populated when the server answers with an error body instead of tokens.
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	Code         string `json:"code"`
	RedirectUri  string `json:"redirect_uri"`
	ClientId     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	CodeVerifier string `json:"code_verifier"`
}

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`

	// Remaining profile attributes, kept for display.
	Extra map[string]any `json:"-"`
}

func (u *User) UnmarshalJSON(b []byte) error {
	type Tmp User
	var tmp Tmp

	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}

	var all map[string]any
	if err := json.Unmarshal(b, &all); err != nil {
		return err
	}

	delete(all, "id")
	delete(all, "email")
	delete(all, "name")

	*u = User(tmp)
	if len(all) > 0 {
		u.Extra = all
	}

	return nil
}

func (u User) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(u.Extra)+3)
	for k, v := range u.Extra {
		out[k] = v
	}

	out["id"] = u.ID
	out["email"] = u.Email
	if u.Name != "" {
		out["name"] = u.Name
	}

	return json.Marshal(out)
}

type ProfileResponse struct {
	User *User `json:"user"`
}

// ResourceResponse is an upstream answer passed through without interpretation.
type ResourceResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

var (
	ErrCsrfMismatch        = errors.New("state does not match pending authorization")
	ErrSessionExpired      = errors.New("no pending authorization in session")
	ErrMissingCode         = errors.New("callback is missing the authorization code")
	ErrUnauthenticated     = errors.New("no access token in session")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrResponseTooLarge    = errors.New("response body exceeds size limit")
)

// ProviderError is reported by the authorization server on the callback URL.
type ProviderError struct {
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("authorization server returned %s", e.Code)
	}

	return fmt.Sprintf("authorization server returned %s: %s", e.Code, e.Description)
}

type TokenExchangeError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *TokenExchangeError) Error() string {
	code := e.Code
	if code == "" {
		code = "token_exchange_failed"
	}

	if e.Message == "" {
		return fmt.Sprintf("token exchange failed (status %d): %s", e.StatusCode, code)
	}

	return fmt.Sprintf("token exchange failed (status %d): %s: %s", e.StatusCode, code, e.Message)
}

// Classify returns a stable name for an error, for logs and error pages.
func Classify(err error) string {
	var perr *ProviderError
	var terr *TokenExchangeError

	switch {
	case err == nil:
		return ""
	case errors.As(err, &perr):
		return "provider_error"
	case errors.As(err, &terr):
		return "token_exchange_failure"
	case errors.Is(err, ErrCsrfMismatch):
		return "csrf_mismatch"
	case errors.Is(err, ErrSessionExpired):
		return "session_expired"
	case errors.Is(err, ErrMissingCode):
		return "missing_code"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "upstream_unavailable"
	default:
		return "internal_error"
	}
}
