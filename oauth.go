package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/haileyok/oauth-pkce-golang/internal/helpers"
)

const (
	AuthorizePath     = "/api/oauth/v1/authorize"
	TokenPath         = "/api/oauth/v1/token"
	ProfilePath       = "/auth/v1/profile"
	OrganizationsPath = "/api/v1/organizations"
	ProjectsPath      = "/api/v1/projects"

	maxResponseBytes = 1 << 20
)

type Client struct {
	h            *http.Client
	logger       *slog.Logger
	baseUrl      *url.URL
	clientId     string
	clientSecret string
	redirectUri  string
	scopes       []string
	userAgent    string
}

type ClientArgs struct {
	H            *http.Client
	Logger       *slog.Logger
	BaseUrl      string
	ClientId     string
	ClientSecret string
	RedirectUri  string
	Scopes       []string
	UserAgent    string
}

func NewClient(args ClientArgs) (*Client, error) {
	if args.ClientId == "" {
		return nil, fmt.Errorf("no client id provided")
	}

	if args.RedirectUri == "" {
		return nil, fmt.Errorf("no redirect uri provided")
	}

	if _, err := parseBaseUrl(args.RedirectUri); err != nil {
		return nil, fmt.Errorf("invalid redirect uri: %w", err)
	}

	base, err := parseBaseUrl(args.BaseUrl)
	if err != nil {
		return nil, fmt.Errorf("invalid authorization server url: %w", err)
	}

	if args.H == nil {
		args.H = &http.Client{
			Timeout: 5 * time.Second,
		}
	}

	if args.Logger == nil {
		args.Logger = slog.Default()
	}

	return &Client{
		h:            args.H,
		logger:       args.Logger,
		baseUrl:      base,
		clientId:     args.ClientId,
		clientSecret: args.ClientSecret,
		redirectUri:  args.RedirectUri,
		scopes:       args.Scopes,
		userAgent:    args.UserAgent,
	}, nil
}

type AuthorizationRequest struct {
	ClientId      string
	RedirectUri   string
	Scopes        []string
	State         string
	CodeChallenge string
}

// BuildAuthorizationURL composes the authorization endpoint URL. It does not
// touch any session state; callers persist the state and verifier themselves.
func BuildAuthorizationURL(endpoint string, req AuthorizationRequest) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("could not parse authorization endpoint: %w", err)
	}

	if req.State == "" || req.CodeChallenge == "" {
		return "", fmt.Errorf("state and code challenge are required")
	}

	params := url.Values{
		"client_id":             {req.ClientId},
		"redirect_uri":          {req.RedirectUri},
		"response_type":         {"code"},
		"scope":                 {strings.Join(req.Scopes, " ")},
		"state":                 {req.State},
		"code_challenge":        {req.CodeChallenge},
		"code_challenge_method": {CodeChallengeMethod},
	}

	u.RawQuery = params.Encode()

	return u.String(), nil
}

func (c *Client) AuthorizationURL(state State, challenge string) (string, error) {
	return BuildAuthorizationURL(c.endpoint(AuthorizePath), AuthorizationRequest{
		ClientId:      c.clientId,
		RedirectUri:   c.redirectUri,
		Scopes:        c.scopes,
		State:         state.String(),
		CodeChallenge: challenge,
	})
}

// InitialTokenRequest redeems an authorization code. Codes are single use, so
// this is never retried.
func (c *Client) InitialTokenRequest(ctx context.Context, code, pkceVerifier string) (*TokenResponse, error) {
	body, err := json.Marshal(tokenRequest{
		GrantType:    "authorization_code",
		Code:         code,
		RedirectUri:  c.redirectUri,
		ClientId:     c.clientId,
		ClientSecret: c.clientSecret,
		CodeVerifier: pkceVerifier,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint(TokenPath), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error creating token request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	c.setUserAgent(req)

	c.logger.Debug("exchanging authorization code", "code", helpers.Redact(code))

	resp, err := c.h.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: token request failed: %w", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	b, err := readBody(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: could not read token response: %w", ErrUpstreamUnavailable, err)
	}

	var tokenResponse TokenResponse
	if err := json.Unmarshal(b, &tokenResponse); err != nil {
		return nil, &TokenExchangeError{
			StatusCode: resp.StatusCode,
			Code:       "invalid_response",
			Message:    "token endpoint did not return json",
		}
	}

	if tokenResponse.Error != "" || !isSuccess(resp.StatusCode) {
		return nil, &TokenExchangeError{
			StatusCode: resp.StatusCode,
			Code:       tokenResponse.Error,
			Message:    tokenResponse.Message,
		}
	}

	if tokenResponse.AccessToken == "" {
		return nil, &TokenExchangeError{
			StatusCode: resp.StatusCode,
			Code:       "invalid_response",
			Message:    "token response did not include an access token",
		}
	}

	return &tokenResponse, nil
}

func (c *Client) FetchProfile(ctx context.Context, accessToken string) (*User, error) {
	if accessToken == "" {
		return nil, ErrUnauthenticated
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.endpoint(ProfilePath), nil)
	if err != nil {
		return nil, fmt.Errorf("error creating profile request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	c.setUserAgent(req)

	resp, err := c.h.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: profile request failed: %w", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("received non-2xx response from profile endpoint. code was %d", resp.StatusCode)
	}

	var profile ProfileResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&profile); err != nil {
		return nil, fmt.Errorf("could not unmarshal profile: %w", err)
	}

	if profile.User == nil {
		return nil, fmt.Errorf("profile response contained no user")
	}

	return profile.User, nil
}

// FetchResource forwards the access token to a resource endpoint and hands the
// answer back untouched, whatever its status.
func (c *Client) FetchResource(ctx context.Context, path, accessToken string) (*ResourceResponse, error) {
	if accessToken == "" {
		return nil, ErrUnauthenticated
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.endpoint(path), nil)
	if err != nil {
		return nil, fmt.Errorf("error creating resource request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	c.setUserAgent(req)

	resp, err := c.h.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: resource request failed: %w", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	// a cut body would be passed on as if it were complete
	b, err := readBody(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: could not read resource body: %w", ErrUpstreamUnavailable, err)
	}

	return &ResourceResponse{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        b,
	}, nil
}

// readBody reads at most maxResponseBytes and fails rather than truncating.
func readBody(r io.Reader) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, maxResponseBytes+1))
	if err != nil {
		return nil, err
	}

	if len(b) > maxResponseBytes {
		return nil, ErrResponseTooLarge
	}

	return b, nil
}

func (c *Client) endpoint(path string) string {
	u := *c.baseUrl
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	return u.String()
}

func (c *Client) setUserAgent(req *http.Request) {
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
}

func parseBaseUrl(ustr string) (*url.URL, error) {
	u, err := url.Parse(ustr)
	if err != nil {
		return nil, err
	}

	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("url scheme must be http or https")
	}

	if u.Hostname() == "" {
		return nil, fmt.Errorf("url hostname was empty")
	}

	if u.User != nil {
		return nil, fmt.Errorf("url user was not empty")
	}

	u.RawQuery = ""
	u.Fragment = ""

	return u, nil
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}
