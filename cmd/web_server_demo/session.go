package main

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/sessions"
	oauth "github.com/haileyok/oauth-pkce-golang"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
)

const (
	cookieSessionName = "session"
	sessionDataKey    = "data"
	sessionExpiresKey = "expires"
	sidCookieName     = "oauth_demo_sid"

	// gorilla names every session file with this prefix
	sessionFilePrefix = "session_"

	pendingMaxAge       = 300 // five minutes to finish the login
	authenticatedMaxAge = 86400 * 7
)

// PendingAuthorization lives in the session between the redirect to the
// authorization server and the callback. It is consumed by the callback.
type PendingAuthorization struct {
	State    string     `json:"state"`
	Verifier string     `json:"verifier"`
	Mode     oauth.Mode `json:"mode"`
}

type SessionData struct {
	ID           string                `json:"-"`
	Pending      *PendingAuthorization `json:"pending,omitempty"`
	AccessToken  string                `json:"access_token,omitempty"`
	RefreshToken string                `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time             `json:"expires_at,omitzero"`
	User         *oauth.User           `json:"user,omitempty"`
}

func (s *SessionData) Authenticated() bool {
	return s.AccessToken != ""
}

// reset empties the session but keeps its identity.
func (s *SessionData) reset() {
	*s = SessionData{ID: s.ID}
}

func (s *SessionData) maxAge() int {
	if s.Authenticated() {
		return authenticatedMaxAge
	}

	return pendingMaxAge
}

// SessionStore is injected into the handlers so they never reach for
// request-bound globals.
type SessionStore interface {
	// Get returns the caller's session, or an empty one if there is none.
	Get(e echo.Context) (*SessionData, error)
	Save(e echo.Context, data *SessionData) error
	Destroy(e echo.Context) error
}

// stores that need to run in the request chain implement this
type sessionMiddleware interface {
	Middleware() echo.MiddlewareFunc
}

// fileSessionStore keeps the session body in encrypted files on the server.
// The browser only ever holds the encoded session id, so the size of the
// tokens never reaches the cookie and the pending verifier is never readable
// by the browser.
type fileSessionStore struct {
	store  *sessions.FilesystemStore
	dir    string
	secure bool
}

func newFileSessionStore(dir, secret string, secure bool) (*fileSessionStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("could not create session dir: %w", err)
	}

	hashKey := sha256.Sum256([]byte("hash:" + secret))
	blockKey := sha256.Sum256([]byte("block:" + secret))

	store := sessions.NewFilesystemStore(dir, hashKey[:], blockKey[:])
	// the 4096 byte default only makes sense for cookies, the file holds the tokens
	store.MaxLength(0)
	store.MaxAge(authenticatedMaxAge)

	return &fileSessionStore{
		store:  store,
		dir:    dir,
		secure: secure,
	}, nil
}

func (f *fileSessionStore) Middleware() echo.MiddlewareFunc {
	return session.Middleware(f.store)
}

func (f *fileSessionStore) Get(e echo.Context) (*SessionData, error) {
	sess, err := session.Get(cookieSessionName, e)
	if sess == nil {
		return nil, err
	}

	// an undecodable cookie (rotated secret, tampering) or a missing file is
	// an empty session
	if err != nil {
		return &SessionData{}, nil
	}

	if exp, ok := sess.Values[sessionExpiresKey].(int64); !ok || time.Now().Unix() >= exp {
		return &SessionData{}, nil
	}

	raw, ok := sess.Values[sessionDataKey].(string)
	if !ok {
		return &SessionData{}, nil
	}

	var data SessionData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return &SessionData{}, nil
	}
	data.ID = sess.ID

	return &data, nil
}

func (f *fileSessionStore) Save(e echo.Context, data *SessionData) error {
	sess, err := session.Get(cookieSessionName, e)
	if sess == nil {
		return err
	}

	// never write under an id whose file could not be loaded
	if err != nil {
		sess.ID = ""
	}

	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("could not encode session: %w", err)
	}

	maxAge := data.maxAge()
	sess.Options = f.options(maxAge)
	sess.Values = map[interface{}]interface{}{
		sessionDataKey:    string(b),
		sessionExpiresKey: time.Now().Add(time.Duration(maxAge) * time.Second).Unix(),
	}

	if err := sess.Save(e.Request(), e.Response()); err != nil {
		return fmt.Errorf("could not save session: %w", err)
	}
	data.ID = sess.ID

	return nil
}

func (f *fileSessionStore) Destroy(e echo.Context) error {
	sess, err := session.Get(cookieSessionName, e)
	if sess == nil {
		return err
	}

	sess.Options = f.options(-1)
	sess.Values = map[interface{}]interface{}{}

	return sess.Save(e.Request(), e.Response())
}

// PurgeExpired removes session files that have not been written for longer
// than an authenticated session may live.
func (f *fileSessionStore) PurgeExpired(ctx context.Context) (int64, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-authenticatedMaxAge * time.Second)

	var n int64
	for _, entry := range entries {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}

		if entry.IsDir() || !strings.HasPrefix(entry.Name(), sessionFilePrefix) {
			continue
		}

		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		if err := os.Remove(filepath.Join(f.dir, entry.Name())); err != nil && !os.IsNotExist(err) {
			return n, err
		}
		n++
	}

	return n, nil
}

func (f *fileSessionStore) options(maxAge int) *sessions.Options {
	return &sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   f.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func readSessionID(e echo.Context) string {
	c, err := e.Cookie(sidCookieName)
	if err != nil {
		return ""
	}

	return c.Value
}

func writeSessionID(e echo.Context, id string, maxAge int, secure bool) {
	e.SetCookie(&http.Cookie{
		Name:     sidCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
