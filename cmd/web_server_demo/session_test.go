package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	oauth "github.com/haileyok/oauth-pkce-golang"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileSessionStore(t *testing.T, secret string) *fileSessionStore {
	store, err := newFileSessionStore(t.TempDir(), secret, false)
	require.NoError(t, err)
	return store
}

func sessionFiles(t *testing.T, dir string) []string {
	matches, err := filepath.Glob(filepath.Join(dir, sessionFilePrefix+"*"))
	require.NoError(t, err)
	return matches
}

func TestFileSessionStoreFlow(t *testing.T) {
	assert := assert.New(t)
	store := newTestFileSessionStore(t, "test-secret")
	h := newHarness(t, store)

	state, _ := h.login("/auth/login")

	sess := h.session()
	require.NotNil(t, sess.Pending)
	assert.Equal(state, sess.Pending.State)
	assert.Len(sessionFiles(t, store.dir), 1)

	cookie, ok := h.cookies[cookieSessionName]
	require.True(t, ok)
	assert.NotContains(cookie.Value, sess.Pending.Verifier)
	assert.True(cookie.HttpOnly)
	assert.Equal(http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(pendingMaxAge, cookie.MaxAge)

	rec := h.get("/auth/callback?code=ABC123&state=" + url.QueryEscape(state))
	assert.Equal(http.StatusFound, rec.Code)

	sess = h.session()
	assert.Nil(sess.Pending)
	assert.Equal("T1", sess.AccessToken)
	assert.Equal("u1", sess.User.ID)
	assert.Equal(authenticatedMaxAge, h.cookies[cookieSessionName].MaxAge)
	assert.NotContains(h.cookies[cookieSessionName].Value, "T1")
	assert.Len(sessionFiles(t, store.dir), 1)

	rec = h.get("/api/organizations")
	assert.Equal(http.StatusOK, rec.Code)

	h.get("/auth/logout")
	assert.Empty(sessionFiles(t, store.dir))
	assert.Empty(h.session().AccessToken)
}

func TestFileSessionStoreRejectsForeignKey(t *testing.T) {
	h := newHarness(t, newTestFileSessionStore(t, "secret-a"))
	state, _ := h.login("/auth/login")

	other := newHarness(t, newTestFileSessionStore(t, "secret-b"))
	other.cookies = h.cookies

	rec := other.get("/auth/callback?code=ABC123&state=" + url.QueryEscape(state))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "session_expired")
	assert.Equal(t, int32(0), other.auth.tokenCalls.Load())
}

func TestFileSessionStoreIgnoresMissingFile(t *testing.T) {
	assert := assert.New(t)
	store := newTestFileSessionStore(t, "test-secret")
	h := newHarness(t, store)

	h.login("/auth/login")
	files := sessionFiles(t, store.dir)
	require.Len(t, files, 1)
	require.NoError(t, os.Remove(files[0]))

	assert.Nil(h.session().Pending)

	// a fresh login does not resurrect the old id
	h.login("/auth/login")
	next := sessionFiles(t, store.dir)
	require.Len(t, next, 1)
	assert.NotEqual(files[0], next[0])
}

func TestFileSessionStorePurgeExpired(t *testing.T) {
	assert := assert.New(t)
	store := newTestFileSessionStore(t, "test-secret")

	old := filepath.Join(store.dir, sessionFilePrefix+"old")
	fresh := filepath.Join(store.dir, sessionFilePrefix+"fresh")
	other := filepath.Join(store.dir, "unrelated")
	for _, p := range []string{old, fresh, other} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0600))
	}

	stale := time.Now().Add(-(authenticatedMaxAge + 60) * time.Second)
	require.NoError(t, os.Chtimes(old, stale, stale))
	require.NoError(t, os.Chtimes(other, stale, stale))

	n, err := store.PurgeExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(int64(1), n)

	assert.NoFileExists(old)
	assert.FileExists(fresh)
	assert.FileExists(other)
}

func TestDbSessionStoreFlow(t *testing.T) {
	assert := assert.New(t)

	store, err := newDbSessionStore(filepath.Join(t.TempDir(), "sessions.db"), false)
	require.NoError(t, err)

	h := newHarness(t, store)

	state, _ := h.login("/auth/login-popup")
	require.NotNil(t, h.session().Pending)
	assert.Equal(oauth.ModePopup, h.session().Pending.Mode)

	rec := h.get("/auth/callback?code=ABC123&state=" + url.QueryEscape(state))
	assert.Equal(http.StatusOK, rec.Code)

	sess := h.session()
	assert.Nil(sess.Pending)
	assert.Equal("T1", sess.AccessToken)
	assert.Equal("R1", sess.RefreshToken)

	var count int64
	require.NoError(t, store.db.Model(&StoredSession{}).Count(&count).Error)
	assert.Equal(int64(1), count)

	h.get("/auth/logout")
	require.NoError(t, store.db.Model(&StoredSession{}).Count(&count).Error)
	assert.Equal(int64(0), count)
}

func TestDbSessionStorePurgeExpired(t *testing.T) {
	assert := assert.New(t)

	store, err := newDbSessionStore(filepath.Join(t.TempDir(), "sessions.db"), false)
	require.NoError(t, err)

	require.NoError(t, store.db.Create(&StoredSession{ID: "old", Data: "{}", ExpiresAt: time.Now().Add(-time.Minute)}).Error)
	require.NoError(t, store.db.Create(&StoredSession{ID: "new", Data: "{}", ExpiresAt: time.Now().Add(time.Minute)}).Error)

	// expired rows are invisible even before they are purged
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sidCookieName, Value: "old"})
	data, err := store.Get(echo.New().NewContext(req, httptest.NewRecorder()))
	require.NoError(t, err)
	assert.Empty(data.ID)

	n, err := store.PurgeExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(int64(1), n)
}

func TestMemorySessionStoreIgnoresUnknownID(t *testing.T) {
	assert := assert.New(t)
	store := newMemorySessionStore(false)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sidCookieName, Value: "chosen-by-attacker"})
	rec := httptest.NewRecorder()
	e := echo.New().NewContext(req, rec)

	data, err := store.Get(e)
	require.NoError(t, err)
	assert.Empty(data.ID)

	data.AccessToken = "T1"
	require.NoError(t, store.Save(e, data))
	assert.NotEqual("chosen-by-attacker", data.ID)

	stored, ok, err := store.lookup(data.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal("T1", stored.AccessToken)
}

func TestMemorySessionStoreExpiresEntries(t *testing.T) {
	assert := assert.New(t)
	store := newMemorySessionStore(false)

	now := time.Now()
	store.now = func() time.Time { return now }

	newContext := func() echo.Context {
		return echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	}

	pending := &SessionData{Pending: &PendingAuthorization{State: "s", Verifier: "v"}}
	require.NoError(t, store.Save(newContext(), pending))

	authed := &SessionData{AccessToken: "T1"}
	require.NoError(t, store.Save(newContext(), authed))

	// an abandoned login lapses after the pending window
	now = now.Add((pendingMaxAge + 1) * time.Second)

	_, ok, err := store.lookup(pending.ID)
	require.NoError(t, err)
	assert.False(ok)

	_, ok, err = store.lookup(authed.ID)
	require.NoError(t, err)
	assert.True(ok)

	// entries nobody asks for again are swept on the next write
	abandoned := &SessionData{Pending: &PendingAuthorization{State: "s2", Verifier: "v2"}}
	require.NoError(t, store.Save(newContext(), abandoned))

	now = now.Add(authenticatedMaxAge * time.Second)
	require.NoError(t, store.Save(newContext(), &SessionData{}))

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Len(store.sessions, 1)
	assert.NotContains(store.sessions, abandoned.ID)
	assert.NotContains(store.sessions, authed.ID)
}
