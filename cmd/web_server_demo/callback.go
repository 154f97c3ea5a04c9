package main

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"time"

	oauth "github.com/haileyok/oauth-pkce-golang"
	"github.com/haileyok/oauth-pkce-golang/internal/helpers"
	"github.com/labstack/echo/v4"
)

type callbackPhase string

const (
	phaseAwaitingCallback callbackPhase = "awaiting_callback"
	phaseValidating       callbackPhase = "validating"
	phaseExchanging       callbackPhase = "exchanging"
	phaseFetchingProfile  callbackPhase = "fetching_profile"
	phaseComplete         callbackPhase = "complete"
	phaseErrored          callbackPhase = "errored"
)

type callbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

func callbackParamsFrom(e echo.Context) callbackParams {
	return callbackParams{
		Code:             e.QueryParam("code"),
		State:            e.QueryParam("state"),
		Error:            e.QueryParam("error"),
		ErrorDescription: e.QueryParam("error_description"),
	}
}

// callbackFlow drives one callback from AWAITING_CALLBACK to COMPLETE or
// ERRORED. It is used once per request.
type callbackFlow struct {
	client *oauth.Client
	logger *slog.Logger
	phase  callbackPhase

	// set once the session has been changed and needs saving
	dirty bool
}

func newCallbackFlow(client *oauth.Client, logger *slog.Logger) *callbackFlow {
	return &callbackFlow{
		client: client,
		logger: logger,
		phase:  phaseAwaitingCallback,
	}
}

func (f *callbackFlow) transition(next callbackPhase) {
	f.logger.Debug("callback transition", "from", f.phase, "phase", next)
	f.phase = next
}

func (f *callbackFlow) fail(err error) error {
	f.logger.Warn("callback failed", "phase", f.phase, "classification", oauth.Classify(err), "error", err)
	f.phase = phaseErrored
	return err
}

func (f *callbackFlow) run(ctx context.Context, sess *SessionData, p callbackParams) error {
	f.transition(phaseValidating)

	pending := sess.Pending
	matched := pending != nil && p.State != "" &&
		subtle.ConstantTimeCompare([]byte(p.State), []byte(pending.State)) == 1

	if p.Error != "" {
		if matched {
			f.consumePending(sess)
		}
		return f.fail(&oauth.ProviderError{Code: p.Error, Description: p.ErrorDescription})
	}

	if pending == nil || pending.State == "" || pending.Verifier == "" {
		return f.fail(oauth.ErrSessionExpired)
	}

	if !matched {
		return f.fail(oauth.ErrCsrfMismatch)
	}

	// whatever happens next, this verifier has been spent
	verifier := pending.Verifier
	f.consumePending(sess)

	if p.Code == "" {
		return f.fail(oauth.ErrMissingCode)
	}

	f.transition(phaseExchanging)

	tokens, err := f.client.InitialTokenRequest(ctx, p.Code, verifier)
	if err != nil {
		return f.fail(err)
	}

	sess.AccessToken = tokens.AccessToken
	sess.RefreshToken = tokens.RefreshToken
	if tokens.ExpiresIn > 0 {
		sess.ExpiresAt = time.Now().Add(time.Duration(tokens.ExpiresIn) * time.Second)
	}

	f.logger.Info("token exchange succeeded", "access_token", helpers.Redact(tokens.AccessToken), "expires_in", tokens.ExpiresIn)

	f.transition(phaseFetchingProfile)

	user, err := f.client.FetchProfile(ctx, tokens.AccessToken)
	if err != nil {
		f.logger.Warn("profile fetch failed, continuing without profile", "error", err)
		sess.User = nil
	} else {
		sess.User = user
	}

	f.transition(phaseComplete)

	return nil
}

func (f *callbackFlow) consumePending(sess *SessionData) {
	sess.Pending = nil
	f.dirty = true
}

// resolveCallbackMode decides how the callback answers. The legacy popup route
// assumes popup when the state does not say otherwise.
func resolveCallbackMode(rawState string, pending *PendingAuthorization, legacyPopup bool) oauth.Mode {
	if legacyPopup && !oauth.HasModeMarker(rawState) {
		return oauth.ModePopup
	}

	if st, err := oauth.ParseState(rawState); err == nil {
		return st.Mode
	}

	if pending != nil && pending.Mode.Valid() {
		return pending.Mode
	}

	return oauth.ModeRedirect
}
