package main

import (
	"errors"
	"net/http"

	oauth "github.com/haileyok/oauth-pkce-golang"
	"github.com/labstack/echo/v4"
)

const popupFallbackDelay = 1500

func (s *DemoServer) handleLogin(e echo.Context) error {
	return s.beginLogin(e, oauth.ModeRedirect)
}

func (s *DemoServer) handleLoginPopup(e echo.Context) error {
	return s.beginLogin(e, oauth.ModePopup)
}

func (s *DemoServer) beginLogin(e echo.Context, mode oauth.Mode) error {
	verifier, err := oauth.GenerateVerifier()
	if err != nil {
		return err
	}

	state, err := oauth.GenerateState(mode)
	if err != nil {
		return err
	}

	authUrl, err := s.oauthClient.AuthorizationURL(state, oauth.DeriveChallenge(verifier))
	if err != nil {
		return err
	}

	sess, err := s.sessions.Get(e)
	if err != nil {
		return err
	}

	// make sure the session is empty
	sess.reset()
	sess.Pending = &PendingAuthorization{
		State:    state.String(),
		Verifier: verifier,
		Mode:     mode,
	}

	if err := s.sessions.Save(e, sess); err != nil {
		return err
	}

	s.logger.Info("starting authorization", "mode", mode)

	return e.Redirect(http.StatusFound, authUrl)
}

func (s *DemoServer) handleCallback(e echo.Context) error {
	return s.completeCallback(e, false)
}

func (s *DemoServer) handleCallbackPopup(e echo.Context) error {
	return s.completeCallback(e, true)
}

func (s *DemoServer) completeCallback(e echo.Context, legacyPopup bool) error {
	params := callbackParamsFrom(e)

	sess, err := s.sessions.Get(e)
	if err != nil {
		return err
	}

	mode := resolveCallbackMode(params.State, sess.Pending, legacyPopup)
	logger := s.logger.With("mode", mode)

	// the access log skips callbacks so the code never reaches it
	logger.Info("callback received",
		"path", e.Request().URL.Path,
		"has_code", params.Code != "",
		"provider_error", params.Error,
	)

	flow := newCallbackFlow(s.oauthClient, logger)
	flowErr := flow.run(e.Request().Context(), sess, params)

	if flow.dirty {
		if err := s.sessions.Save(e, sess); err != nil {
			logger.Error("could not save session after callback", "phase", flow.phase, "error", err)
			// the pending verifier must not outlive a half finished callback
			if err := s.sessions.Destroy(e); err != nil {
				logger.Warn("could not destroy session", "error", err)
			}
			return s.renderCallbackError(e, mode, err)
		}
	}

	if flowErr != nil {
		return s.renderCallbackError(e, mode, flowErr)
	}

	if mode == oauth.ModePopup {
		return e.Render(http.StatusOK, "popup-complete.html", popupData{
			Ok:            true,
			FallbackDelay: popupFallbackDelay,
		})
	}

	return e.Redirect(http.StatusFound, "/")
}

func (s *DemoServer) renderCallbackError(e echo.Context, mode oauth.Mode, err error) error {
	status, title, message := describeCallbackError(err)
	classification := oauth.Classify(err)

	if mode == oauth.ModePopup {
		return e.Render(status, "popup-complete.html", popupData{
			Ok:             false,
			Classification: classification,
			Message:        message,
			FallbackDelay:  popupFallbackDelay,
		})
	}

	return e.Render(status, "error.html", errorData{
		Title:          title,
		Message:        message,
		Classification: classification,
	})
}

// describeCallbackError picks the status and the text shown to the user.
// Provider and token endpoint errors are shown as the server worded them.
func describeCallbackError(err error) (int, string, string) {
	var perr *oauth.ProviderError
	var terr *oauth.TokenExchangeError

	switch {
	case errors.As(err, &perr):
		return http.StatusBadRequest, "Authorization was not granted", perr.Error()
	case errors.As(err, &terr):
		return http.StatusBadGateway, "Token exchange failed", terr.Error()
	case errors.Is(err, oauth.ErrCsrfMismatch):
		return http.StatusBadRequest, "Login could not be verified", "The login response does not belong to this browser session. Please start again."
	case errors.Is(err, oauth.ErrSessionExpired):
		return http.StatusBadRequest, "Login session expired", "Your login session expired before the authorization server answered. Please start again."
	case errors.Is(err, oauth.ErrMissingCode):
		return http.StatusBadRequest, "Login response incomplete", "The authorization server did not return an authorization code. Please start again."
	case errors.Is(err, oauth.ErrUpstreamUnavailable):
		return http.StatusBadGateway, "Authorization server unavailable", "The authorization server could not be reached. Please start again."
	default:
		return http.StatusInternalServerError, "Login failed", "Something went wrong while completing the login. Please start again."
	}
}

func (s *DemoServer) handleLogout(e echo.Context) error {
	if err := s.sessions.Destroy(e); err != nil {
		return err
	}

	return e.Redirect(http.StatusFound, "/")
}
