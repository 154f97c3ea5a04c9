package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	oauth "github.com/haileyok/oauth-pkce-golang"
	"github.com/haileyok/oauth-pkce-golang/internal/helpers"
	"github.com/labstack/echo/v4"
)

func (s *DemoServer) handleHome(e echo.Context) error {
	sess, err := s.sessions.Get(e)
	if err != nil {
		return err
	}

	if !sess.Authenticated() {
		return e.Render(http.StatusOK, "login.html", nil)
	}

	data := homeData{
		User:        sess.User,
		TokenPrefix: helpers.Redact(sess.AccessToken),
		ExpiresAt:   sess.ExpiresAt,
	}

	if claims, ok := oauth.PeekClaims(sess.AccessToken); ok {
		data.Claims = claims
	}

	// the listing is decoration; failures only show up as a note
	resp, err := s.oauthClient.FetchResource(e.Request().Context(), oauth.OrganizationsPath, sess.AccessToken)
	switch {
	case err != nil:
		s.logger.Warn("could not list organizations", "error", err)
		data.OrganizationsError = "Organizations are unavailable right now."
	case resp.StatusCode != http.StatusOK:
		data.OrganizationsError = fmt.Sprintf("The resource server answered with status %d.", resp.StatusCode)
	default:
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, resp.Body, "", "  "); err != nil {
			data.Organizations = string(resp.Body)
		} else {
			data.Organizations = pretty.String()
		}
	}

	return e.Render(http.StatusOK, "home.html", data)
}

func (s *DemoServer) handleOrganizations(e echo.Context) error {
	return s.proxyResource(e, oauth.OrganizationsPath)
}

func (s *DemoServer) handleProjects(e echo.Context) error {
	return s.proxyResource(e, oauth.ProjectsPath)
}

func (s *DemoServer) proxyResource(e echo.Context, path string) error {
	sess, err := s.sessions.Get(e)
	if err != nil {
		return err
	}

	if !sess.Authenticated() {
		return e.JSON(http.StatusUnauthorized, map[string]string{
			"error": oauth.Classify(oauth.ErrUnauthenticated),
		})
	}

	resp, err := s.oauthClient.FetchResource(e.Request().Context(), path, sess.AccessToken)
	if err != nil {
		s.logger.Error("resource request failed", "path", path, "classification", oauth.Classify(err), "error", err)
		return e.JSON(http.StatusBadGateway, map[string]string{
			"error": oauth.Classify(oauth.ErrUpstreamUnavailable),
		})
	}

	contentType := resp.ContentType
	if contentType == "" {
		contentType = echo.MIMEApplicationJSON
	}

	return e.Blob(resp.StatusCode, contentType, resp.Body)
}
