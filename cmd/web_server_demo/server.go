package main

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"time"

	oauth "github.com/haileyok/oauth-pkce-golang"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	slogecho "github.com/samber/slog-echo"
)

//go:embed templates/*.html
var templateFS embed.FS

type DemoServer struct {
	e           *echo.Echo
	oauthClient *oauth.Client
	sessions    SessionStore
	logger      *slog.Logger
}

type DemoServerArgs struct {
	OauthClient *oauth.Client
	Sessions    SessionStore
	Logger      *slog.Logger
}

func NewDemoServer(args DemoServerArgs) (*DemoServer, error) {
	if args.OauthClient == nil {
		return nil, fmt.Errorf("no oauth client provided")
	}

	if args.Sessions == nil {
		return nil, fmt.Errorf("no session store provided")
	}

	if args.Logger == nil {
		args.Logger = slog.Default()
	}

	renderer, err := newTemplateRenderer()
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = renderer

	// callback urls carry the authorization code in the query
	e.Use(slogecho.NewWithFilters(args.Logger, slogecho.IgnorePathPrefix("/auth/callback")))
	e.Use(middleware.Recover())

	if mw, ok := args.Sessions.(sessionMiddleware); ok {
		e.Use(mw.Middleware())
	}

	s := &DemoServer{
		e:           e,
		oauthClient: args.OauthClient,
		sessions:    args.Sessions,
		logger:      args.Logger,
	}

	e.GET("/", s.handleHome)
	e.GET("/auth/login", s.handleLogin)
	e.GET("/auth/login-popup", s.handleLoginPopup)
	e.GET("/auth/callback", s.handleCallback)
	e.GET("/auth/callback-popup", s.handleCallbackPopup)
	e.GET("/auth/logout", s.handleLogout)
	e.GET("/api/organizations", s.handleOrganizations)
	e.GET("/api/projects", s.handleProjects)

	return s, nil
}

func (s *DemoServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.e.ServeHTTP(w, r)
}

type templateRenderer struct {
	templates *template.Template
}

func newTemplateRenderer() (*templateRenderer, error) {
	t, err := template.New("").Funcs(template.FuncMap{
		"formatTime": func(t time.Time) string {
			if t.IsZero() {
				return "unknown"
			}
			return t.Format(time.RFC1123)
		},
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("could not parse templates: %w", err)
	}

	return &templateRenderer{templates: t}, nil
}

func (t *templateRenderer) Render(w io.Writer, name string, data interface{}, e echo.Context) error {
	return t.templates.ExecuteTemplate(w, name, data)
}
