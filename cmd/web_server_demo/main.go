package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/carlmjohnson/versioninfo"
	oauth "github.com/haileyok/oauth-pkce-golang"
	"github.com/haileyok/oauth-pkce-golang/internal/helpers"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	// a missing .env is fine, the environment may already be set
	_ = godotenv.Load()

	app := &cli.App{
		Name:    "oauth-pkce-demo",
		Usage:   "example web client for the oauth 2.0 authorization code flow with pkce",
		Version: versioninfo.Short(),
		Flags:   flags,
		Action:  run,
	}

	app.RunAndExitOnError()
}

var flags = []cli.Flag{
	&cli.StringFlag{
		Name:    "client-id",
		Usage:   "client id registered with the authorization server",
		Value:   "your-client-id",
		EnvVars: []string{"CLIENT_ID"},
	},
	&cli.StringFlag{
		Name:    "client-secret",
		Usage:   "client secret registered with the authorization server",
		Value:   "your-client-secret",
		EnvVars: []string{"CLIENT_SECRET"},
	},
	&cli.StringFlag{
		Name:    "auth-server-url",
		Usage:   "base url of the authorization server",
		Value:   "http://localhost:3000",
		EnvVars: []string{"AUTH_SERVER_URL"},
	},
	&cli.StringFlag{
		Name:    "callback-url",
		Usage:   "redirect uri registered for this client",
		Value:   "http://localhost:4000/auth/callback",
		EnvVars: []string{"CALLBACK_URL"},
	},
	&cli.StringFlag{
		Name:    "scopes",
		Usage:   "space separated scopes to request",
		Value:   "profile email organizations:read",
		EnvVars: []string{"SCOPES"},
	},
	&cli.IntFlag{
		Name:    "port",
		Value:   4000,
		EnvVars: []string{"PORT"},
	},
	&cli.StringFlag{
		Name:    "session-secret",
		Usage:   "key material for session cookies. random per process if empty",
		EnvVars: []string{"SESSION_SECRET"},
	},
	&cli.StringFlag{
		Name:    "session-backend",
		Usage:   "filesystem, memory or sqlite",
		Value:   "filesystem",
		EnvVars: []string{"SESSION_BACKEND"},
	},
	&cli.StringFlag{
		Name:    "session-dir",
		Usage:   "directory for the filesystem backend. defaults to a directory under the system temp dir",
		EnvVars: []string{"SESSION_DIR"},
	},
	&cli.StringFlag{
		Name:    "session-db-path",
		Value:   "./sessions.db",
		EnvVars: []string{"SESSION_DB_PATH"},
	},
	&cli.DurationFlag{
		Name:    "http-timeout",
		Usage:   "timeout for each call to the authorization and resource servers",
		Value:   5 * time.Second,
		EnvVars: []string{"HTTP_TIMEOUT"},
	},
	&cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		EnvVars: []string{"LOG_LEVEL"},
	},
	&cli.StringFlag{
		Name:    "log-format",
		Usage:   "text or json",
		Value:   "text",
		EnvVars: []string{"LOG_FORMAT"},
	},
}

func run(cmd *cli.Context) error {
	logger, err := newLogger(cmd.String("log-level"), cmd.String("log-format"))
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	callbackUrl := cmd.String("callback-url")
	secure := strings.HasPrefix(callbackUrl, "https://")

	oauthClient, err := oauth.NewClient(oauth.ClientArgs{
		H:            &http.Client{Timeout: cmd.Duration("http-timeout")},
		Logger:       logger,
		BaseUrl:      cmd.String("auth-server-url"),
		ClientId:     cmd.String("client-id"),
		ClientSecret: cmd.String("client-secret"),
		RedirectUri:  callbackUrl,
		Scopes:       strings.Fields(cmd.String("scopes")),
		UserAgent:    "oauth-pkce-golang/" + versioninfo.Short(),
	})
	if err != nil {
		return err
	}

	store, err := newSessionStore(cmd, logger, secure)
	if err != nil {
		return err
	}

	s, err := NewDemoServer(DemoServerArgs{
		OauthClient: oauthClient,
		Sessions:    store,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	httpd := http.Server{
		Addr:              fmt.Sprintf(":%d", cmd.Int("port")),
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpd.Shutdown(shutdownCtx)
	}()

	logger.Info("starting http server",
		"addr", httpd.Addr,
		"auth_server", cmd.String("auth-server-url"),
		"callback_url", callbackUrl,
		"client_id", cmd.String("client-id"),
		"session_backend", cmd.String("session-backend"),
	)

	if err := httpd.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func newSessionStore(cmd *cli.Context, logger *slog.Logger, secure bool) (SessionStore, error) {
	switch backend := cmd.String("session-backend"); backend {
	case "filesystem":
		secret := cmd.String("session-secret")
		if secret == "" {
			generated, err := helpers.GenerateToken(32)
			if err != nil {
				return nil, err
			}
			secret = generated
			logger.Warn("no session secret configured, sessions will not survive a restart")
		}

		dir := cmd.String("session-dir")
		if dir == "" {
			dir = filepath.Join(os.TempDir(), "oauth-pkce-demo-sessions")
		}

		store, err := newFileSessionStore(dir, secret, secure)
		if err != nil {
			return nil, err
		}
		purgeExpired(cmd.Context, logger, store)
		return store, nil
	case "memory":
		return newMemorySessionStore(secure), nil
	case "sqlite":
		store, err := newDbSessionStore(cmd.String("session-db-path"), secure)
		if err != nil {
			return nil, err
		}
		purgeExpired(cmd.Context, logger, store)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", backend)
	}
}

type expiringSessionStore interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

func purgeExpired(ctx context.Context, logger *slog.Logger, store expiringSessionStore) {
	if n, err := store.PurgeExpired(ctx); err != nil {
		logger.Warn("could not purge expired sessions", "error", err)
	} else if n > 0 {
		logger.Info("purged expired sessions", "count", n)
	}
}

func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	opts := &slog.HandlerOptions{Level: lvl}

	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stdout, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(os.Stdout, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}
