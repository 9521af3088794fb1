package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/tonimelisma/filemgr/internal/api"
	"github.com/tonimelisma/filemgr/internal/config"
	"github.com/tonimelisma/filemgr/internal/credential"
	"github.com/tonimelisma/filemgr/internal/credstore"
	"github.com/tonimelisma/filemgr/internal/kvstore"
	"github.com/tonimelisma/filemgr/internal/session"
)

// AppSession holds the wired session and the API client whose requests
// travel through it. Every command that talks to the server opens one and
// closes it on return.
type AppSession struct {
	Session *session.Session
	Client  *api.Client
	Cookies *credstore.FileCookies
}

// openSession builds the credential store on the configured backends, the
// session over it, and the API client over the session's pipeline, then
// recovers any persisted login.
func openSession(ctx context.Context, cc *CLIContext) (*AppSession, error) {
	cfg := cc.Cfg
	logger := cc.Logger

	serverURL, err := url.Parse(cfg.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("parsing server URL: %w", err)
	}

	durable, err := openDurable(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	jar, err := credstore.NewJar()
	if err != nil {
		_ = durable.Close()
		return nil, err
	}

	cookies := credstore.NewFileCookies(cfg.Cookie.Path, jar, serverURL)

	store := credstore.New(credstore.Options{
		Durable: durable,
		Cookies: cookies,
		Secure:  serverURL.Scheme == "https",
		Logger:  logger,
	})

	base := newHTTPClient(cfg)
	base.Jar = jar

	userAgent := cfg.Network.UserAgent

	sess := session.New(session.Options{
		Store:     store,
		Exchanger: api.NewAuthClient(cfg.ServerURL, base, logger, userAgent),
		Validator: credential.Validator{Leeway: cfg.Session.ClockSkewDuration()},
		Logger:    logger,
		OnExpired: func(error) {
			// Always visible, like any prompt the user must act on.
			statusf(false, "Session expired. Run 'filemgr login' to sign in again.\n")
		},
	})

	client := api.NewClient(cfg.ServerURL, sess.HTTPClient(base), logger, userAgent)
	client.SetRateLimit(cfg.Network.RequestsPerSecond)
	sess.BindIdentitySource(client)

	state := sess.Bootstrap(ctx)
	logger.Debug("session opened",
		slog.String("server", cfg.ServerURL),
		slog.String("backend", cfg.Store.Backend),
		slog.String("state", state.String()),
	)

	return &AppSession{Session: sess, Client: client, Cookies: cookies}, nil
}

// openDurable opens the configured key/value backend.
func openDurable(ctx context.Context, cfg *config.Config, logger *slog.Logger) (kvstore.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendRedis:
		store, err := kvstore.DialRedis(ctx, cfg.Store.RedisAddr, cfg.Store.RedisDB, cfg.Store.KeyPrefix)
		if err != nil {
			return nil, fmt.Errorf("opening credential store: %w", err)
		}

		return store, nil
	default:
		store, err := kvstore.OpenSQLite(ctx, cfg.Store.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("opening credential store: %w", err)
		}

		return store, nil
	}
}

// requireLogin fails fast when there is no credential at all. An expired
// credential is let through: the first request refreshes it or ends the
// session.
func (a *AppSession) requireLogin() error {
	if a.Session.State() == session.StateAnonymous {
		return fmt.Errorf("not logged in: run 'filemgr login' first")
	}

	return nil
}

// Close releases the durable store.
func (a *AppSession) Close() error {
	return a.Session.Close()
}
