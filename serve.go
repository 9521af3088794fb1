package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/filemgr/internal/config"
	"github.com/tonimelisma/filemgr/internal/credstore"
	"github.com/tonimelisma/filemgr/internal/guard"
)

// Route guard server timeouts.
const (
	serveReadHeaderTimeout = 10 * time.Second
	serveShutdownTimeout   = 10 * time.Second
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the route guard in front of the web UI",
		Long: `Serve a reverse proxy that forwards requests carrying the session cookie
to guard.upstream with the credential as a bearer header, and redirects all
others to the login page. The config file is reloaded when it changes or on
'filemgr reload'.

With --cookie-fallback, requests without a cookie of their own use the login
saved by this CLI. Any page that can reach the listen address then acts as
you, so only enable it on a loopback address you trust.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().Bool("cookie-fallback", false, "use the CLI's saved login for requests without a cookie")

	return cmd
}

func newReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Make the running route guard reload its config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			rec, err := reloadGuard(config.DefaultGuardPIDPath())
			if err != nil {
				return err
			}

			cc.Statusf("Reload requested for route guard on %s (PID %d).\n", rec.URL(), rec.PID)

			return nil
		},
	}
}

// guardFallback returns the cookie source the guard falls back to, or nil
// unless the user opted in.
func guardFallback(cfg *config.Config, enabled bool) guard.CookieSource {
	if !enabled {
		return nil
	}

	return credstore.NewFileCookies(cfg.Cookie.Path, nil, nil)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	logger := cc.Logger

	hup := make(chan os.Signal, 1)
	ctx, stop := shutdownContext(cmd.Context(), logger, hup)
	defer stop()

	useFallback, _ := cmd.Flags().GetBool("cookie-fallback")

	holder := config.NewHolder(cc.Cfg, cc.ConfigPath)
	fallback := guardFallback(cc.Cfg, useFallback)

	if fallback != nil {
		logger.Warn("cookie fallback enabled: requests without a cookie act as the CLI's login",
			slog.String("listen", cc.Cfg.Guard.Listen),
		)
	}

	if cc.Cfg.Guard.Upstream == "" {
		logger.Warn("guard.upstream is not set; guarded requests will fail until it is configured")
	}

	lock, err := acquireGuardLock(config.DefaultGuardPIDPath())
	if err != nil {
		return err
	}
	defer lock.release()

	ln, err := net.Listen("tcp", cc.Cfg.Guard.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cc.Cfg.Guard.Listen, err)
	}

	if err := lock.advertise(ln.Addr().String()); err != nil {
		// reload still works; status just cannot show the address.
		logger.Warn("recording guard address", slog.String("error", err.Error()))
	}

	cc.Statusf("Route guard listening on http://%s\n", ln.Addr())

	reload := func() (*config.Config, error) {
		return config.Resolve(cc.Env, cc.CLI)
	}

	return serveGuard(ctx, ln, guard.New(holder, fallback, logger), holder, reload, hup, logger)
}

// serveGuard runs the HTTP server on ln and the config watcher until ctx is
// done, then shuts the server down gracefully. Each value on hup forces a
// reload, for filesystems where change notification is unreliable.
func serveGuard(
	ctx context.Context, ln net.Listener, handler http.Handler,
	holder *config.Holder, reload config.ReloadFunc, hup <-chan os.Signal, logger *slog.Logger,
) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: serveReadHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		err := config.Watch(gctx, holder, reload, logger, func(cfg *config.Config) {
			logger.Debug("guard settings applied",
				slog.String("upstream", cfg.Guard.Upstream),
				slog.String("login_path", cfg.Guard.LoginPath),
			)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			// The guard still works on the config it started with.
			logger.Warn("config watcher stopped", slog.String("error", err.Error()))
		}

		return nil
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				reloadNow(holder, reload, logger)
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), serveShutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// reloadNow replaces the held config, keeping the old one if reload fails.
func reloadNow(holder *config.Holder, reload config.ReloadFunc, logger *slog.Logger) {
	cfg, err := reload()
	if err != nil {
		logger.Warn("config reload failed, keeping previous config", slog.String("error", err.Error()))

		return
	}

	if !holder.Update(cfg) {
		logger.Info("config reloaded on SIGHUP, guard settings unchanged")

		return
	}

	logger.Info("config reloaded on SIGHUP",
		slog.String("upstream", cfg.Guard.Upstream),
		slog.String("login_path", cfg.Guard.LoginPath),
	)
}
