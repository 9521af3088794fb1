// Package guard implements the route guard served by `filemgr serve`: a
// reverse proxy that lets a request through only when it carries the session
// cookie, forwarding the cookie's credential upstream as a bearer header.
// The guard checks presence only. It never validates or refreshes; an
// expired credential is the upstream's to reject and the client's to renew.
package guard

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"sync"

	"github.com/tonimelisma/filemgr/internal/config"
	"github.com/tonimelisma/filemgr/internal/credstore"
)

// NextParam is the query parameter carrying the originally requested URI
// on a redirect to the login page.
const NextParam = "next"

// CookieSource supplies a persisted session cookie. Implemented by
// credstore.FileCookies.
type CookieSource interface {
	Load() (*http.Cookie, error)
}

// Guard is an http.Handler. Its login path, public paths, and upstream are
// read from the config holder on every request, so a reload takes effect
// without a restart.
type Guard struct {
	holder   *config.Holder
	fallback CookieSource
	logger   *slog.Logger

	mu       sync.Mutex
	upstream string
	proxy    *httputil.ReverseProxy
}

// New returns a Guard. fallback, if non-nil, is consulted when a request
// carries no cookie of its own; it lets a local browser ride on the CLI's
// login.
func New(holder *config.Holder, fallback CookieSource, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}

	return &Guard{
		holder:   holder,
		fallback: fallback,
		logger:   logger,
	}
}

// ServeHTTP implements http.Handler.
func (g *Guard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cfg := g.holder.Guard()

	proxy, err := g.proxyFor(cfg.Upstream)
	if err != nil {
		g.logger.Error("guard has no usable upstream", slog.String("error", err.Error()))
		http.Error(w, "no upstream configured", http.StatusBadGateway)

		return
	}

	cred := g.credential(r)

	switch {
	case cred != "":
		out := r.Clone(r.Context())
		out.Header.Set("Authorization", "Bearer "+cred)
		proxy.ServeHTTP(w, out)

	case isPublic(r.URL.Path, cfg.LoginPath, cfg.PublicPaths):
		proxy.ServeHTTP(w, r)

	default:
		target := loginRedirect(cfg.LoginPath, r.URL.RequestURI())

		g.logger.Debug("no session cookie, redirecting to login",
			slog.String("path", r.URL.Path),
			slog.String("location", target),
		)

		http.Redirect(w, r, target, http.StatusFound)
	}
}

// credential returns the cookie value from the request, falling back to the
// persisted cookie surface.
func (g *Guard) credential(r *http.Request) string {
	if c, err := r.Cookie(credstore.Key); err == nil && c.Value != "" {
		return c.Value
	}

	if g.fallback == nil {
		return ""
	}

	c, err := g.fallback.Load()
	if err != nil {
		g.logger.Warn("reading session cookie file", slog.String("error", err.Error()))

		return ""
	}

	if c == nil {
		return ""
	}

	return c.Value
}

// proxyFor returns a reverse proxy for upstream, rebuilding it only when the
// configured upstream changes.
func (g *Guard) proxyFor(upstream string) (*httputil.ReverseProxy, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.proxy != nil && g.upstream == upstream {
		return g.proxy, nil
	}

	if upstream == "" {
		return nil, errors.New("guard: upstream is empty")
	}

	target, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("guard: parsing upstream %q: %w", upstream, err)
	}

	g.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			g.logger.Warn("upstream request failed",
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
			w.WriteHeader(http.StatusBadGateway)
		},
	}
	g.upstream = upstream

	g.logger.Info("guard upstream set", slog.String("upstream", upstream))

	return g.proxy, nil
}

// isPublic reports whether path may be served without a session. Entries
// ending in "/" match as prefixes, others exactly. The login page is always
// public.
func isPublic(path, loginPath string, public []string) bool {
	if path == loginPath {
		return true
	}

	for _, p := range public {
		if strings.HasSuffix(p, "/") {
			if strings.HasPrefix(path, p) {
				return true
			}

			continue
		}

		if path == p {
			return true
		}
	}

	return false
}

// loginRedirect builds the login URL carrying next.
func loginRedirect(loginPath, next string) string {
	return loginPath + "?" + url.Values{NextParam: {next}}.Encode()
}
