// Package credstore holds the canonical session credential and the identity
// cached with it, and mirrors the credential onto two persistence surfaces: a
// durable key/value entry and a short-lived cookie read by the route guard.
//
// The in-memory value is authoritative. Surface writes are best-effort: a
// failed write is reported to the caller but never rolls back the state
// transition it accompanied.
package credstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/tonimelisma/filemgr/internal/credential"
	"github.com/tonimelisma/filemgr/internal/kvstore"
)

// Key is the durable entry name and the cookie name holding the credential.
const Key = "token"

// Durable is the long-lived key/value surface. kvstore.Store satisfies it;
// Get must return kvstore.ErrNotFound for a missing key.
type Durable interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// CookieSurface is the short-lived cookie surface.
type CookieSurface interface {
	Load() (*http.Cookie, error)
	Save(c *http.Cookie) error
	Remove() error
}

// Options configures a Store.
type Options struct {
	Durable Durable
	Cookies CookieSurface

	// Secure marks the cookie Secure; set when the server is reached over TLS.
	Secure bool

	Logger *slog.Logger
}

// Store is the single owner of the session credential and identity. All
// methods are safe for concurrent use.
type Store struct {
	// mu guards cred and identity. It is never held across I/O.
	mu       sync.RWMutex
	cred     credential.Credential
	identity *credential.Identity

	// writeMu serialises surface writes so they land in the same order as
	// the in-memory updates they mirror.
	writeMu sync.Mutex

	durable Durable
	cookies CookieSurface
	secure  bool
	logger  *slog.Logger
}

// New creates an empty Store. Call Bootstrap to recover a persisted
// credential.
func New(opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		durable: opts.Durable,
		cookies: opts.Cookies,
		secure:  opts.Secure,
		logger:  logger,
	}
}

// Bootstrap reads the durable surface and installs whatever credential it
// holds, without validating it. A failed or corrupted read counts as absence.
// The cookie surface is brought back in line with the result.
func (s *Store) Bootstrap(ctx context.Context) credential.Credential {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cred := s.readDurable(ctx)

	s.mu.Lock()
	s.cred = cred
	s.identity = nil
	s.mu.Unlock()

	s.reconcileCookie(cred)

	s.logger.Debug("credential store bootstrapped",
		slog.Bool("present", !cred.IsZero()),
		slog.String("fingerprint", cred.Fingerprint()),
	)

	return cred
}

func (s *Store) readDurable(ctx context.Context) credential.Credential {
	if s.durable == nil {
		return ""
	}

	raw, err := s.durable.Get(ctx, Key)
	if errors.Is(err, kvstore.ErrNotFound) {
		return ""
	}

	if err != nil {
		s.logger.Warn("unreadable persisted credential, treating as absent",
			slog.String("error", err.Error()),
		)

		return ""
	}

	return credential.Credential(raw)
}

// reconcileCookie rewrites the cookie only when it disagrees with cred.
func (s *Store) reconcileCookie(cred credential.Credential) {
	if s.cookies == nil {
		return
	}

	if cred.IsZero() {
		if err := s.cookies.Remove(); err != nil {
			s.logger.Warn("removing stale credential cookie", slog.String("error", err.Error()))
		}

		return
	}

	existing, err := s.cookies.Load()
	if err == nil && existing != nil && existing.Value == string(cred) {
		return
	}

	if err := s.cookies.Save(s.cookieFor(cred)); err != nil {
		s.logger.Warn("resyncing credential cookie", slog.String("error", err.Error()))
	}
}

// Get returns the current credential, or the empty credential. No I/O.
func (s *Store) Get() credential.Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.cred
}

// Set installs c (or clears the session when c is empty) and writes both
// surfaces. The in-memory value is updated first and stays updated even when
// a surface write fails; such failures are returned joined.
func (s *Store) Set(ctx context.Context, c credential.Credential) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.cred != c || c.IsZero() {
		s.identity = nil
	}

	s.cred = c
	s.mu.Unlock()

	err := s.writeSurfaces(ctx, c)
	if err != nil {
		s.logger.Warn("credential surfaces not fully written",
			slog.Bool("cleared", c.IsZero()),
			slog.String("error", err.Error()),
		)
	}

	return err
}

// Clear removes the credential and identity from memory and both surfaces.
func (s *Store) Clear(ctx context.Context) error {
	return s.Set(ctx, "")
}

func (s *Store) writeSurfaces(ctx context.Context, c credential.Credential) error {
	var errs []error

	if s.durable != nil {
		var err error
		if c.IsZero() {
			err = s.durable.Delete(ctx, Key)
		} else {
			err = s.durable.Put(ctx, Key, string(c))
		}

		if err != nil {
			errs = append(errs, fmt.Errorf("credstore: durable surface: %w", err))
		}
	}

	if s.cookies != nil {
		var err error
		if c.IsZero() {
			err = s.cookies.Remove()
		} else {
			err = s.cookies.Save(s.cookieFor(c))
		}

		if err != nil {
			errs = append(errs, fmt.Errorf("credstore: cookie surface: %w", err))
		}
	}

	return errors.Join(errs...)
}

// cookieFor builds the route-guard cookie for c. The cookie expires with the
// credential; a credential without a readable exp gets a session cookie.
func (s *Store) cookieFor(c credential.Credential) *http.Cookie {
	return &http.Cookie{
		Name:     Key,
		Value:    string(c),
		Path:     "/",
		Expires:  credential.Expiry(c),
		SameSite: http.SameSiteLaxMode,
		Secure:   s.secure,
	}
}

// Identity returns a copy of the cached identity, or nil.
func (s *Store) Identity() *credential.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.identity == nil {
		return nil
	}

	id := *s.identity

	return &id
}

// SetIdentity caches id for credential c. It is ignored (and reports false)
// if c is no longer the current credential, so a slow fetch cannot attach an
// identity to a session that has since changed hands.
func (s *Store) SetIdentity(c credential.Credential, id *credential.Identity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.IsZero() || s.cred != c {
		return false
	}

	if id == nil {
		s.identity = nil
		return true
	}

	cp := *id
	s.identity = &cp

	return true
}

// Close releases the durable surface if it holds resources.
func (s *Store) Close() error {
	if closer, ok := s.durable.(io.Closer); ok {
		return closer.Close()
	}

	return nil
}
