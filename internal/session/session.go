// Package session is the entry point for everything that needs to know who
// the user is or needs to talk to the server as them. A Session owns the
// credential store, the single-flight refresh coordinator, and the request
// pipeline, and exposes the lifecycle operations (bootstrap, login, logout).
//
// Sessions are explicit values: create one with New, wire its Transport into
// the API client, and Close it on exit. Tests create as many isolated
// sessions as they need.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/tonimelisma/filemgr/internal/credential"
	"github.com/tonimelisma/filemgr/internal/credstore"
)

// ErrNotLoggedIn is returned by operations that need a credential when the
// session has none.
var ErrNotLoggedIn = errors.New("session: not logged in")

// identityKey is the singleflight key for lazy identity fetches.
const identityKey = "identity"

// Exchanger performs the credential-issuing exchanges with the server.
// Implemented by api.AuthClient.
type Exchanger interface {
	Refresher
	Login(ctx context.Context, email, password string) (credential.Credential, *credential.Identity, error)
	Register(ctx context.Context, name, email, password string) (credential.Credential, *credential.Identity, error)
}

// IdentitySource looks up the authenticated user. Implemented by api.Client,
// whose requests travel through this session's Transport.
type IdentitySource interface {
	Me(ctx context.Context) (*credential.Identity, error)
}

// Options configures a Session.
type Options struct {
	Store     *credstore.Store
	Exchanger Exchanger
	Validator credential.Validator
	Logger    *slog.Logger

	// OnExpired is called once per credential when the session ends because
	// the server rejected it and it could not be refreshed. The CLI uses it
	// to point the user at `filemgr login`.
	OnExpired func(cause error)
}

// Session is the facade over the credential store, refresh coordinator, and
// request pipeline.
type Session struct {
	store       *credstore.Store
	exchanger   Exchanger
	validator   credential.Validator
	coordinator *RefreshCoordinator
	logger      *slog.Logger

	identityMu    sync.RWMutex
	identitySrc   IdentitySource
	identityGroup singleflight.Group

	expiredMu   sync.Mutex
	onExpired   func(cause error)
	lastExpired credential.Credential
}

var _ oauth2.TokenSource = (*Session)(nil)

// New creates a Session. The store is not read until Bootstrap.
func New(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		store:       opts.Store,
		exchanger:   opts.Exchanger,
		validator:   opts.Validator,
		coordinator: NewRefreshCoordinator(opts.Store, opts.Exchanger, opts.Validator, logger),
		logger:      logger,
		onExpired:   opts.OnExpired,
	}
}

// BindIdentitySource sets where CurrentIdentity fetches from. It is part of
// wiring: the API client needs the session's Transport before it exists, so
// the client is bound after construction.
func (s *Session) BindIdentitySource(src IdentitySource) {
	s.identityMu.Lock()
	defer s.identityMu.Unlock()

	s.identitySrc = src
}

// Bootstrap recovers a persisted credential. The result is installed without
// validation; State and IsAuthenticated judge it on every call.
func (s *Session) Bootstrap(ctx context.Context) State {
	s.store.Bootstrap(ctx)

	state := s.State()
	s.logger.Debug("session bootstrapped", slog.String("state", state.String()))

	return state
}

// Login installs c and, if known, the identity it belongs to.
func (s *Session) Login(ctx context.Context, c credential.Credential, identity *credential.Identity) error {
	err := s.store.Set(ctx, c)

	if identity != nil {
		s.store.SetIdentity(c, identity)
	}

	s.logger.Info("logged in",
		slog.String("fingerprint", c.Fingerprint()),
		slog.Time("expiry", credential.Expiry(c)),
	)

	return err
}

// LoginWithPassword performs the login exchange and installs its result.
func (s *Session) LoginWithPassword(ctx context.Context, email, password string) (*credential.Identity, error) {
	if s.exchanger == nil {
		return nil, errors.New("session: no exchanger configured")
	}

	c, identity, err := s.exchanger.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}

	if err := s.Login(ctx, c, identity); err != nil {
		s.logger.Warn("login persisted partially", slog.String("error", err.Error()))
	}

	return identity, nil
}

// Register performs the registration exchange and installs its result.
func (s *Session) Register(ctx context.Context, name, email, password string) (*credential.Identity, error) {
	if s.exchanger == nil {
		return nil, errors.New("session: no exchanger configured")
	}

	c, identity, err := s.exchanger.Register(ctx, name, email, password)
	if err != nil {
		return nil, err
	}

	if err := s.Login(ctx, c, identity); err != nil {
		s.logger.Warn("registration persisted partially", slog.String("error", err.Error()))
	}

	return identity, nil
}

// Logout clears the credential and identity. It needs no network call and is
// idempotent; the returned error only reports surfaces that could not be
// cleared, the in-memory session is gone regardless.
func (s *Session) Logout(ctx context.Context) error {
	err := s.store.Clear(ctx)

	s.logger.Info("logged out")

	return err
}

// Refresh forces a refresh exchange for the current credential.
func (s *Session) Refresh(ctx context.Context) (credential.Credential, error) {
	current := s.store.Get()
	if current.IsZero() {
		return "", ErrNotLoggedIn
	}

	fresh, err := s.coordinator.Refresh(ctx, current)
	if errors.Is(err, credential.ErrRefreshFailed) {
		return "", s.expire(ctx, current, err)
	}

	return fresh, err
}

// Credential returns the current credential, which may be empty or expired.
func (s *Session) Credential() credential.Credential {
	return s.store.Get()
}

// IsAuthenticated reports whether a credential is present and valid right
// now. It is recomputed on every call.
func (s *Session) IsAuthenticated() bool {
	c := s.store.Get()

	return !c.IsZero() && s.validator.IsValid(c)
}

// State classifies the session.
func (s *Session) State() State {
	c := s.store.Get()

	switch {
	case c.IsZero():
		return StateAnonymous
	case s.coordinator.InFlight():
		return StateRefreshing
	case !s.validator.IsValid(c):
		return StateExpired
	default:
		return StateAuthenticated
	}
}

// Token implements oauth2.TokenSource over the current credential, so
// oauth2-aware clients can share the session. It never refreshes.
func (s *Session) Token() (*oauth2.Token, error) {
	c := s.store.Get()
	if c.IsZero() {
		return nil, ErrNotLoggedIn
	}

	if err := s.validator.Check(c); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	return bearer(c), nil
}

// CurrentIdentity returns the cached identity. If none is cached and the
// session is authenticated, it is fetched; concurrent callers share one
// fetch. An anonymous session returns (nil, nil). Fetch failures wrap
// credential.ErrIdentityFetchFailed and leave the session authenticated.
func (s *Session) CurrentIdentity(ctx context.Context) (*credential.Identity, error) {
	if id := s.store.Identity(); id != nil {
		return id, nil
	}

	if !s.IsAuthenticated() {
		return nil, nil //nolint:nilnil // anonymous session has no identity
	}

	s.identityMu.RLock()
	src := s.identitySrc
	s.identityMu.RUnlock()

	if src == nil {
		return nil, fmt.Errorf("%w: no identity source bound", credential.ErrIdentityFetchFailed)
	}

	fetchCtx := context.WithoutCancel(ctx)

	ch := s.identityGroup.DoChan(identityKey, func() (any, error) {
		return s.fetchIdentity(fetchCtx, src)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}

		// fetchIdentity never succeeds with a nil identity.
		cp := *res.Val.(*credential.Identity)

		return &cp, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("session: waiting for identity: %w", ctx.Err())
	}
}

func (s *Session) fetchIdentity(ctx context.Context, src IdentitySource) (*credential.Identity, error) {
	before := s.store.Get()

	s.logger.Debug("fetching identity")

	id, err := src.Me(ctx)
	if err != nil {
		s.logger.Warn("identity fetch failed", slog.String("error", err.Error()))

		return nil, fmt.Errorf("%w: %w", credential.ErrIdentityFetchFailed, err)
	}

	if id == nil {
		return nil, fmt.Errorf("%w: empty identity", credential.ErrIdentityFetchFailed)
	}

	// The fetch may have refreshed the credential on the way; cache against
	// whatever is current as long as it still names the same subject.
	after := s.store.Get()
	if sameSubject(before, after) {
		s.store.SetIdentity(after, id)
	}

	return id, nil
}

func sameSubject(a, b credential.Credential) bool {
	if a == b {
		return true
	}

	ca, errA := credential.Decode(a)
	cb, errB := credential.Decode(b)

	return errA == nil && errB == nil && ca.Subject == cb.Subject
}

// Transport returns the request pipeline over base (http.DefaultTransport
// when nil).
func (s *Session) Transport(base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}

	return &Transport{
		base:        base,
		store:       s.store,
		coordinator: s.coordinator,
		expire:      s.expire,
		logger:      s.logger,
	}
}

// HTTPClient returns a shallow copy of base whose transport is this
// session's pipeline.
func (s *Session) HTTPClient(base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}

	out := *base
	out.Transport = s.Transport(base.Transport)

	return &out
}

// expire ends the session after the server rejected stale for good. It
// clears the store, fires OnExpired once per credential, and returns the
// error handed back to the original caller.
func (s *Session) expire(ctx context.Context, stale credential.Credential, cause error) error {
	_ = s.store.Clear(ctx)

	s.expiredMu.Lock()
	first := s.lastExpired != stale
	s.lastExpired = stale
	hook := s.onExpired
	s.expiredMu.Unlock()

	if first {
		s.logger.Warn("session expired",
			slog.String("fingerprint", stale.Fingerprint()),
			slog.String("cause", cause.Error()),
		)

		if hook != nil {
			hook(cause)
		}
	}

	return fmt.Errorf("%w: %w", credential.ErrSessionExpired, cause)
}

// Close releases the store's durable surface.
func (s *Session) Close() error {
	return s.store.Close()
}
