package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/tonimelisma/filemgr/internal/credential"
	"github.com/tonimelisma/filemgr/internal/credstore"
)

// refreshKey is the single singleflight key: there is at most one refresh
// exchange per session at any time.
const refreshKey = "refresh"

// Refresher performs the refresh exchange: it trades the current credential
// for a new one. Implemented by api.AuthClient.
type Refresher interface {
	Refresh(ctx context.Context, current credential.Credential) (credential.Credential, error)
}

// RefreshCoordinator runs refresh exchanges single-flight. Callers that ask
// for a refresh while one is pending join it and observe its outcome; the
// pending marker is dropped before any joiner is released.
type RefreshCoordinator struct {
	store     *credstore.Store
	refresher Refresher
	validator credential.Validator
	logger    *slog.Logger

	group    singleflight.Group
	inFlight atomic.Bool
}

// NewRefreshCoordinator returns a coordinator that refreshes the credential
// held by store.
func NewRefreshCoordinator(
	store *credstore.Store,
	refresher Refresher,
	validator credential.Validator,
	logger *slog.Logger,
) *RefreshCoordinator {
	if logger == nil {
		logger = slog.Default()
	}

	return &RefreshCoordinator{
		store:     store,
		refresher: refresher,
		validator: validator,
		logger:    logger,
	}
}

// InFlight reports whether a refresh exchange is pending.
func (rc *RefreshCoordinator) InFlight() bool {
	return rc.inFlight.Load()
}

// Refresh returns a credential to replace stale, the credential the caller
// saw rejected. If another caller has already replaced stale with a valid
// credential, that one is returned without a network call. Otherwise the
// caller starts or joins the single pending exchange.
//
// On success the store holds the new credential before any caller returns.
// On failure the store has been cleared and the error wraps
// credential.ErrRefreshFailed. A caller whose ctx ends stops waiting; the
// exchange itself carries on for the remaining joiners.
func (rc *RefreshCoordinator) Refresh(ctx context.Context, stale credential.Credential) (credential.Credential, error) {
	exchangeCtx := context.WithoutCancel(ctx)

	ch := rc.group.DoChan(refreshKey, func() (any, error) {
		return rc.exchange(exchangeCtx, stale)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}

		fresh, _ := res.Val.(credential.Credential)
		if res.Shared {
			rc.logger.Debug("joined pending credential refresh",
				slog.String("fingerprint", fresh.Fingerprint()),
			)
		}

		return fresh, nil
	case <-ctx.Done():
		return "", fmt.Errorf("session: waiting for credential refresh: %w", ctx.Err())
	}
}

// exchange is the body of the single in-flight refresh.
func (rc *RefreshCoordinator) exchange(ctx context.Context, stale credential.Credential) (credential.Credential, error) {
	rc.inFlight.Store(true)
	defer rc.inFlight.Store(false)

	current := rc.store.Get()
	if current != stale && rc.validator.IsValid(current) {
		rc.logger.Debug("credential already refreshed",
			slog.String("fingerprint", current.Fingerprint()),
		)

		return current, nil
	}

	if current.IsZero() {
		return "", fmt.Errorf("%w: no credential to refresh", credential.ErrRefreshFailed)
	}

	if rc.refresher == nil {
		return "", fmt.Errorf("%w: no refresh exchange configured", credential.ErrRefreshFailed)
	}

	rc.logger.Info("refreshing credential",
		slog.String("fingerprint", current.Fingerprint()),
	)

	identity := rc.store.Identity()

	fresh, err := rc.refresher.Refresh(ctx, current)
	if err == nil {
		if checkErr := rc.validator.Check(fresh); checkErr != nil {
			err = fmt.Errorf("refresh returned unusable credential: %w", checkErr)
		}
	}

	if err != nil {
		rc.logger.Warn("credential refresh failed, clearing session",
			slog.String("error", err.Error()),
		)

		// Surface errors are logged by the store; the session is over either way.
		_ = rc.store.Clear(ctx)

		if !errors.Is(err, credential.ErrRefreshFailed) {
			err = fmt.Errorf("%w: %w", credential.ErrRefreshFailed, err)
		}

		return "", err
	}

	_ = rc.store.Set(ctx, fresh)

	// Same session, same user: carry the cached identity over.
	if identity != nil {
		rc.store.SetIdentity(fresh, identity)
	}

	rc.logger.Info("credential refreshed",
		slog.String("fingerprint", fresh.Fingerprint()),
		slog.Time("expiry", credential.Expiry(fresh)),
	)

	return fresh, nil
}
