package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/tonimelisma/filemgr/internal/credential"
	"github.com/tonimelisma/filemgr/internal/credstore"
)

// maxDrainBytes bounds how much of a discarded 401 body is read so the
// connection can be reused.
const maxDrainBytes = 64 << 10

// Transport is the authenticated request pipeline. It attaches the current
// credential to every request and, when the server answers 401, refreshes the
// credential once through the RefreshCoordinator and replays the request once.
// Any other response passes through untouched.
type Transport struct {
	base        http.RoundTripper
	store       *credstore.Store
	coordinator *RefreshCoordinator
	expire      func(ctx context.Context, stale credential.Credential, cause error) error
	logger      *slog.Logger
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	cred := t.store.Get()

	resp, err := t.send(req, cred)
	if err != nil {
		return nil, err
	}

	// Nothing to refresh for an unauthenticated request.
	if resp.StatusCode != http.StatusUnauthorized || cred.IsZero() {
		return resp, nil
	}

	t.logger.Debug("request rejected, refreshing credential",
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
		slog.String("fingerprint", cred.Fingerprint()),
	)

	replay := canReplay(req)
	if replay {
		drainAndClose(resp)
	}

	fresh, err := t.coordinator.Refresh(ctx, cred)
	if err != nil {
		if !replay {
			drainAndClose(resp)
		}

		if !errors.Is(err, credential.ErrRefreshFailed) {
			// The caller gave up waiting; the session is not over.
			return nil, err
		}

		return nil, t.expire(ctx, cred, err)
	}

	if !replay {
		t.logger.Warn("request body cannot be replayed, returning original 401",
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
		)

		return resp, nil
	}

	retry, err := rewind(req)
	if err != nil {
		return nil, err
	}

	resp, err = t.send(retry, fresh)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		drainAndClose(resp)

		return nil, t.expire(ctx, fresh,
			fmt.Errorf("%w: replayed %s %s rejected after refresh",
				credential.ErrAuthorizationRejected, req.Method, req.URL.Path))
	}

	return resp, nil
}

// send issues a copy of req carrying cred, if any.
func (t *Transport) send(req *http.Request, cred credential.Credential) (*http.Response, error) {
	out := req.Clone(req.Context())

	if !cred.IsZero() {
		bearer(cred).SetAuthHeader(out)
	}

	return t.base.RoundTrip(out)
}

// bearer wraps a credential as an oauth2 bearer token.
func bearer(c credential.Credential) *oauth2.Token {
	return &oauth2.Token{
		AccessToken: string(c),
		TokenType:   "Bearer",
		Expiry:      credential.Expiry(c),
	}
}

// canReplay reports whether req's body can be sent a second time.
func canReplay(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

// rewind returns a copy of req with a fresh body.
func rewind(req *http.Request) (*http.Request, error) {
	out := req.Clone(req.Context())

	if req.Body == nil || req.Body == http.NoBody {
		return out, nil
	}

	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("session: rewinding request body: %w", err)
	}

	out.Body = body

	return out, nil
}

func drainAndClose(resp *http.Response) {
	_, _ = io.CopyN(io.Discard, resp.Body, maxDrainBytes)
	resp.Body.Close()
}
