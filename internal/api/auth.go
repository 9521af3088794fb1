package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tonimelisma/filemgr/internal/credential"
)

// Auth endpoint paths.
const (
	loginPath    = "/auth/login"
	registerPath = "/auth/register"
	refreshPath  = "/auth/refresh"
	mePath       = "/auth/me"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string               `json:"token"`
	User  *credential.Identity `json:"user,omitempty"`
}

// AuthClient performs the credential-issuing exchanges. It must be built
// over a plain *http.Client, never a session pipeline: a rejected refresh
// has to surface as an error, not trigger another refresh.
//
// Exchanges are sent exactly once. A failed refresh ends the session, and a
// resent login or register could issue a second credential.
type AuthClient struct {
	client *Client
}

// NewAuthClient returns an AuthClient for the server at baseURL.
func NewAuthClient(baseURL string, httpClient *http.Client, logger *slog.Logger, userAgent string) *AuthClient {
	c := NewClient(baseURL, httpClient, logger, userAgent)
	c.retries = 0

	return &AuthClient{client: c}
}

// Login exchanges an email and password for a credential and the identity
// it belongs to.
func (a *AuthClient) Login(ctx context.Context, email, password string) (credential.Credential, *credential.Identity, error) {
	var out tokenResponse
	if err := a.client.doJSON(ctx, http.MethodPost, loginPath, loginRequest{Email: email, Password: password}, &out, nil); err != nil {
		return "", nil, fmt.Errorf("api: login: %w", err)
	}

	if out.Token == "" {
		return "", nil, fmt.Errorf("%w: login response has no token", ErrMalformedResponse)
	}

	a.client.logger.Debug("login exchange succeeded", slog.String("email", email))

	return credential.Credential(out.Token), out.User, nil
}

// Register creates an account and returns its first credential.
func (a *AuthClient) Register(
	ctx context.Context, name, email, password string,
) (credential.Credential, *credential.Identity, error) {
	req := registerRequest{Name: name, Email: email, Password: password}

	var out tokenResponse
	if err := a.client.doJSON(ctx, http.MethodPost, registerPath, req, &out, nil); err != nil {
		return "", nil, fmt.Errorf("api: register: %w", err)
	}

	if out.Token == "" {
		return "", nil, fmt.Errorf("%w: register response has no token", ErrMalformedResponse)
	}

	return credential.Credential(out.Token), out.User, nil
}

// Refresh trades current for a new credential. The new credential is
// returned as-is; callers validate it. Every failure, transient or not, wraps
// credential.ErrRefreshFailed.
func (a *AuthClient) Refresh(ctx context.Context, current credential.Credential) (credential.Credential, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+string(current))

	var out tokenResponse
	if err := a.client.doJSON(ctx, http.MethodPost, refreshPath, nil, &out, header); err != nil {
		return "", fmt.Errorf("api: refresh: %w: %w", credential.ErrRefreshFailed, err)
	}

	if out.Token == "" {
		return "", fmt.Errorf("api: refresh: %w: %w: response has no token",
			credential.ErrRefreshFailed, ErrMalformedResponse)
	}

	return credential.Credential(out.Token), nil
}

// Me fetches the identity of the user the client's credential belongs to.
func (c *Client) Me(ctx context.Context) (*credential.Identity, error) {
	var id credential.Identity
	if err := c.doJSON(ctx, http.MethodGet, mePath, nil, &id, nil); err != nil {
		return nil, fmt.Errorf("api: fetching identity: %w", err)
	}

	if id.ID == "" && id.Email == "" {
		return nil, fmt.Errorf("%w: identity has neither id nor email", ErrMalformedResponse)
	}

	return &id, nil
}
