package credential

import "errors"

// Session error taxonomy. Use errors.Is to classify.
//
// ErrMalformed and ErrExpired are resolved locally (the session reads as
// anonymous or expired) and never surface as command failures on their own.
// ErrAuthorizationRejected is resolved by one refresh-and-retry. ErrRefreshFailed
// and ErrSessionExpired always mean the session has been logged out.
var (
	ErrMalformed             = errors.New("credential: malformed")
	ErrExpired               = errors.New("credential: expired")
	ErrAuthorizationRejected = errors.New("credential: authorization rejected")
	ErrRefreshFailed         = errors.New("credential: refresh failed")
	ErrIdentityFetchFailed   = errors.New("credential: identity fetch failed")
	ErrSessionExpired        = errors.New("credential: session expired")
)
