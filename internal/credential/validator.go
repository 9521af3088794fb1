package credential

import (
	"fmt"
	"time"
)

// Validator decides whether a credential is well-formed and unexpired.
// The zero Validator uses time.Now and no clock-skew allowance.
type Validator struct {
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// Leeway extends a credential's life past its exp to absorb clock skew
	// between client and server. Zero means exp is honoured exactly.
	Leeway time.Duration
}

// IsValid reports whether c decodes and its exp lies strictly in the future.
// Fails closed: anything that cannot be decoded is invalid.
func (v Validator) IsValid(c Credential) bool {
	return v.Check(c) == nil
}

// Check is IsValid with the reason: nil, ErrMalformed, or ErrExpired.
func (v Validator) Check(c Credential) error {
	claims, err := Decode(c)
	if err != nil {
		return err
	}

	now := v.now()
	if !claims.ExpiresAt.Add(v.Leeway).After(now) {
		return fmt.Errorf("%w: exp %s is not after %s",
			ErrExpired, claims.ExpiresAt.UTC().Format(time.RFC3339), now.UTC().Format(time.RFC3339))
	}

	return nil
}

func (v Validator) now() time.Time {
	if v.Now == nil {
		return time.Now()
	}

	return v.Now()
}

// IsValid validates c against the current time with no leeway.
func IsValid(c Credential) bool {
	return Validator{}.IsValid(c)
}
