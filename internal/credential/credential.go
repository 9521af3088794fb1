// Package credential models the bearer credential held by a filemgr session
// and the identity cached alongside it. A credential is an opaque signed token
// whose only trusted claim on the client is its expiry; the signature is never
// verified here, the server does that on every call.
package credential

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// fingerprintLen is the number of hex characters kept by Fingerprint.
const fingerprintLen = 12

// Credential is a raw bearer token: three dot-separated segments, the middle
// one a JSON object carrying a numeric "exp". The empty Credential means
// "no credential".
type Credential string

// IsZero reports whether c is the empty credential.
func (c Credential) IsZero() bool {
	return c == ""
}

// Fingerprint returns a short, stable digest of the credential suitable for
// logs. Raw credential values are never logged.
func (c Credential) Fingerprint() string {
	if c.IsZero() {
		return ""
	}

	sum := sha256.Sum256([]byte(c))

	return hex.EncodeToString(sum[:])[:fingerprintLen]
}

// Claims holds the subset of decoded claims the client reads.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
}

// segmentDecoder handles base64url segments the way issuers encode them,
// padded or not.
var segmentDecoder = jwt.NewParser()

// Decode reads the claims of c without verifying its signature. Only the
// payload is read: the header and signature are the server's business. A
// wrong segment count, a payload that is not a base64url JSON object, or an
// exp that is missing or not a JSON number yields ErrMalformed.
func Decode(c Credential) (Claims, error) {
	if c.IsZero() {
		return Claims{}, fmt.Errorf("%w: empty credential", ErrMalformed)
	}

	parts := strings.Split(string(c), ".")
	if len(parts) != 3 {
		return Claims{}, fmt.Errorf("%w: %d segments, want 3", ErrMalformed, len(parts))
	}

	raw, err := segmentDecoder.DecodeSegment(parts[1])
	if err != nil {
		return Claims{}, fmt.Errorf("%w: payload: %w", ErrMalformed, err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Claims{}, fmt.Errorf("%w: payload: %w", ErrMalformed, err)
	}

	exp, ok := payload["exp"].(float64)
	if !ok {
		return Claims{}, fmt.Errorf("%w: exp claim missing or not a number", ErrMalformed)
	}

	sub, _ := payload["sub"].(string)

	return Claims{
		Subject:   sub,
		ExpiresAt: numericDate(exp),
	}, nil
}

// numericDate converts seconds since the epoch, possibly fractional.
func numericDate(sec float64) time.Time {
	whole, frac := math.Modf(sec)

	return time.Unix(int64(whole), int64(frac*float64(time.Second)))
}

// Expiry returns the decoded expiry of c, or the zero time if c is malformed.
func Expiry(c Credential) time.Time {
	claims, err := Decode(c)
	if err != nil {
		return time.Time{}
	}

	return claims.ExpiresAt
}
