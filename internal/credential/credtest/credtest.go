// Package credtest mints credentials for tests. Tokens are HMAC-signed with a
// fixed key; the client never verifies signatures, so any key works.
package credtest

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tonimelisma/filemgr/internal/credential"
)

var signingKey = []byte("credtest-signing-key")

// Mint returns a credential for subject expiring at exp.
func Mint(t testing.TB, subject string, exp time.Time) credential.Credential {
	t.Helper()

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": exp.Unix(),
		"iat": time.Now().Unix(),
	})

	signed, err := tok.SignedString(signingKey)
	if err != nil {
		t.Fatalf("credtest: signing token: %v", err)
	}

	return credential.Credential(signed)
}

// Valid returns a credential expiring in ttl.
func Valid(t testing.TB, ttl time.Duration) credential.Credential {
	t.Helper()

	return Mint(t, "user-1", time.Now().Add(ttl))
}

// Expired returns a credential that expired an hour ago.
func Expired(t testing.TB) credential.Credential {
	t.Helper()

	return Mint(t, "user-1", time.Now().Add(-time.Hour))
}

// Raw assembles a three-segment token from a literal JSON header and payload.
// Used to build credentials the JWT library would refuse to sign, such as
// ones with an odd header or a mistyped exp.
func Raw(header, payload string) credential.Credential {
	enc := base64.RawURLEncoding

	return credential.Credential(
		enc.EncodeToString([]byte(header)) + "." +
			enc.EncodeToString([]byte(payload)) + "." +
			enc.EncodeToString([]byte("sig")),
	)
}
