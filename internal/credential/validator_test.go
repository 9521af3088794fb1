package credential_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/filemgr/internal/credential"
	"github.com/tonimelisma/filemgr/internal/credential/credtest"
)

const hs256Header = `{"alg":"HS256","typ":"JWT"}`

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestIsValid_FutureAndPast(t *testing.T) {
	now := time.Now()

	for _, offset := range []time.Duration{time.Second * 5, time.Minute, time.Hour, 24 * time.Hour} {
		assert.True(t, credential.IsValid(credtest.Mint(t, "u", now.Add(offset))), "exp now+%s", offset)
		assert.False(t, credential.IsValid(credtest.Mint(t, "u", now.Add(-offset))), "exp now-%s", offset)
	}
}

func TestValidator_ExpEqualNowIsInvalid(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	c := credtest.Mint(t, "u", now)

	v := credential.Validator{Now: fixedClock(now)}
	assert.False(t, v.IsValid(c))

	err := v.Check(c)
	require.Error(t, err)
	assert.ErrorIs(t, err, credential.ErrExpired)

	v.Now = fixedClock(now.Add(-time.Second))
	assert.True(t, v.IsValid(c))
}

func TestValidator_Leeway(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	c := credtest.Mint(t, "u", now.Add(-10*time.Second))

	strict := credential.Validator{Now: fixedClock(now)}
	assert.False(t, strict.IsValid(c))

	lenient := credential.Validator{Now: fixedClock(now), Leeway: 30 * time.Second}
	assert.True(t, lenient.IsValid(c))
}

func TestIsValid_Malformed(t *testing.T) {
	tests := []struct {
		name string
		cred credential.Credential
	}{
		{"empty", ""},
		{"one segment", "abc"},
		{"two segments", "abc.def"},
		{"four segments", "a.b.c.d"},
		{"payload not base64", credential.Credential("eyJhbGciOiJIUzI1NiJ9.%%%.sig")},
		{"payload not json", credtest.Raw(hs256Header, "not json")},
		{"payload json array", credtest.Raw(hs256Header, `[1,2,3]`)},
		{"missing exp", credtest.Raw(hs256Header, `{"sub":"u"}`)},
		{"non-numeric exp", credtest.Raw(hs256Header, `{"exp":"tomorrow"}`)},
		{"quoted numeric exp", credtest.Raw(hs256Header, `{"exp":"4102444800"}`)},
		{"boolean exp", credtest.Raw(hs256Header, `{"exp":true}`)},
		{"null exp", credtest.Raw(hs256Header, `{"exp":null}`)},
		{"empty payload", credential.Credential("eyJhbGciOiJIUzI1NiJ9..sig")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, credential.IsValid(tt.cred))

			_, err := credential.Decode(tt.cred)
			assert.ErrorIs(t, err, credential.ErrMalformed)
		})
	}
}

// Only the payload decides validity; a header the client cannot read is the
// server's concern.
func TestIsValid_IgnoresHeader(t *testing.T) {
	const payload = `{"exp":4102444800}`

	tests := []struct {
		name string
		cred credential.Credential
	}{
		{"no alg", credtest.Raw(`{"typ":"JWT"}`, payload)},
		{"unknown alg", credtest.Raw(`{"alg":"X"}`, payload)},
		{"header not json", credtest.Raw("not json", payload)},
		{"empty header", credential.Credential(".eyJleHAiOjQxMDI0NDQ4MDB9.sig")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, credential.IsValid(tt.cred))

			claims, err := credential.Decode(tt.cred)
			require.NoError(t, err)
			assert.Equal(t, int64(4102444800), claims.ExpiresAt.Unix())
		})
	}

	expired := credtest.Raw(`{"typ":"JWT"}`, `{"exp":946684800}`)
	assert.False(t, credential.IsValid(expired))
}

func TestDecode_FractionalExp(t *testing.T) {
	claims, err := credential.Decode(credtest.Raw(hs256Header, `{"exp":4102444800.5}`))
	require.NoError(t, err)
	assert.Equal(t, int64(4102444800), claims.ExpiresAt.Unix())
	assert.Equal(t, 500*time.Millisecond, time.Duration(claims.ExpiresAt.Nanosecond()))
}

func TestDecode_ReadsExpWithoutVerifyingSignature(t *testing.T) {
	// exp 4102444800 = 2100-01-01T00:00:00Z; signature segment is garbage.
	c := credtest.Raw(hs256Header, `{"sub":"alice","exp":4102444800}`)

	claims, err := credential.Decode(c)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, int64(4102444800), claims.ExpiresAt.Unix())
	assert.True(t, credential.IsValid(c))
}

func TestExpiry(t *testing.T) {
	exp := time.Unix(1_900_000_000, 0)
	assert.Equal(t, exp.Unix(), credential.Expiry(credtest.Mint(t, "u", exp)).Unix())
	assert.True(t, credential.Expiry("garbage").IsZero())
}

func TestFingerprint(t *testing.T) {
	c := credtest.Valid(t, time.Hour)

	fp := c.Fingerprint()
	assert.Len(t, fp, 12)
	assert.Equal(t, fp, c.Fingerprint())
	assert.Empty(t, credential.Credential("").Fingerprint())
}

func TestIdentity_DisplayName(t *testing.T) {
	id := &credential.Identity{ID: "1", Email: "a@example.com"}
	assert.Equal(t, "a@example.com", id.DisplayName())

	id.Name = "Alice"
	assert.Equal(t, "Alice", id.DisplayName())
}
