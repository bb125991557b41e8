package totp

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibevault/vibevault/pkg/types"
)

// rfcSecret is the RFC 6238 Appendix B reference secret
// ("12345678901234567890" in Base32).
const rfcSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

const demoSecret = "JBSWY3DPEHPK3PXP"

func TestGenerateRFCVectors(t *testing.T) {
	tests := []struct {
		unix int64
		want string
	}{
		{unix: 59, want: "287082"},
		{unix: 1111111109, want: "081804"},
		{unix: 1111111111, want: "050471"},
		{unix: 1234567890, want: "005924"},
		{unix: 2000000000, want: "279037"},
	}

	for _, tt := range tests {
		tok, err := Generate(rfcSecret, time.Unix(tt.unix, 0).UTC())
		require.NoError(t, err)
		assert.Equal(t, tt.want, tok.Code, "t=%d", tt.unix)
	}
}

func TestGenerateDemoSecret(t *testing.T) {
	tests := []struct {
		unix int64
		want string
	}{
		{unix: 59, want: "996554"},
		{unix: 1234567890, want: "742275"},
		{unix: 2000000000, want: "890699"},
	}

	for _, tt := range tests {
		tok, err := Generate(demoSecret, time.Unix(tt.unix, 0).UTC())
		require.NoError(t, err)
		assert.Equal(t, tt.want, tok.Code, "t=%d", tt.unix)
	}
}

func TestBase32Tolerance(t *testing.T) {
	// Lower case, extra padding and interior whitespace all decode to the
	// same key and therefore the same code.
	variants := []string{
		demoSecret,
		"jbswy3dpehpk3pxp",
		"JBSWY3DPEHPK3PXP===",
		"JBSW Y3DP EHPK 3PXP",
	}

	at := time.Unix(59, 0).UTC()
	for _, v := range variants {
		tok, err := Generate(v, at)
		require.NoError(t, err, "variant %q", v)
		assert.Equal(t, "996554", tok.Code, "variant %q", v)
	}
}

func TestInvalidSecrets(t *testing.T) {
	invalid := []string{
		"JBSWY3DPEHPK3PX1", // '1' outside the Base32 alphabet
		"JBSWY3DP!",
		"",
		"   ",
		"œ∑´®",
	}

	for _, s := range invalid {
		_, err := Generate(s, time.Unix(59, 0).UTC())
		var verr *types.ValidationError
		assert.True(t, errors.As(err, &verr), "secret %q: error = %v, want ValidationError", s, err)
	}
}

func TestSecondsRemaining(t *testing.T) {
	assert.Equal(t, 1, SecondsRemaining(time.Unix(59, 0)))
	assert.Equal(t, 30, SecondsRemaining(time.Unix(60, 0)))
	assert.Equal(t, 15, SecondsRemaining(time.Unix(75, 0)))

	// seconds_remaining + step_elapsed = 30 for any instant.
	for _, unix := range []int64{0, 29, 30, 31, 1234567890} {
		elapsed := int(unix % Step)
		assert.Equal(t, Step, SecondsRemaining(time.Unix(unix, 0))+elapsed)
	}
}
