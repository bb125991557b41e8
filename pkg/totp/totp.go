package totp

import (
	"encoding/base32"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/vibevault/vibevault/pkg/types"
)

const (
	// Step is the TOTP time step in seconds.
	Step = 30

	// Digits is the code length.
	Digits = 6
)

// Generate produces the 6-digit HMAC-SHA1 code for the given Base32 secret
// at time t, along with the seconds left in the current step.
func Generate(secret string, at time.Time) (types.TOTPToken, error) {
	normalized, err := NormalizeSecret(secret)
	if err != nil {
		return types.TOTPToken{}, err
	}

	code, err := totp.GenerateCodeCustom(normalized, at, totp.ValidateOpts{
		Period:    Step,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return types.TOTPToken{}, &types.ValidationError{Field: "secret", Reason: err.Error()}
	}

	return types.TOTPToken{
		Code:             code,
		SecondsRemaining: SecondsRemaining(at),
	}, nil
}

// SecondsRemaining returns how long the code generated at time t stays
// valid within its 30-second step.
func SecondsRemaining(at time.Time) int {
	return Step - int(at.Unix()%Step)
}

// NormalizeSecret folds a user-supplied Base32 secret into canonical form:
// upper-case, whitespace stripped, '=' padding restored to a multiple of 8.
// Characters outside RFC 4648 [A-Z2-7] are rejected.
func NormalizeSecret(secret string) (string, error) {
	var b strings.Builder
	for _, r := range strings.ToUpper(secret) {
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			continue
		case r == '=':
			continue
		case (r >= 'A' && r <= 'Z') || (r >= '2' && r <= '7'):
			b.WriteRune(r)
		default:
			return "", &types.ValidationError{Field: "secret", Reason: "invalid Base32 character"}
		}
	}

	s := b.String()
	if s == "" {
		return "", &types.ValidationError{Field: "secret", Reason: "empty secret"}
	}
	if pad := len(s) % 8; pad != 0 {
		s += strings.Repeat("=", 8-pad)
	}

	// Reject stray lengths the padding rule cannot produce.
	if _, err := base32.StdEncoding.DecodeString(s); err != nil {
		return "", &types.ValidationError{Field: "secret", Reason: "malformed Base32 secret"}
	}
	return s, nil
}
