// Package totp implements RFC 6238 time-based one-time passwords: 30-second
// step, 6 digits, HMAC-SHA1 over the big-endian step counter. Secrets are
// RFC 4648 Base32 with tolerant handling of case, whitespace and padding.
package totp
