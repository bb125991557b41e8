package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
)

// RandomBytes returns n bytes from the OS CSPRNG.
func RandomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return buf, nil
}

// NewSessionToken returns an opaque 256-bit token in hex encoding.
func NewSessionToken() (string, error) {
	buf, err := RandomBytes(32)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// NewPairingCode returns a uniformly random 6-digit short authentication
// string, zero-padded.
func NewPairingCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("failed to generate pairing code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// Zeroize overwrites a key buffer with zeros. Callers invoke it on every
// transient copy of key material before release.
func Zeroize(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}
