package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// hkdfInfo is the context string for sync session key derivation. It is
// part of the wire contract and must match on both ends.
const hkdfInfo = "vibevault-sync-v1"

// DeriveSessionKey expands an ECDH shared secret into the 32-byte symmetric
// key protecting one sync session. Empty salt, SHA-256, fixed info string.
func DeriveSessionKey(sharedSecret []byte) ([]byte, error) {
	reader := hkdf.New(sha256.New, sharedSecret, nil, []byte(hkdfInfo))

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("HKDF expansion failed: %w", err)
	}
	return key, nil
}

// PairingMAC authenticates a sender's public key bytes with the 6-digit
// pairing code as the HMAC-SHA256 key, binding the key exchange to the
// short authentication string the user transcribed.
func PairingMAC(code string, publicKey []byte) []byte {
	mac := hmac.New(sha256.New, []byte(code))
	mac.Write(publicKey)
	return mac.Sum(nil)
}

// VerifyPairingMAC checks a received MAC in constant time.
func VerifyPairingMAC(code string, publicKey, receivedMAC []byte) bool {
	expected := PairingMAC(code, publicKey)
	return hmac.Equal(expected, receivedMAC)
}
