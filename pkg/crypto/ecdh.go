package crypto

import (
	"crypto/ecdh"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
)

// CompressedPointLen is the length of a compressed P-256 public key.
const CompressedPointLen = 33

// GenerateKeypair generates a fresh ephemeral P-256 keypair for one pairing
// attempt. The private key must be discarded after the shared secret is
// computed.
func GenerateKeypair() (*ecdh.PrivateKey, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate keypair: %w", err)
	}
	return priv, nil
}

// MarshalPublicKey encodes a P-256 public key in compressed form (33 bytes)
// for exchange over the Pairing characteristic.
func MarshalPublicKey(pub *ecdh.PublicKey) ([]byte, error) {
	x, y := elliptic.Unmarshal(elliptic.P256(), pub.Bytes())
	if x == nil {
		return nil, fmt.Errorf("invalid public key point")
	}
	return elliptic.MarshalCompressed(elliptic.P256(), x, y), nil
}

// UnmarshalPublicKey decodes a compressed P-256 public key received from a
// peer. Rejects points not on the curve.
func UnmarshalPublicKey(data []byte) (*ecdh.PublicKey, error) {
	if len(data) != CompressedPointLen {
		return nil, fmt.Errorf("public key must be %d bytes, got %d", CompressedPointLen, len(data))
	}

	x, y := elliptic.UnmarshalCompressed(elliptic.P256(), data)
	if x == nil {
		return nil, fmt.Errorf("invalid compressed point")
	}

	pub, err := ecdh.P256().NewPublicKey(elliptic.Marshal(elliptic.P256(), x, y))
	if err != nil {
		return nil, fmt.Errorf("invalid public key: %w", err)
	}
	return pub, nil
}

// SharedSecret performs ECDH between our private key and the peer's public
// key, returning the raw shared secret for HKDF expansion.
func SharedSecret(priv *ecdh.PrivateKey, peerPub *ecdh.PublicKey) ([]byte, error) {
	secret, err := priv.ECDH(peerPub)
	if err != nil {
		return nil, fmt.Errorf("ECDH agreement failed: %w", err)
	}
	return secret, nil
}
