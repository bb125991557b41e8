package crypto

import (
	"bytes"
	"errors"
	"testing"

	"github.com/vibevault/vibevault/pkg/types"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, KeySize)

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{name: "empty", plaintext: []byte{}},
		{name: "short", plaintext: []byte("hunter2")},
		{name: "json payload", plaintext: []byte(`{"username":"a","password":"p","totpSecret":null,"notes":""}`)},
		{name: "binary", plaintext: bytes.Repeat([]byte{0x00, 0xff}, 512)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct, nonce, err := Encrypt(key, tt.plaintext)
			if err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}
			if len(nonce) != NonceSize {
				t.Fatalf("nonce length = %d, want %d", len(nonce), NonceSize)
			}
			if len(ct) != len(tt.plaintext)+TagSize {
				t.Fatalf("ciphertext length = %d, want %d", len(ct), len(tt.plaintext)+TagSize)
			}

			pt, err := Decrypt(key, nonce, ct)
			if err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if !bytes.Equal(pt, tt.plaintext) {
				t.Errorf("round trip mismatch: got %x, want %x", pt, tt.plaintext)
			}
		})
	}
}

func TestDecryptFailsClosed(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, KeySize)
	ct, nonce, err := Encrypt(key, []byte("attack at dawn"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	flip := func(b []byte, i int) []byte {
		out := append([]byte(nil), b...)
		out[i] ^= 0x01
		return out
	}

	tests := []struct {
		name  string
		nonce []byte
		ct    []byte
	}{
		{name: "ciphertext bit flip", nonce: nonce, ct: flip(ct, 0)},
		{name: "tag bit flip", nonce: nonce, ct: flip(ct, len(ct)-1)},
		{name: "nonce bit flip", nonce: flip(nonce, 3), ct: ct},
		{name: "truncated ciphertext", nonce: nonce, ct: ct[:TagSize-1]},
		{name: "wrong nonce length", nonce: nonce[:8], ct: ct},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decrypt(key, tt.nonce, tt.ct); !errors.Is(err, types.ErrDecrypt) {
				t.Errorf("Decrypt() error = %v, want ErrDecrypt", err)
			}
		})
	}

	wrongKey := bytes.Repeat([]byte{0x43}, KeySize)
	if _, err := Decrypt(wrongKey, nonce, ct); !errors.Is(err, types.ErrDecrypt) {
		t.Errorf("Decrypt() with wrong key error = %v, want ErrDecrypt", err)
	}
}

func TestEncryptNonceUnique(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, KeySize)

	seen := make(map[string]bool)
	for i := 0; i < 64; i++ {
		_, nonce, err := Encrypt(key, []byte("x"))
		if err != nil {
			t.Fatalf("Encrypt() error = %v", err)
		}
		if seen[string(nonce)] {
			t.Fatal("nonce reused across encryptions")
		}
		seen[string(nonce)] = true
	}
}

func TestEncryptRejectsBadKey(t *testing.T) {
	if _, _, err := Encrypt(make([]byte, 16), []byte("x")); err == nil {
		t.Error("Encrypt() accepted a 16-byte key")
	}
}
