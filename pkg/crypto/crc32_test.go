package crypto

import "testing"

func TestChecksumVectors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint32
	}{
		{name: "empty", data: nil, want: 0x00000000},
		{name: "abc", data: []byte("abc"), want: 0x352441c2},
		{name: "check value", data: []byte("123456789"), want: 0xcbf43926},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Checksum(tt.data); got != tt.want {
				t.Errorf("Checksum() = %08x, want %08x", got, tt.want)
			}
		})
	}
}

func TestChecksumWireEncoding(t *testing.T) {
	buf := make([]byte, 4)
	PutChecksum(buf, 0xcbf43926)

	// Little-endian on the wire.
	want := []byte{0x26, 0x39, 0xf4, 0xcb}
	for i := range want {
		if buf[i] != want[i] {
			t.Fatalf("wire byte %d = %02x, want %02x", i, buf[i], want[i])
		}
	}

	if got := ReadChecksum(buf); got != 0xcbf43926 {
		t.Errorf("ReadChecksum() = %08x, want cbf43926", got)
	}
}

func TestRandomHelpers(t *testing.T) {
	code, err := NewPairingCode()
	if err != nil {
		t.Fatalf("NewPairingCode() error = %v", err)
	}
	if len(code) != 6 {
		t.Errorf("pairing code length = %d, want 6", len(code))
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			t.Errorf("pairing code contains non-digit %q", c)
		}
	}

	tok, err := NewSessionToken()
	if err != nil {
		t.Fatalf("NewSessionToken() error = %v", err)
	}
	if len(tok) != 64 {
		t.Errorf("session token length = %d, want 64 hex chars", len(tok))
	}

	buf := []byte{1, 2, 3, 4}
	Zeroize(buf)
	for _, b := range buf {
		if b != 0 {
			t.Fatal("Zeroize left non-zero bytes")
		}
	}
}
