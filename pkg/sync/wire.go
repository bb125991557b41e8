package sync

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vibevault/vibevault/pkg/crypto"
	"github.com/vibevault/vibevault/pkg/types"
)

// Envelope is the per-entry record exchanged during sync: versioned
// metadata in the clear plus the entry payload encrypted under the session
// key. The byte layout is the contract between the two implementations of
// the protocol; all integers are little-endian and strings are u16
// length-prefixed UTF-8.
type Envelope struct {
	EntryUUID   uuid.UUID
	ProfileID   uint64
	SyncVersion uint64
	UpdatedAt   time.Time
	Label       string
	Tombstone   bool
	Nonce       []byte // 12 bytes; zero for tombstones
	Ciphertext  []byte // empty for tombstones
}

const envelopeTimeLayout = time.RFC3339

// EncodeBundle serializes a bundle: u32 entry count followed by each
// envelope.
func EncodeBundle(envelopes []Envelope) ([]byte, error) {
	var buf bytes.Buffer

	var count [4]byte
	binary.LittleEndian.PutUint32(count[:], uint32(len(envelopes)))
	buf.Write(count[:])

	for i := range envelopes {
		if err := encodeEnvelope(&buf, &envelopes[i]); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// DecodeBundle parses a received bundle, rejecting truncated input and
// trailing garbage.
func DecodeBundle(data []byte) ([]Envelope, error) {
	r := bytes.NewReader(data)

	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, framingf("bundle shorter than its header")
	}

	envelopes := make([]Envelope, 0, count)
	for i := uint32(0); i < count; i++ {
		env, err := decodeEnvelope(r)
		if err != nil {
			return nil, fmt.Errorf("envelope %d: %w", i, err)
		}
		envelopes = append(envelopes, *env)
	}

	if r.Len() != 0 {
		return nil, framingf("bundle carries %d trailing bytes", r.Len())
	}
	return envelopes, nil
}

func encodeEnvelope(buf *bytes.Buffer, env *Envelope) error {
	updatedAt := env.UpdatedAt.UTC().Format(envelopeTimeLayout)
	if len(updatedAt) > 0xFFFF || len(env.Label) > 0xFFFF {
		return fmt.Errorf("envelope field exceeds u16 length prefix")
	}

	nonce := env.Nonce
	if env.Tombstone {
		nonce = make([]byte, crypto.NonceSize)
	}
	if len(nonce) != crypto.NonceSize {
		return fmt.Errorf("envelope nonce must be %d bytes, got %d", crypto.NonceSize, len(nonce))
	}

	buf.Write(env.EntryUUID[:])

	var u64 [8]byte
	binary.LittleEndian.PutUint64(u64[:], env.ProfileID)
	buf.Write(u64[:])
	binary.LittleEndian.PutUint64(u64[:], env.SyncVersion)
	buf.Write(u64[:])

	writeString16(buf, updatedAt)
	writeString16(buf, env.Label)

	if env.Tombstone {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	buf.Write(nonce)

	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], uint32(len(env.Ciphertext)))
	buf.Write(u32[:])
	buf.Write(env.Ciphertext)
	return nil
}

func decodeEnvelope(r *bytes.Reader) (*Envelope, error) {
	env := &Envelope{}

	if _, err := readFull(r, env.EntryUUID[:]); err != nil {
		return nil, framingf("truncated entry_uuid")
	}

	var u64 [8]byte
	if _, err := readFull(r, u64[:]); err != nil {
		return nil, framingf("truncated profile_id")
	}
	env.ProfileID = binary.LittleEndian.Uint64(u64[:])

	if _, err := readFull(r, u64[:]); err != nil {
		return nil, framingf("truncated sync_version")
	}
	env.SyncVersion = binary.LittleEndian.Uint64(u64[:])

	updatedAt, err := readString16(r)
	if err != nil {
		return nil, framingf("truncated updated_at")
	}
	env.UpdatedAt, err = time.Parse(envelopeTimeLayout, updatedAt)
	if err != nil {
		return nil, framingf("malformed updated_at %q", updatedAt)
	}

	env.Label, err = readString16(r)
	if err != nil {
		return nil, framingf("truncated label")
	}

	tombstone, err := r.ReadByte()
	if err != nil {
		return nil, framingf("truncated tombstone flag")
	}
	switch tombstone {
	case 0:
		env.Tombstone = false
	case 1:
		env.Tombstone = true
	default:
		return nil, framingf("invalid tombstone flag %d", tombstone)
	}

	env.Nonce = make([]byte, crypto.NonceSize)
	if _, err := readFull(r, env.Nonce); err != nil {
		return nil, framingf("truncated nonce")
	}

	var u32 [4]byte
	if _, err := readFull(r, u32[:]); err != nil {
		return nil, framingf("truncated ciphertext length")
	}
	ctLen := binary.LittleEndian.Uint32(u32[:])
	if int(ctLen) > r.Len() {
		return nil, framingf("ciphertext length %d exceeds remaining bundle", ctLen)
	}

	env.Ciphertext = make([]byte, ctLen)
	if _, err := readFull(r, env.Ciphertext); err != nil {
		return nil, framingf("truncated ciphertext")
	}
	return env, nil
}

func writeString16(buf *bytes.Buffer, s string) {
	var l [2]byte
	binary.LittleEndian.PutUint16(l[:], uint16(len(s)))
	buf.Write(l[:])
	buf.WriteString(s)
}

func readString16(r *bytes.Reader) (string, error) {
	var l [2]byte
	if _, err := readFull(r, l[:]); err != nil {
		return "", err
	}
	n := binary.LittleEndian.Uint16(l[:])
	b := make([]byte, n)
	if _, err := readFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func readFull(r *bytes.Reader, b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	n, err := r.Read(b)
	if err != nil || n != len(b) {
		return n, fmt.Errorf("short read")
	}
	return n, nil
}

func framingf(format string, args ...interface{}) error {
	return types.NewSyncError(types.SyncFramingError, fmt.Errorf(format, args...))
}
