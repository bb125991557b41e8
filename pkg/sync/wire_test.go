package sync

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibevault/vibevault/pkg/types"
)

func sampleEnvelopes(t *testing.T) []Envelope {
	t.Helper()
	return []Envelope{
		{
			EntryUUID:   uuid.MustParse("11111111-2222-3333-4444-555555555555"),
			ProfileID:   1,
			SyncVersion: 3,
			UpdatedAt:   time.Date(2026, 6, 15, 10, 30, 0, 0, time.UTC),
			Label:       "github.com",
			Nonce:       []byte("abcdefghijkl"),
			Ciphertext:  []byte("ciphertext-with-tag"),
		},
		{
			EntryUUID:   uuid.MustParse("99999999-8888-7777-6666-555555555555"),
			ProfileID:   1,
			SyncVersion: 7,
			UpdatedAt:   time.Date(2026, 6, 16, 8, 0, 0, 0, time.UTC),
			Label:       "dead.example",
			Tombstone:   true,
		},
	}
}

func TestBundleRoundTrip(t *testing.T) {
	envelopes := sampleEnvelopes(t)

	data, err := EncodeBundle(envelopes)
	require.NoError(t, err)

	decoded, err := DecodeBundle(data)
	require.NoError(t, err)
	require.Len(t, decoded, 2)

	assert.Equal(t, envelopes[0].EntryUUID, decoded[0].EntryUUID)
	assert.Equal(t, uint64(3), decoded[0].SyncVersion)
	assert.Equal(t, "github.com", decoded[0].Label)
	assert.False(t, decoded[0].Tombstone)
	assert.Equal(t, envelopes[0].Nonce, decoded[0].Nonce)
	assert.Equal(t, envelopes[0].Ciphertext, decoded[0].Ciphertext)
	assert.True(t, decoded[0].UpdatedAt.Equal(envelopes[0].UpdatedAt))

	assert.True(t, decoded[1].Tombstone)
	assert.Empty(t, decoded[1].Ciphertext)
	assert.Equal(t, make([]byte, 12), decoded[1].Nonce, "tombstone nonce is zeroed on the wire")
}

func TestEmptyBundle(t *testing.T) {
	data, err := EncodeBundle(nil)
	require.NoError(t, err)
	assert.Len(t, data, 4)

	decoded, err := DecodeBundle(data)
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestBundleLayoutIsLittleEndian(t *testing.T) {
	envelopes := sampleEnvelopes(t)[:1]
	data, err := EncodeBundle(envelopes)
	require.NoError(t, err)

	// entry count u32 LE
	assert.Equal(t, []byte{0x01, 0x00, 0x00, 0x00}, data[0:4])
	// entry_uuid raw 16 bytes
	assert.Equal(t, envelopes[0].EntryUUID[:], data[4:20])
	// profile_id u64 LE
	assert.Equal(t, []byte{0x01, 0, 0, 0, 0, 0, 0, 0}, data[20:28])
	// sync_version u64 LE
	assert.Equal(t, []byte{0x03, 0, 0, 0, 0, 0, 0, 0}, data[28:36])
	// updated_at length prefix u16 LE ("2026-06-15T10:30:00Z" = 20 bytes)
	assert.Equal(t, []byte{0x14, 0x00}, data[36:38])
	assert.Equal(t, "2026-06-15T10:30:00Z", string(data[38:58]))
}

func TestDecodeBundleRejectsDamage(t *testing.T) {
	envelopes := sampleEnvelopes(t)
	data, err := EncodeBundle(envelopes)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{name: "empty input", mutate: func([]byte) []byte { return nil }},
		{name: "truncated header", mutate: func(d []byte) []byte { return d[:2] }},
		{name: "truncated envelope", mutate: func(d []byte) []byte { return d[:len(d)/2] }},
		{name: "trailing garbage", mutate: func(d []byte) []byte { return append(append([]byte(nil), d...), 0xFF) }},
		{name: "invalid tombstone flag", mutate: func(d []byte) []byte {
			out := append([]byte(nil), d...)
			// The tombstone flag of the first envelope sits after the two
			// length-prefixed strings.
			idx := 4 + 16 + 8 + 8 + 2 + 20 + 2 + len("github.com")
			out[idx] = 7
			return out
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeBundle(tt.mutate(data))
			require.Error(t, err)
			kind, ok := types.SyncErrKind(err)
			require.True(t, ok, "error %v must carry a sync kind", err)
			assert.Equal(t, types.SyncFramingError, kind)
		})
	}
}

func TestDecodeBundleRejectsOversizedCiphertextLength(t *testing.T) {
	data, err := EncodeBundle(sampleEnvelopes(t)[:1])
	require.NoError(t, err)

	// Inflate the declared ciphertext length past the buffer end.
	idx := len(data) - len("ciphertext-with-tag") - 4
	data[idx] = 0xFF
	data[idx+1] = 0xFF

	_, err = DecodeBundle(data)
	require.Error(t, err)
	kind, _ := types.SyncErrKind(err)
	assert.Equal(t, types.SyncFramingError, kind)
}
