package ble

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibevault/vibevault/pkg/types"
)

func TestChunkRoundTrip(t *testing.T) {
	sizes := []int{0, 1, MaxChunkData - 1, MaxChunkData, MaxChunkData + 1, 3*MaxChunkData + 17, 1 << 20}

	for _, size := range sizes {
		data := make([]byte, size)
		_, err := rand.Read(data)
		require.NoError(t, err)

		chunks, err := SplitChunks(data)
		require.NoError(t, err)
		require.NotEmpty(t, chunks)

		r := NewReassembler()
		for i, chunk := range chunks {
			complete, err := r.Add(chunk)
			require.NoError(t, err, "size %d chunk %d", size, i)
			assert.Equal(t, i == len(chunks)-1, complete)
		}
		assert.True(t, bytes.Equal(r.Bytes(), data), "size %d round trip", size)
	}
}

func TestChunkLayout(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB}, MaxChunkData+10)
	chunks, err := SplitChunks(data)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	first := chunks[0]
	assert.Equal(t, []byte{0x00, 0x00}, first[0:2], "index 0, little-endian")
	assert.Equal(t, []byte{0x02, 0x00}, first[2:4], "total 2, little-endian")
	assert.Len(t, first, 8+MaxChunkData)

	second := chunks[1]
	assert.Equal(t, []byte{0x01, 0x00}, second[0:2])
	assert.Len(t, second, 8+10)
}

func TestReassemblerDuplicatesAreIdempotent(t *testing.T) {
	data := bytes.Repeat([]byte{0x01}, 2*MaxChunkData)
	chunks, err := SplitChunks(data)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	r := NewReassembler()
	complete, err := r.Add(chunks[0])
	require.NoError(t, err)
	assert.False(t, complete)

	// The same chunk again changes nothing.
	complete, err = r.Add(chunks[0])
	require.NoError(t, err)
	assert.False(t, complete)

	complete, err = r.Add(chunks[1])
	require.NoError(t, err)
	assert.True(t, complete)
	assert.True(t, bytes.Equal(r.Bytes(), data))
}

func TestReassemblerDetectsCorruption(t *testing.T) {
	data := bytes.Repeat([]byte{0x7F}, MaxChunkData)
	chunks, err := SplitChunks(data)
	require.NoError(t, err)

	corrupt := append([]byte(nil), chunks[0]...)
	corrupt[8] ^= 0x01 // flip one payload byte

	r := NewReassembler()
	_, err = r.Add(corrupt)
	require.Error(t, err)
	kind, ok := types.SyncErrKind(err)
	require.True(t, ok)
	assert.Equal(t, types.SyncFramingError, kind)
}

func TestReassemblerRejectsBadFrames(t *testing.T) {
	chunks, err := SplitChunks([]byte("hello"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{name: "short frame", mutate: func(c []byte) []byte { return c[:4] }},
		{name: "zero total", mutate: func(c []byte) []byte {
			out := append([]byte(nil), c...)
			out[2], out[3] = 0, 0
			return out
		}},
		{name: "index out of range", mutate: func(c []byte) []byte {
			out := append([]byte(nil), c...)
			out[0], out[1] = 9, 0
			return out
		}},
		{name: "crc mismatch", mutate: func(c []byte) []byte {
			out := append([]byte(nil), c...)
			out[4] ^= 0xFF
			return out
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReassembler()
			_, err := r.Add(tt.mutate(chunks[0]))
			require.Error(t, err)
			kind, ok := types.SyncErrKind(err)
			require.True(t, ok)
			assert.Equal(t, types.SyncFramingError, kind)
		})
	}
}

func TestReassemblerTotalMismatchAborts(t *testing.T) {
	data := bytes.Repeat([]byte{0x02}, 2*MaxChunkData)
	chunks, err := SplitChunks(data)
	require.NoError(t, err)

	r := NewReassembler()
	_, err = r.Add(chunks[0])
	require.NoError(t, err)

	// A later chunk claiming a different total is a framing error.
	other, err := SplitChunks(bytes.Repeat([]byte{0x03}, 3*MaxChunkData))
	require.NoError(t, err)
	_, err = r.Add(other[1])
	require.Error(t, err)
	kind, _ := types.SyncErrKind(err)
	assert.Equal(t, types.SyncFramingError, kind)
}

func TestLoopbackTransport(t *testing.T) {
	_, peripheral, central := NewLoopback(ModePush)

	// Both ends observe the connection.
	assert.Equal(t, EventConnected, (<-peripheral.Events()).Kind)
	assert.Equal(t, EventConnected, (<-central.Events()).Kind)

	mode, err := central.Mode(t.Context())
	require.NoError(t, err)
	assert.Equal(t, ModePush, mode)

	// Peripheral publishes its pairing value; central reads it.
	require.NoError(t, peripheral.WritePairing(t.Context(), []byte{1, 2, 3}))
	got, err := central.ReadPairing(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)

	// Central write is visible to the peripheral as a write event.
	require.NoError(t, central.WritePairing(t.Context(), []byte{9, 9}))
	ev := <-peripheral.Events()
	assert.Equal(t, EventWrite, ev.Kind)
	assert.Equal(t, CharPairing, ev.Char)
	assert.Equal(t, []byte{9, 9}, ev.Data)

	// Control and data flow both directions.
	require.NoError(t, peripheral.SendControl(t.Context(), []byte{OpStart}))
	ev = <-central.Events()
	assert.Equal(t, EventNotify, ev.Kind)
	assert.Equal(t, CharSyncControl, ev.Char)

	require.NoError(t, central.SendData(t.Context(), []byte{0xAA}))
	ev = <-peripheral.Events()
	assert.Equal(t, EventWrite, ev.Kind)
	assert.Equal(t, CharDataTransfer, ev.Char)

	require.NoError(t, central.Close())
	ev = <-peripheral.Events()
	assert.Equal(t, EventDisconnected, ev.Kind)
}
