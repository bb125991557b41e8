package ble

import (
	"encoding/binary"
	"fmt"

	"github.com/vibevault/vibevault/pkg/crypto"
	"github.com/vibevault/vibevault/pkg/types"
)

const (
	// MaxChunkData is the maximum payload carried by one chunk.
	MaxChunkData = 493

	// chunkHeaderLen is index (2) + total (2) + crc32 (4).
	chunkHeaderLen = 8

	maxChunks = 0xFFFF
)

// SplitChunks frames a logical message into wire chunks: a u16 little-endian
// index, u16 total, u32 CRC over the payload, then up to MaxChunkData
// payload bytes. An empty message still produces one empty chunk so the
// receiver observes a complete message.
func SplitChunks(data []byte) ([][]byte, error) {
	total := (len(data) + MaxChunkData - 1) / MaxChunkData
	if total == 0 {
		total = 1
	}
	if total > maxChunks {
		return nil, fmt.Errorf("message of %d bytes exceeds the %d-chunk limit", len(data), maxChunks)
	}

	chunks := make([][]byte, 0, total)
	for i := 0; i < total; i++ {
		start := i * MaxChunkData
		end := start + MaxChunkData
		if end > len(data) {
			end = len(data)
		}
		payload := data[start:end]

		chunk := make([]byte, chunkHeaderLen+len(payload))
		binary.LittleEndian.PutUint16(chunk[0:2], uint16(i))
		binary.LittleEndian.PutUint16(chunk[2:4], uint16(total))
		crypto.PutChecksum(chunk[4:8], crypto.Checksum(payload))
		copy(chunk[chunkHeaderLen:], payload)
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// Reassembler rebuilds one logical message from its chunks. Duplicate
// chunks at the same index are idempotent; any CRC or total mismatch is a
// framing error that aborts the current message.
type Reassembler struct {
	slots  [][]byte
	filled int
}

// NewReassembler returns an empty reassembler ready for the first chunk.
func NewReassembler() *Reassembler {
	return &Reassembler{}
}

// Add consumes one wire chunk. It returns true once every slot is filled.
func (r *Reassembler) Add(chunk []byte) (bool, error) {
	if len(chunk) < chunkHeaderLen {
		return false, types.NewSyncError(types.SyncFramingError,
			fmt.Errorf("chunk of %d bytes is shorter than the header", len(chunk)))
	}

	index := binary.LittleEndian.Uint16(chunk[0:2])
	total := binary.LittleEndian.Uint16(chunk[2:4])
	crc := crypto.ReadChecksum(chunk[4:8])
	payload := chunk[chunkHeaderLen:]

	if total == 0 {
		return false, types.NewSyncError(types.SyncFramingError, fmt.Errorf("chunk declares zero total"))
	}
	if len(payload) > MaxChunkData {
		return false, types.NewSyncError(types.SyncFramingError,
			fmt.Errorf("chunk payload of %d bytes exceeds the limit", len(payload)))
	}
	if crypto.Checksum(payload) != crc {
		return false, types.NewSyncError(types.SyncFramingError,
			fmt.Errorf("CRC mismatch on chunk %d", index))
	}

	if r.slots == nil {
		r.slots = make([][]byte, total)
	}
	if int(total) != len(r.slots) {
		return false, types.NewSyncError(types.SyncFramingError,
			fmt.Errorf("chunk declares total %d, message started with %d", total, len(r.slots)))
	}
	if int(index) >= len(r.slots) {
		return false, types.NewSyncError(types.SyncFramingError,
			fmt.Errorf("chunk index %d out of range", index))
	}

	if r.slots[index] == nil {
		r.slots[index] = append([]byte(nil), payload...)
		r.filled++
	}
	return r.filled == len(r.slots), nil
}

// Bytes concatenates the payloads in index order. Valid only after Add has
// reported completion.
func (r *Reassembler) Bytes() []byte {
	var size int
	for _, s := range r.slots {
		size += len(s)
	}
	out := make([]byte, 0, size)
	for _, s := range r.slots {
		out = append(out, s...)
	}
	return out
}

// Reset discards any partially assembled message.
func (r *Reassembler) Reset() {
	r.slots = nil
	r.filled = 0
}
