package crypto

import (
	"encoding/binary"
	"hash/crc32"
)

// Checksum computes the IEEE CRC32 (poly 0xEDB88320, init and final XOR
// 0xFFFFFFFF) used by the chunk framing layer.
func Checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// PutChecksum writes the little-endian wire encoding of the CRC into b,
// which must be at least 4 bytes.
func PutChecksum(b []byte, crc uint32) {
	binary.LittleEndian.PutUint32(b, crc)
}

// ReadChecksum reads a little-endian CRC from b.
func ReadChecksum(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}
