package walog

import "hash/crc32"

var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// CRC32 computes the checksum used to guard an entry's payload.
func CRC32(data []byte) uint32 {
	return crc32.Checksum(data, castagnoliTable)
}

// ValidCRC32 reports whether data matches the expected checksum.
func ValidCRC32(data []byte, expected uint32) bool {
	return CRC32(data) == expected
}
