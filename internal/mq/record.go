package mq

import (
	"encoding/binary"
	"hash/crc32"
)

// Stored message record: payload | crc32c(payload) (4B BE)

const recordOverhead = 4

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func encodeRecord(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+recordOverhead)
	out = append(out, payload...)
	return binary.BigEndian.AppendUint32(out, crc32.Checksum(payload, castagnoli))
}

// decodeRecord returns a copy of the payload. ok is false when the checksum
// does not match; the returned bytes are then the raw, unverified payload.
func decodeRecord(b []byte) (payload []byte, ok bool) {
	if len(b) < recordOverhead {
		return append([]byte(nil), b...), false
	}
	body := b[:len(b)-recordOverhead]
	expect := binary.BigEndian.Uint32(b[len(b)-recordOverhead:])
	return append([]byte(nil), body...), crc32.Checksum(body, castagnoli) == expect
}

// recordSize is the payload length accounted in footprints.
func recordSize(b []byte) int {
	if len(b) < recordOverhead {
		return 0
	}
	return len(b) - recordOverhead
}

// Parked record: parkedAtMs (8B BE) | message record

func encodeParked(parkedAtMs int64, record []byte) []byte {
	out := make([]byte, 0, 8+len(record))
	out = binary.BigEndian.AppendUint64(out, uint64(parkedAtMs))
	return append(out, record...)
}

func decodeParked(b []byte) (parkedAtMs int64, record []byte, ok bool) {
	if len(b) < 8 {
		return 0, nil, false
	}
	return int64(binary.BigEndian.Uint64(b[:8])), b[8:], true
}
