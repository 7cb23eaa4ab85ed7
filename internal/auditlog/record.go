package auditlog

import (
	"encoding/binary"
	"hash/crc32"
)

// Entry record: acceptedAtMs (8B BE) | message | crc32c(acceptedAtMs|message) (4B BE)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func encodeEntry(acceptedAtMs int64, msg []byte) []byte {
	out := make([]byte, 0, 8+len(msg)+4)
	out = binary.BigEndian.AppendUint64(out, uint64(acceptedAtMs))
	out = append(out, msg...)
	return binary.BigEndian.AppendUint32(out, crc32.Checksum(out, castagnoli))
}

func decodeEntry(b []byte) (acceptedAtMs int64, msg []byte, ok bool) {
	if len(b) < 12 {
		return 0, nil, false
	}
	body := b[:len(b)-4]
	if crc32.Checksum(body, castagnoli) != binary.BigEndian.Uint32(b[len(b)-4:]) {
		return 0, nil, false
	}
	return int64(binary.BigEndian.Uint64(body[:8])), append([]byte(nil), body[8:]...), true
}
