package mq

import (
	"encoding/binary"

	"github.com/rzbill/pageq/internal/origin"
)

// Key layout. Origins and sequences are big-endian so key order is queue
// order.
//
//	q/{origin}/m/{seq}             framed message
//	q/{origin}/meta                lastSeq (8B)
//	p/{origin}/{reason}/{seq}      parkedAtMs (8B) | framed message
const (
	prefixQueue  = "q/"
	prefixParked = "p/"
	segMsg       = "/m/"
	segMeta      = "/meta"
)

func queuePrefix(o origin.ID) []byte {
	k := make([]byte, 0, len(prefixQueue)+4+len(segMsg))
	k = append(k, prefixQueue...)
	k = o.AppendKey(k)
	return append(k, segMsg...)
}

func msgKey(o origin.ID, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(queuePrefix(o), seq)
}

func metaKey(o origin.ID) []byte {
	k := make([]byte, 0, len(prefixQueue)+4+len(segMeta))
	k = append(k, prefixQueue...)
	k = o.AppendKey(k)
	return append(k, segMeta...)
}

func parkedPrefix(o origin.ID, reason ParkReason) []byte {
	k := make([]byte, 0, len(prefixParked)+4+len(reason)+2+8)
	k = append(k, prefixParked...)
	k = o.AppendKey(k)
	k = append(k, '/')
	k = append(k, reason...)
	return append(k, '/')
}

func parkedKey(o origin.ID, reason ParkReason, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(parkedPrefix(o, reason), seq)
}

// seqFromKey reads the trailing 8-byte sequence of a message or parked key.
func seqFromKey(k []byte) (uint64, bool) {
	if len(k) < 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(k[len(k)-8:]), true
}
