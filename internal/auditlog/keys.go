package auditlog

import (
	"encoding/binary"

	"github.com/rzbill/pageq/internal/origin"
)

// Keyspace, byte-wise sortable:
//
//	a/{origin_be4}/m             last sequence (8B)
//	a/{origin_be4}/e/{seq_be8}   acceptedAtMs (8B) | message | crc32c (4B)

var (
	auditPrefix = []byte("a/")
	metaSuffix  = []byte("/m")
	entrySeg    = []byte("/e/")
)

func keyMeta(o origin.ID) []byte {
	k := make([]byte, 0, len(auditPrefix)+4+len(metaSuffix))
	k = append(k, auditPrefix...)
	k = o.AppendKey(k)
	return append(k, metaSuffix...)
}

func entryPrefix(o origin.ID) []byte {
	k := make([]byte, 0, len(auditPrefix)+4+len(entrySeg)+8)
	k = append(k, auditPrefix...)
	k = o.AppendKey(k)
	return append(k, entrySeg...)
}

func keyEntry(o origin.ID, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(entryPrefix(o), seq)
}
