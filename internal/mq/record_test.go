package mq

import (
	"bytes"
	"testing"

	pebblestore "github.com/rzbill/pageq/internal/storage/pebble"
)

func TestRecordRoundtrip(t *testing.T) {
	enc := encodeRecord([]byte("payload"))
	dec, ok := decodeRecord(enc)
	if !ok || string(dec) != "payload" {
		t.Fatalf("roundtrip: %q %v", dec, ok)
	}
	if recordSize(enc) != len("payload") {
		t.Fatalf("size = %d", recordSize(enc))
	}
}

func TestRecordCRCFail(t *testing.T) {
	enc := encodeRecord([]byte("ab"))
	enc[len(enc)-1] ^= 0xFF
	if _, ok := decodeRecord(enc); ok {
		t.Fatalf("expected crc fail")
	}
	if _, ok := decodeRecord([]byte{1}); ok {
		t.Fatalf("short record must fail")
	}
}

func TestParkedRoundtrip(t *testing.T) {
	at, rec, ok := decodeParked(encodeParked(1234, encodeRecord([]byte("x"))))
	if !ok || at != 1234 {
		t.Fatalf("parked header: %d %v", at, ok)
	}
	if p, ok := decodeRecord(rec); !ok || string(p) != "x" {
		t.Fatalf("parked body: %q %v", p, ok)
	}
}

func TestMsgKeyOrdering(t *testing.T) {
	if bytes.Compare(msgKey(1, 10), msgKey(1, 11)) >= 0 {
		t.Fatalf("expected seq ordering")
	}
	if bytes.Compare(msgKey(1, 1<<40), msgKey(2, 1)) >= 0 {
		t.Fatalf("expected origin ordering")
	}
}

func TestMetaKeyOutsideQueueRange(t *testing.T) {
	p := queuePrefix(1)
	end := pebblestore.PrefixEnd(p)
	k := metaKey(1)
	if bytes.Compare(k, p) >= 0 && bytes.Compare(k, end) < 0 {
		t.Fatalf("meta key falls inside the message range")
	}
	if seq, ok := seqFromKey(parkedKey(1, ParkCorrupt, 77)); !ok || seq != 77 {
		t.Fatalf("seqFromKey: %d %v", seq, ok)
	}
}
