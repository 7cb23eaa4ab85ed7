package auditlog

import (
	"context"
	"testing"

	"github.com/rzbill/pageq/internal/processor"
	pebblestore "github.com/rzbill/pageq/internal/storage/pebble"
	"github.com/rzbill/pageq/internal/weight"
)

func openDB(t *testing.T, dir string) *pebblestore.DB {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	return db
}

func TestAppendReadAcrossOrigins(t *testing.T) {
	db := openDB(t, t.TempDir())
	defer db.Close()
	l := Open(db)
	l.now = func() int64 { return 42 }
	ctx := context.Background()

	seqs, err := l.Append(ctx, 1, []byte("a"), []byte("b"))
	if err != nil || len(seqs) != 2 || seqs[0] != 1 || seqs[1] != 2 {
		t.Fatalf("append: %v %v", seqs, err)
	}
	if _, err := l.Append(ctx, 2, []byte("x")); err != nil {
		t.Fatalf("append 2: %v", err)
	}
	items, err := l.Read(ctx, 1, 0, 0)
	if err != nil || len(items) != 2 || string(items[1].Message) != "b" || items[0].AcceptedAtMs != 42 {
		t.Fatalf("read: %+v %v", items, err)
	}
	items, _ = l.Read(ctx, 1, 2, 10)
	if len(items) != 1 || items[0].Seq != 2 {
		t.Fatalf("read from 2: %+v", items)
	}
	items, _ = l.Read(ctx, 2, 0, 1)
	if len(items) != 1 || string(items[0].Message) != "x" {
		t.Fatalf("read origin 2: %+v", items)
	}
}

func TestSequenceSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	db := openDB(t, dir)
	if _, err := Open(db).Append(ctx, 7, []byte("1"), []byte("2")); err != nil {
		t.Fatalf("append: %v", err)
	}
	_ = db.Close()

	db = openDB(t, dir)
	defer db.Close()
	l := Open(db)
	if seq, err := l.LastSeq(7); err != nil || seq != 2 {
		t.Fatalf("last seq: %d %v", seq, err)
	}
	seqs, _ := l.Append(ctx, 7, []byte("3"))
	if seqs[0] != 3 {
		t.Fatalf("seq after reopen = %d", seqs[0])
	}
}

func TestTrim(t *testing.T) {
	db := openDB(t, t.TempDir())
	defer db.Close()
	l := Open(db)
	ctx := context.Background()
	_, _ = l.Append(ctx, 1, []byte("a"), []byte("b"), []byte("c"))
	if err := l.Trim(ctx, 1, 3); err != nil {
		t.Fatalf("trim: %v", err)
	}
	items, _ := l.Read(ctx, 1, 0, 0)
	if len(items) != 1 || items[0].Seq != 3 {
		t.Fatalf("after trim: %+v", items)
	}
}

func TestRecorderWithWeightMarker(t *testing.T) {
	db := openDB(t, t.TempDir())
	defer db.Close()
	l := Open(db)
	p := processor.WeightMarker{Recorder: Recorder{Log: l}}
	ctx := context.Background()
	meter := weight.NewMeter(weight.FromAll(10))
	p.ProcessMessage(ctx, processor.EncodeMarker(5, []byte("ok")), 3, meter)
	p.ProcessMessage(ctx, processor.EncodeMarker(50, []byte("no")), 3, meter)
	items, _ := l.Read(ctx, 3, 0, 0)
	if len(items) != 1 || string(items[0].Message[processor.MarkerLen:]) != "ok" {
		t.Fatalf("recorded: %+v", items)
	}
}

func TestDecodeEntryRejectsDamage(t *testing.T) {
	b := encodeEntry(1, []byte("m"))
	b[9] ^= 0x1
	if _, _, ok := decodeEntry(b); ok {
		t.Fatalf("expected crc failure")
	}
}
