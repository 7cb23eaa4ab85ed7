// Package auditlog keeps an append-only record of accepted messages per
// origin.
package auditlog

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rzbill/pageq/internal/origin"
	pebblestore "github.com/rzbill/pageq/internal/storage/pebble"
)

// Item is one recorded message.
type Item struct {
	Seq          uint64 `json:"seq"`
	AcceptedAtMs int64  `json:"acceptedAtMs"`
	Message      []byte `json:"message"`
}

// Log appends and reads audit entries. Sequences are per origin, start at 1
// and survive reopen.
type Log struct {
	db  *pebblestore.DB
	now func() int64

	mu      sync.Mutex
	lastSeq map[origin.ID]uint64
}

// Open wraps db. Per-origin sequences are loaded lazily.
func Open(db *pebblestore.DB) *Log {
	return &Log{
		db:      db,
		now:     func() int64 { return time.Now().UnixMilli() },
		lastSeq: make(map[origin.ID]uint64),
	}
}

// Append records msgs for o as one atomic batch and returns their sequences.
func (l *Log) Append(ctx context.Context, o origin.ID, msgs ...[]byte) ([]uint64, error) {
	if len(msgs) == 0 {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	last, err := l.lastSeqLocked(o)
	if err != nil {
		return nil, err
	}
	b := l.db.NewBatch()
	defer b.Close()

	at := l.now()
	seqs := make([]uint64, len(msgs))
	seq := last
	for i, m := range msgs {
		seq++
		if err := b.Set(keyEntry(o, seq), encodeEntry(at, m), nil); err != nil {
			return nil, err
		}
		seqs[i] = seq
	}
	var meta [8]byte
	binary.BigEndian.PutUint64(meta[:], seq)
	if err := b.Set(keyMeta(o), meta[:], nil); err != nil {
		return nil, err
	}
	if err := l.db.CommitBatch(ctx, b); err != nil {
		return nil, fmt.Errorf("auditlog: append origin %d: %w", o, err)
	}
	l.lastSeq[o] = seq
	return seqs, nil
}

// LastSeq returns the highest sequence ever assigned for o.
func (l *Log) LastSeq(o origin.ID) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSeqLocked(o)
}

func (l *Log) lastSeqLocked(o origin.ID) (uint64, error) {
	if seq, ok := l.lastSeq[o]; ok {
		return seq, nil
	}
	meta, err := l.db.Get(keyMeta(o))
	switch {
	case errors.Is(err, pebblestore.ErrNotFound):
		l.lastSeq[o] = 0
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("auditlog: load meta origin %d: %w", o, err)
	case len(meta) < 8:
		return 0, fmt.Errorf("auditlog: corrupt meta for origin %d", o)
	}
	seq := binary.BigEndian.Uint64(meta[:8])
	l.lastSeq[o] = seq
	return seq, nil
}

// Read returns up to limit entries of o with seq >= from, in order, from a
// consistent snapshot. limit <= 0 means no limit. Entries that fail their
// checksum are skipped.
func (l *Log) Read(ctx context.Context, o origin.ID, from uint64, limit int) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap := l.db.NewSnapshot()
	defer snap.Close()

	prefix := entryPrefix(o)
	it, err := snap.NewIter(pebblestore.PrefixIterOptions(prefix))
	if err != nil {
		return nil, fmt.Errorf("auditlog: read origin %d: %w", o, err)
	}
	defer func() { _ = it.Close() }()

	var items []Item
	for ok := it.SeekGE(keyEntry(o, from)); ok && (limit <= 0 || len(items) < limit); ok = it.Next() {
		k := it.Key()
		seq := binary.BigEndian.Uint64(k[len(k)-8:])
		at, msg, valid := decodeEntry(it.Value())
		if !valid {
			continue
		}
		items = append(items, Item{Seq: seq, AcceptedAtMs: at, Message: msg})
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("auditlog: read origin %d: %w", o, err)
	}
	return items, nil
}

// Trim deletes every entry of o with seq < before. Sequences keep counting.
func (l *Log) Trim(ctx context.Context, o origin.ID, before uint64) error {
	if before <= 1 {
		return nil
	}
	b := l.db.NewBatch()
	defer b.Close()
	if err := b.DeleteRange(keyEntry(o, 0), keyEntry(o, before), nil); err != nil {
		return err
	}
	if err := l.db.CommitBatch(ctx, b); err != nil {
		return fmt.Errorf("auditlog: trim origin %d: %w", o, err)
	}
	return nil
}

// Recorder adapts a Log to processor.Recorder.
type Recorder struct {
	Log *Log
}

func (r Recorder) Record(ctx context.Context, o origin.ID, msg []byte) error {
	_, err := r.Log.Append(ctx, o, msg)
	return err
}
