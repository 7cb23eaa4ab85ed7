package mq

import (
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/rzbill/pageq/internal/origin"
	pebblestore "github.com/rzbill/pageq/internal/storage/pebble"
)

// ParkReason names the keyspace a message is parked under.
type ParkReason string

const (
	// ParkCorrupt holds messages the processor rejected as malformed.
	ParkCorrupt ParkReason = "corrupt"
	// ParkOverweight holds messages that need more weight than any single
	// service pass is given.
	ParkOverweight ParkReason = "overweight"
)

// ParseParkReason accepts "corrupt" or "overweight".
func ParseParkReason(s string) (ParkReason, error) {
	switch r := ParkReason(s); r {
	case ParkCorrupt, ParkOverweight:
		return r, nil
	default:
		return "", fmt.Errorf("mq: unknown park reason %q", s)
	}
}

// ParkedEntry is a message moved out of the live queue.
type ParkedEntry struct {
	Seq        uint64
	Reason     ParkReason
	Message    []byte
	Damaged    bool
	ParkedAtMs int64
}

// Park moves a live message into the parked keyspace. Parked messages no
// longer count towards the origin's footprint.
func (s *Store) Park(ctx context.Context, o origin.ID, seq uint64, reason ParkReason) error {
	if _, err := ParseParkReason(string(reason)); err != nil {
		return err
	}
	return s.mutate(ctx, "park", o, func(b *pebble.Batch) (mutation, error) {
		raw, err := s.db.Get(msgKey(o, seq))
		if errors.Is(err, pebblestore.ErrNotFound) {
			return mutation{}, fmt.Errorf("%w: seq %d", ErrNoSuchMessage, seq)
		}
		if err != nil {
			return mutation{}, err
		}
		if err := b.Delete(msgKey(o, seq), nil); err != nil {
			return mutation{}, err
		}
		if err := b.Set(parkedKey(o, reason, seq), encodeParked(origin.NowMs(), raw), nil); err != nil {
			return mutation{}, err
		}
		return mutation{msgs: 1, bytes: recordSize(raw)}, nil
	})
}

// Unpark deletes a parked entry, typically after it was executed.
func (s *Store) Unpark(ctx context.Context, o origin.ID, seq uint64, reason ParkReason) error {
	return s.mutate(ctx, "unpark", o, func(b *pebble.Batch) (mutation, error) {
		if _, err := s.db.Get(parkedKey(o, reason, seq)); err != nil {
			if errors.Is(err, pebblestore.ErrNotFound) {
				return mutation{}, fmt.Errorf("%w: parked %s seq %d", ErrNoSuchMessage, reason, seq)
			}
			return mutation{}, err
		}
		if err := b.Delete(parkedKey(o, reason, seq), nil); err != nil {
			return mutation{}, err
		}
		return mutation{msgs: 1}, nil
	})
}

// ParkedEntry loads one parked message.
func (s *Store) ParkedEntry(ctx context.Context, o origin.ID, seq uint64, reason ParkReason) (ParkedEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, err := s.db.Get(parkedKey(o, reason, seq))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return ParkedEntry{}, fmt.Errorf("%w: parked %s seq %d", ErrNoSuchMessage, reason, seq)
	}
	if err != nil {
		return ParkedEntry{}, fmt.Errorf("mq: load parked origin %d: %w", o, err)
	}
	return parsedParked(seq, reason, raw), nil
}

// Parked lists an origin's parked messages for reason in sequence order.
func (s *Store) Parked(ctx context.Context, o origin.ID, reason ParkReason) ([]ParkedEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, err := s.db.NewIter(pebblestore.PrefixIterOptions(parkedPrefix(o, reason)))
	if err != nil {
		return nil, fmt.Errorf("mq: list parked origin %d: %w", o, err)
	}
	defer func() { _ = it.Close() }()

	var out []ParkedEntry
	for ok := it.First(); ok; ok = it.Next() {
		seq, _ := seqFromKey(it.Key())
		out = append(out, parsedParked(seq, reason, it.Value()))
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("mq: list parked origin %d: %w", o, err)
	}
	return out, nil
}

func parsedParked(seq uint64, reason ParkReason, raw []byte) ParkedEntry {
	e := ParkedEntry{Seq: seq, Reason: reason, Damaged: true}
	at, rec, ok := decodeParked(raw)
	if !ok {
		return e
	}
	e.ParkedAtMs = at
	e.Message, ok = decodeRecord(rec)
	e.Damaged = !ok
	return e
}
