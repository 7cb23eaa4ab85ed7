// Package origin identifies queue tenants and keeps their registry records.
package origin

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cockroachdb/pebble"
	pebblestore "github.com/rzbill/pageq/internal/storage/pebble"
)

// ID is an opaque tenant identifier. IDs are totally ordered and encode
// big-endian in keys so that key order matches numeric order.
type ID uint32

func (id ID) String() string { return strconv.FormatUint(uint64(id), 10) }

// Parse reads a decimal origin id.
func Parse(s string) (ID, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("origin: invalid id %q: %w", s, err)
	}
	return ID(v), nil
}

// AppendKey appends the 4-byte big-endian encoding of id to dst.
func (id ID) AppendKey(dst []byte) []byte {
	return binary.BigEndian.AppendUint32(dst, uint32(id))
}

// FromKey decodes an id from the first four bytes of b.
func FromKey(b []byte) (ID, bool) {
	if len(b) < 4 {
		return 0, false
	}
	return ID(binary.BigEndian.Uint32(b[:4])), true
}

// Meta is the registry record of an origin.
type Meta struct {
	ID            ID    `json:"id"`
	CreatedAtMs   int64 `json:"createdAtMs"`
	Suspended     bool  `json:"suspended"`
	SuspendedAtMs int64 `json:"suspendedAtMs,omitempty"`
}

var metaPrefix = []byte("origin/")

// metaKey builds the registry key for an origin.
func metaKey(id ID) []byte {
	k := make([]byte, 0, len(metaPrefix)+4)
	k = append(k, metaPrefix...)
	return id.AppendKey(k)
}

// NowMs is the clock used for registry timestamps.
var NowMs = func() int64 { return time.Now().UnixMilli() }

// Load returns the registry record for id. ok is false if none exists.
func Load(db *pebblestore.DB, id ID) (m Meta, ok bool, err error) {
	b, err := db.Get(metaKey(id))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return Meta{ID: id}, false, nil
	}
	if err != nil {
		return Meta{}, false, err
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return Meta{}, false, fmt.Errorf("origin %d: corrupt registry record: %w", id, err)
	}
	return m, true, nil
}

// Ensure creates a registry record if absent, returning the effective meta.
// Idempotent: returns the existing record if already present.
func Ensure(ctx context.Context, db *pebblestore.DB, id ID) (Meta, error) {
	if m, ok, err := Load(db, id); err != nil || ok {
		return m, err
	}
	m := Meta{ID: id, CreatedAtMs: NowMs()}
	b, err := json.Marshal(m)
	if err != nil {
		return Meta{}, err
	}
	if err := db.Set(ctx, metaKey(id), b); err != nil {
		return Meta{}, err
	}
	return m, nil
}

// Stage writes m into the batch so it commits atomically with other updates.
func Stage(b *pebble.Batch, m Meta) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return b.Set(metaKey(m.ID), raw, nil)
}

// List returns every registered origin in ascending id order.
func List(db *pebblestore.DB) ([]Meta, error) {
	it, err := db.NewIter(pebblestore.PrefixIterOptions(metaPrefix))
	if err != nil {
		return nil, err
	}
	defer func() { _ = it.Close() }()

	var out []Meta
	for ok := it.First(); ok; ok = it.Next() {
		var m Meta
		if err := json.Unmarshal(it.Value(), &m); err != nil {
			id, _ := FromKey(it.Key()[len(metaPrefix):])
			return nil, fmt.Errorf("origin %d: corrupt registry record: %w", id, err)
		}
		out = append(out, m)
	}
	return out, it.Error()
}
