package mq

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/rzbill/pageq/internal/footprint"
	"github.com/rzbill/pageq/internal/notify"
	"github.com/rzbill/pageq/internal/origin"
	pebblestore "github.com/rzbill/pageq/internal/storage/pebble"
	logpkg "github.com/rzbill/pageq/pkg/log"
)

// DefaultMaxMessageLen is the reference message size ceiling in bytes.
const DefaultMaxMessageLen = 256

var (
	// ErrMessageTooLong is returned by Bound for oversized input.
	ErrMessageTooLong = errors.New("mq: message too long")
	// ErrReentrantMutation is returned when a notifier tries to mutate the store.
	ErrReentrantMutation = errors.New("mq: mutation from inside a queue-change notification")
	// ErrNoSuchMessage is returned when a sequence is not present.
	ErrNoSuchMessage = errors.New("mq: no such message")
)

// Message is a validated message body. The only way to build one is
// Store.Bound, so every Message respects the store's length ceiling.
type Message struct {
	b []byte
}

// Bytes returns the message body. Callers must not modify it.
func (m Message) Bytes() []byte { return m.b }

// Len returns the body length in bytes.
func (m Message) Len() int { return len(m.b) }

// Entry is a live queue message as seen by Peek.
type Entry struct {
	Seq     uint64
	Message []byte
	// Damaged is set when the stored record failed its checksum.
	Damaged bool
}

// MetricsHook observes store activity. Optional.
type MetricsHook interface {
	ObserveMutation(ctx context.Context, op string, o origin.ID, msgs int, bytes int)
	ObserveFootprint(ctx context.Context, o origin.ID, fp footprint.Footprint)
}

type noopMetrics struct{}

func (noopMetrics) ObserveMutation(context.Context, string, origin.ID, int, int)   {}
func (noopMetrics) ObserveFootprint(context.Context, origin.ID, footprint.Footprint) {}

// Options configures a Store.
type Options struct {
	// MaxMessageLen bounds message bodies; zero means DefaultMaxMessageLen.
	MaxMessageLen int
	// Policy maps messages to pages; nil means footprint.OnePerPage.
	Policy   footprint.PagePolicy
	Notifier notify.Notifier
	Logger   logpkg.Logger
	Metrics  MetricsHook
}

// Store holds every origin's queue in Pebble.
//
// mu guards the in-memory caches and the on-disk state. Each commit queues
// its change under mu, so pending holds changes in commit order. Changes are
// delivered to the notifier one at a time with no lock held: the goroutine
// that finds nobody delivering drains the queue, everyone else returns once
// their change is queued. A notifier that writes back therefore never waits
// on itself.
type Store struct {
	db       *pebblestore.DB
	maxLen   int
	policy   footprint.PagePolicy
	notifier notify.Notifier
	logger   logpkg.Logger
	metrics  MetricsHook
	tally    func(origin.ID) (*footprint.Tally, error)

	mu      sync.RWMutex
	lastSeq map[origin.ID]uint64
	origins map[origin.ID]origin.Meta
	lastFP  map[origin.ID]footprint.Footprint

	deliverMu  sync.Mutex
	pending    []change
	delivering bool
}

type change struct {
	ctx context.Context
	o   origin.ID
	fp  footprint.Footprint
}

// Open builds a Store over db and restores the origin registry.
func Open(db *pebblestore.DB, opts Options) (*Store, error) {
	if opts.MaxMessageLen <= 0 {
		opts.MaxMessageLen = DefaultMaxMessageLen
	}
	if opts.Policy == nil {
		opts.Policy = footprint.OnePerPage{}
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger(logpkg.WithLevel(logpkg.InfoLevel))
	}
	if opts.Metrics == nil {
		opts.Metrics = noopMetrics{}
	}
	s := &Store{
		db:       db,
		maxLen:   opts.MaxMessageLen,
		policy:   opts.Policy,
		notifier: opts.Notifier,
		logger:   opts.Logger.With(logpkg.Component("mq")),
		metrics:  opts.Metrics,
		lastSeq:  make(map[origin.ID]uint64),
		origins:  make(map[origin.ID]origin.Meta),
		lastFP:   make(map[origin.ID]footprint.Footprint),
	}
	s.tally = s.tallyLocked
	metas, err := origin.List(db)
	if err != nil {
		return nil, fmt.Errorf("mq: load origins: %w", err)
	}
	for _, m := range metas {
		s.origins[m.ID] = m
	}
	s.logger.Debug("store opened",
		logpkg.Int("origins", len(metas)),
		logpkg.Str("policy", s.policy.Name()),
		logpkg.Int("max_message_len", s.maxLen),
	)
	return s, nil
}

// Policy returns the page policy in use.
func (s *Store) Policy() footprint.PagePolicy { return s.policy }

// MaxMessageLen returns the message size ceiling.
func (s *Store) MaxMessageLen() int { return s.maxLen }

// Bound validates b against the message size ceiling and returns an owned
// copy. It touches no shared state.
func (s *Store) Bound(b []byte) (Message, error) {
	if len(b) > s.maxLen {
		return Message{}, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrMessageTooLong, len(b), s.maxLen)
	}
	return Message{b: append([]byte{}, b...)}, nil
}

// EnqueueMessage appends one message to the origin's queue.
func (s *Store) EnqueueMessage(ctx context.Context, o origin.ID, msg Message) error {
	return s.EnqueueMessages(ctx, o, []Message{msg})
}

// EnqueueMessages appends msgs in order as one atomic write. The notifier
// fires once with the final footprint, also when msgs is empty.
func (s *Store) EnqueueMessages(ctx context.Context, o origin.ID, msgs []Message) error {
	return s.mutate(ctx, "enqueue", o, func(b *pebble.Batch) (mutation, error) {
		seq, err := s.seqLocked(o)
		if err != nil {
			return mutation{}, err
		}
		var bytes int
		for _, m := range msgs {
			seq++
			if err := b.Set(msgKey(o, seq), encodeRecord(m.b), nil); err != nil {
				return mutation{}, err
			}
			bytes += len(m.b)
		}
		if len(msgs) == 0 {
			return mutation{}, nil
		}
		var meta [8]byte
		binary.BigEndian.PutUint64(meta[:], seq)
		if err := b.Set(metaKey(o), meta[:], nil); err != nil {
			return mutation{}, err
		}
		reg, err := s.registerLocked(b, o)
		if err != nil {
			return mutation{}, err
		}
		return mutation{msgs: len(msgs), bytes: bytes, onCommit: func() {
			s.lastSeq[o] = seq
			if reg != nil {
				s.origins[o] = *reg
			}
		}}, nil
	})
}

// SweepQueue drops every live message of the origin with a single range
// delete. Sequence numbers keep counting from where they were.
func (s *Store) SweepQueue(ctx context.Context, o origin.ID) error {
	return s.mutate(ctx, "sweep", o, func(b *pebble.Batch) (mutation, error) {
		start := queuePrefix(o)
		if err := b.DeleteRange(start, pebblestore.PrefixEnd(start), nil); err != nil {
			return mutation{}, err
		}
		return mutation{}, nil
	})
}

// Remove deletes delivered messages by sequence. Sequences that are not live
// are ignored.
func (s *Store) Remove(ctx context.Context, o origin.ID, seqs ...uint64) error {
	return s.mutate(ctx, "remove", o, func(b *pebble.Batch) (mutation, error) {
		var m mutation
		seen := make(map[uint64]struct{}, len(seqs))
		for _, seq := range seqs {
			if _, dup := seen[seq]; dup {
				continue
			}
			seen[seq] = struct{}{}
			raw, err := s.db.Get(msgKey(o, seq))
			if errors.Is(err, pebblestore.ErrNotFound) {
				continue
			}
			if err != nil {
				return mutation{}, err
			}
			if err := b.Delete(msgKey(o, seq), nil); err != nil {
				return mutation{}, err
			}
			m.msgs++
			m.bytes += recordSize(raw)
		}
		return m, nil
	})
}

// Suspend holds back every page of the origin: its ready pages drop to zero
// until Resume.
func (s *Store) Suspend(ctx context.Context, o origin.ID) error {
	return s.setSuspended(ctx, "suspend", o, true)
}

// Resume makes a suspended origin's pages ready again.
func (s *Store) Resume(ctx context.Context, o origin.ID) error {
	return s.setSuspended(ctx, "resume", o, false)
}

func (s *Store) setSuspended(ctx context.Context, op string, o origin.ID, suspended bool) error {
	return s.mutate(ctx, op, o, func(b *pebble.Batch) (mutation, error) {
		m, known := s.origins[o]
		if !known {
			m = origin.Meta{ID: o, CreatedAtMs: origin.NowMs()}
		}
		m.Suspended = suspended
		m.SuspendedAtMs = 0
		if suspended {
			m.SuspendedAtMs = origin.NowMs()
		}
		if err := origin.Stage(b, m); err != nil {
			return mutation{}, err
		}
		return mutation{onCommit: func() { s.origins[o] = m }}, nil
	})
}

// Origins returns every registered origin in ascending id order.
func (s *Store) Origins() []origin.Meta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]origin.Meta, 0, len(s.origins))
	for _, m := range s.origins {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Footprint recomputes the origin's footprint from its stored messages. An
// origin with no messages has the zero footprint.
func (s *Store) Footprint(ctx context.Context, o origin.ID) (footprint.Footprint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, err := s.tally(o)
	if err != nil {
		return footprint.Footprint{}, err
	}
	return s.withReadiness(o, t.Footprint()), nil
}

// PlanBatches reports, for each prefix of candidates that fits, the cost of
// appending it to the origin's queue without pushing its pages past
// totalPagesLimit. It never fails on its inputs.
func (s *Store) PlanBatches(ctx context.Context, o origin.ID, candidates []Message, totalPagesLimit uint32) ([]footprint.BatchFootprint, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, err := s.tally(o)
	if err != nil {
		return nil, err
	}
	sizes := make([]int, len(candidates))
	for i, m := range candidates {
		sizes[i] = m.Len()
	}
	return footprint.Plan(t.Footprint(), t.Packer(), sizes, totalPagesLimit), nil
}

// Peek returns up to limit head entries in queue order. limit <= 0 returns
// every entry.
func (s *Store) Peek(ctx context.Context, o origin.ID, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, err := s.db.NewIter(pebblestore.PrefixIterOptions(queuePrefix(o)))
	if err != nil {
		return nil, fmt.Errorf("mq: peek origin %d: %w", o, err)
	}
	defer func() { _ = it.Close() }()

	var out []Entry
	for ok := it.First(); ok && (limit <= 0 || len(out) < limit); ok = it.Next() {
		seq, _ := seqFromKey(it.Key())
		payload, intact := decodeRecord(it.Value())
		out = append(out, Entry{Seq: seq, Message: payload, Damaged: !intact})
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("mq: peek origin %d: %w", o, err)
	}
	return out, nil
}

type mutation struct {
	msgs, bytes int
	onCommit    func()
}

// mutate runs apply inside one batch, commits it, and delivers the
// resulting change to the notifier in commit order.
func (s *Store) mutate(ctx context.Context, op string, o origin.ID, apply func(b *pebble.Batch) (mutation, error)) error {
	if notify.InNotification(ctx) {
		return ErrReentrantMutation
	}
	fp, m, err := s.commitLocked(ctx, op, o, apply)
	if err != nil {
		return err
	}
	s.metrics.ObserveMutation(ctx, op, o, m.msgs, m.bytes)
	s.metrics.ObserveFootprint(ctx, o, fp)
	s.deliver()
	return nil
}

// commitLocked commits the batch and queues the change for delivery. Once
// the batch is durable the change is always queued: if the footprint cannot
// be recomputed the last known one is sent instead.
func (s *Store) commitLocked(ctx context.Context, op string, o origin.ID, apply func(b *pebble.Batch) (mutation, error)) (footprint.Footprint, mutation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.db.NewBatch()
	defer b.Close()

	m, err := apply(b)
	if err != nil {
		return footprint.Footprint{}, mutation{}, fmt.Errorf("mq: %s origin %d: %w", op, o, err)
	}
	if !b.Empty() {
		if err := s.db.CommitBatch(ctx, b); err != nil {
			return footprint.Footprint{}, mutation{}, fmt.Errorf("mq: %s origin %d: commit: %w", op, o, err)
		}
	}
	if m.onCommit != nil {
		m.onCommit()
	}
	fp := s.lastFP[o]
	if t, err := s.tally(o); err != nil {
		s.logger.Error("footprint unavailable after commit; notifying last known",
			logpkg.Str("op", op),
			logpkg.F("origin", o),
			logpkg.Err(err),
		)
	} else {
		fp = t.Footprint()
		s.lastFP[o] = fp
	}
	fp = s.withReadiness(o, fp)

	s.deliverMu.Lock()
	s.pending = append(s.pending, change{ctx: ctx, o: o, fp: fp})
	s.deliverMu.Unlock()
	return fp, m, nil
}

// deliver drains pending unless another goroutine already is.
func (s *Store) deliver() {
	s.deliverMu.Lock()
	if s.delivering {
		s.deliverMu.Unlock()
		return
	}
	s.delivering = true
	done := false
	defer func() {
		if !done {
			s.deliverMu.Lock()
			s.delivering = false
			s.deliverMu.Unlock()
		}
	}()
	for len(s.pending) > 0 {
		c := s.pending[0]
		s.pending[0] = change{}
		s.pending = s.pending[1:]
		s.deliverMu.Unlock()
		s.notifier.OnQueueChanged(notify.WithinNotification(c.ctx), c.o, c.fp)
		s.deliverMu.Lock()
	}
	s.delivering = false
	done = true
	s.deliverMu.Unlock()
}

// seqLocked returns the last assigned sequence, loading it on first use.
func (s *Store) seqLocked(o origin.ID) (uint64, error) {
	if seq, ok := s.lastSeq[o]; ok {
		return seq, nil
	}
	raw, err := s.db.Get(metaKey(o))
	switch {
	case errors.Is(err, pebblestore.ErrNotFound):
		s.lastSeq[o] = 0
		return 0, nil
	case err != nil:
		return 0, err
	case len(raw) < 8:
		return 0, fmt.Errorf("corrupt queue meta (%d bytes)", len(raw))
	}
	seq := binary.BigEndian.Uint64(raw[:8])
	s.lastSeq[o] = seq
	return seq, nil
}

// registerLocked stages a registry record for an origin seen for the first
// time and returns it for the caller to cache once the batch commits.
func (s *Store) registerLocked(b *pebble.Batch, o origin.ID) (*origin.Meta, error) {
	if _, ok := s.origins[o]; ok {
		return nil, nil
	}
	m := origin.Meta{ID: o, CreatedAtMs: origin.NowMs()}
	if err := origin.Stage(b, m); err != nil {
		return nil, err
	}
	return &m, nil
}

// tallyLocked scans the origin's live messages.
func (s *Store) tallyLocked(o origin.ID) (*footprint.Tally, error) {
	it, err := s.db.NewIter(pebblestore.PrefixIterOptions(queuePrefix(o)))
	if err != nil {
		return nil, fmt.Errorf("mq: scan origin %d: %w", o, err)
	}
	defer func() { _ = it.Close() }()

	t := footprint.NewTally(s.policy)
	for ok := it.First(); ok; ok = it.Next() {
		t.Add(recordSize(it.Value()))
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("mq: scan origin %d: %w", o, err)
	}
	return t, nil
}

func (s *Store) withReadiness(o origin.ID, fp footprint.Footprint) footprint.Footprint {
	if m, ok := s.origins[o]; ok && m.Suspended {
		fp.ReadyPages = 0
	}
	return fp
}
