// Package scheduler keeps the round-robin set of origins that have pages
// ready for service.
package scheduler

import (
	"context"
	"sync"

	"github.com/rzbill/pageq/internal/footprint"
	"github.com/rzbill/pageq/internal/origin"
	logpkg "github.com/rzbill/pageq/pkg/log"
)

// Ring is a notify.Notifier that tracks ready origins. An origin joins when
// its footprint reports ready pages and the admission filter accepts it, and
// leaves as soon as either stops being true. Newcomers are placed at the end
// of the current round.
type Ring struct {
	filter Filter
	logger logpkg.Logger

	mu     sync.Mutex
	order  []origin.ID
	head   int
	member map[origin.ID]struct{}
}

// NewRing builds an empty ring. logger may be nil.
func NewRing(filter Filter, logger logpkg.Logger) *Ring {
	if logger == nil {
		logger = logpkg.NewLogger(logpkg.WithLevel(logpkg.InfoLevel))
	}
	return &Ring{
		filter: filter,
		logger: logger.With(logpkg.Component("scheduler")),
		member: make(map[origin.ID]struct{}),
	}
}

// OnQueueChanged updates the origin's membership.
func (r *Ring) OnQueueChanged(_ context.Context, o origin.ID, fp footprint.Footprint) {
	ready := fp.ReadyPages > 0 && r.filter.Admit(o, fp)

	r.mu.Lock()
	defer r.mu.Unlock()
	_, in := r.member[o]
	switch {
	case ready && !in:
		r.insertLocked(o)
		r.logger.Debug("origin ready", logpkg.F("origin", o), logpkg.F("ready_pages", fp.ReadyPages))
	case !ready && in:
		r.removeLocked(o)
		r.logger.Debug("origin idle", logpkg.F("origin", o))
	}
}

// Next returns the origin at the head of the ring and advances the head.
func (r *Ring) Next() (origin.ID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.order) == 0 {
		return 0, false
	}
	o := r.order[r.head]
	r.head = (r.head + 1) % len(r.order)
	return o, true
}

// Seek moves the head to o so the next call to Next returns it. It reports
// whether o is in the ring.
func (r *Ring) Seek(o origin.ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, id := range r.order {
		if id == o {
			r.head = i
			return true
		}
	}
	return false
}

// Ready returns the ring's members starting from the head.
func (r *Ring) Ready() []origin.ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]origin.ID, 0, len(r.order))
	for i := range r.order {
		out = append(out, r.order[(r.head+i)%len(r.order)])
	}
	return out
}

// Contains reports whether o is currently scheduled.
func (r *Ring) Contains(o origin.ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.member[o]
	return ok
}

// Len returns the number of ready origins.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

func (r *Ring) insertLocked(o origin.ID) {
	r.member[o] = struct{}{}
	if len(r.order) == 0 {
		r.order = append(r.order, o)
		r.head = 0
		return
	}
	// insert just before head: last in the current round
	r.order = append(r.order, 0)
	copy(r.order[r.head+1:], r.order[r.head:])
	r.order[r.head] = o
	r.head++
}

func (r *Ring) removeLocked(o origin.ID) {
	delete(r.member, o)
	for i, id := range r.order {
		if id != o {
			continue
		}
		r.order = append(r.order[:i], r.order[i+1:]...)
		if i < r.head {
			r.head--
		}
		if r.head >= len(r.order) {
			r.head = 0
		}
		return
	}
}
