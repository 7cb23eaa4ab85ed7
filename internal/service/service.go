// Package service drains ready queues through a Processor under a weight
// budget.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rzbill/pageq/internal/mq"
	"github.com/rzbill/pageq/internal/origin"
	"github.com/rzbill/pageq/internal/processor"
	"github.com/rzbill/pageq/internal/scheduler"
	"github.com/rzbill/pageq/internal/weight"
	logpkg "github.com/rzbill/pageq/pkg/log"
)

// DefaultPeekBatch is how many head messages are read per store round trip.
const DefaultPeekBatch = 32

var (
	// ErrNotParked is returned when executing a message that is not parked as
	// overweight.
	ErrNotParked = errors.New("service: message is not parked as overweight")
	// ErrStillOverweight is returned when the given limit cannot cover the
	// message.
	ErrStillOverweight = errors.New("service: message still overweight")
	// ErrCorrupt is returned when a parked message turns out to be corrupt.
	ErrCorrupt = errors.New("service: message is corrupt")
)

// Report summarises one service pass.
type Report struct {
	Origins    int           `json:"origins"`
	Accepted   int           `json:"accepted"`
	Corrupt    int           `json:"corrupt"`
	Overweight int           `json:"overweight"`
	Consumed   weight.Weight `json:"consumed"`
	// Stopped is set when the pass ended because the budget could not cover
	// the message at StoppedAt's head.
	Stopped   bool      `json:"stopped"`
	StoppedAt origin.ID `json:"stoppedAt,omitempty"`
}

// MetricsHook observes service activity. Optional.
type MetricsHook interface {
	ObserveOutcome(ctx context.Context, o origin.ID, out processor.Outcome)
	ObservePass(ctx context.Context, r Report)
}

type noopMetrics struct{}

func (noopMetrics) ObserveOutcome(context.Context, origin.ID, processor.Outcome) {}
func (noopMetrics) ObservePass(context.Context, Report)                        {}

// Options configures a Servicer.
type Options struct {
	Store     *mq.Store
	Ring      *scheduler.Ring
	Processor processor.Processor
	// MaxMessageWeight caps the weight a message may need to be serviced by
	// a pass. A message requiring more than this, or more than the pass
	// meter's whole limit, can never run in a pass and is parked. Zero means
	// the meter's limit alone decides.
	MaxMessageWeight weight.Weight
	PeekBatch        int
	Logger           logpkg.Logger
	Metrics          MetricsHook
}

// Servicer runs service passes over the ready ring.
type Servicer struct {
	store     *mq.Store
	ring      *scheduler.Ring
	proc      processor.Processor
	maxWeight weight.Weight
	peek      int
	logger    logpkg.Logger
	metrics   MetricsHook
}

// New validates opts and builds a Servicer.
func New(opts Options) (*Servicer, error) {
	if opts.Store == nil || opts.Ring == nil || opts.Processor == nil {
		return nil, errors.New("service: store, ring and processor are required")
	}
	if opts.PeekBatch <= 0 {
		opts.PeekBatch = DefaultPeekBatch
	}
	if opts.MaxMessageWeight.IsZero() {
		opts.MaxMessageWeight = weight.Max
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger(logpkg.WithLevel(logpkg.InfoLevel))
	}
	if opts.Metrics == nil {
		opts.Metrics = noopMetrics{}
	}
	return &Servicer{
		store:     opts.Store,
		ring:      opts.Ring,
		proc:      opts.Processor,
		maxWeight: opts.MaxMessageWeight,
		peek:      opts.PeekBatch,
		logger:    opts.Logger.With(logpkg.Component("service")),
		metrics:   opts.Metrics,
	}, nil
}

// ServiceQueues visits ready origins in ring order, each at most once, and
// processes their head messages until the queues drain or meter cannot
// cover the next message. Accepted messages are removed, corrupt ones are
// parked, and so are overweight ones that need more than the meter's limit or
// MaxMessageWeight. A message that merely exceeds the remaining budget stays
// at the head, ends the pass, and is first in line for the next pass.
func (s *Servicer) ServiceQueues(ctx context.Context, meter *weight.Meter) (rep Report, err error) {
	defer func() {
		rep.Consumed = meter.Consumed()
		s.metrics.ObservePass(ctx, rep)
	}()

	visited := make(map[origin.ID]struct{})
	for {
		o, ok := s.ring.Next()
		if !ok {
			return rep, nil
		}
		if _, seen := visited[o]; seen {
			return rep, nil
		}
		visited[o] = struct{}{}
		rep.Origins++

		stopped, serr := s.serviceOrigin(ctx, o, meter, &rep)
		if serr != nil {
			return rep, serr
		}
		if stopped {
			rep.Stopped, rep.StoppedAt = true, o
			s.ring.Seek(o)
			s.logger.Debug("service pass out of weight",
				logpkg.F("origin", o),
				logpkg.F("consumed", meter.Consumed().String()),
			)
			return rep, nil
		}
	}
}

func (s *Servicer) serviceOrigin(ctx context.Context, o origin.ID, meter *weight.Meter, rep *Report) (stopped bool, err error) {
	var accepted []uint64
	flush := func() error {
		if len(accepted) == 0 {
			return nil
		}
		err := s.store.Remove(ctx, o, accepted...)
		accepted = accepted[:0]
		return err
	}
	defer func() {
		if ferr := flush(); ferr != nil && err == nil {
			err = fmt.Errorf("service: remove accepted from origin %d: %w", o, ferr)
		}
	}()

	for {
		entries, err := s.store.Peek(ctx, o, s.peek)
		if err != nil {
			return false, err
		}
		if len(entries) == 0 {
			return false, nil
		}
		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return false, err
			}
			out := processor.Corrupt()
			if !e.Damaged {
				out = s.proc.ProcessMessage(ctx, e.Message, o, meter)
			}
			s.metrics.ObserveOutcome(ctx, o, out)

			switch out.Kind {
			case processor.KindAccepted:
				rep.Accepted++
				accepted = append(accepted, e.Seq)
			case processor.KindCorrupt:
				rep.Corrupt++
				if err := s.park(ctx, o, e.Seq, mq.ParkCorrupt); err != nil {
					return false, err
				}
			case processor.KindOverweight:
				// Fits an empty meter: wait for the next pass at the head.
				if out.Required.AllLTE(s.maxWeight.Min(meter.Limit())) {
					return true, nil
				}
				rep.Overweight++
				if err := s.park(ctx, o, e.Seq, mq.ParkOverweight); err != nil {
					return false, err
				}
				s.logger.Warn("message permanently overweight",
					logpkg.F("origin", o),
					logpkg.F("seq", e.Seq),
					logpkg.F("required", out.Required.String()),
				)
			}
		}
		if err := flush(); err != nil {
			return false, fmt.Errorf("service: remove accepted from origin %d: %w", o, err)
		}
	}
}

func (s *Servicer) park(ctx context.Context, o origin.ID, seq uint64, reason mq.ParkReason) error {
	if err := s.store.Park(ctx, o, seq, reason); err != nil {
		return fmt.Errorf("service: park origin %d seq %d: %w", o, seq, err)
	}
	return nil
}

// ExecuteOverweight processes one parked overweight message with a fresh
// meter of limit. On success the parked entry is removed and the consumed
// weight returned.
func (s *Servicer) ExecuteOverweight(ctx context.Context, o origin.ID, seq uint64, limit weight.Weight) (weight.Weight, error) {
	e, err := s.store.ParkedEntry(ctx, o, seq, mq.ParkOverweight)
	if errors.Is(err, mq.ErrNoSuchMessage) {
		return weight.Zero, fmt.Errorf("%w: origin %d seq %d", ErrNotParked, o, seq)
	}
	if err != nil {
		return weight.Zero, err
	}
	if e.Damaged {
		return weight.Zero, fmt.Errorf("%w: origin %d seq %d", ErrCorrupt, o, seq)
	}

	meter := weight.NewMeter(limit)
	out := s.proc.ProcessMessage(ctx, e.Message, o, meter)
	s.metrics.ObserveOutcome(ctx, o, out)
	switch out.Kind {
	case processor.KindAccepted:
		if err := s.store.Unpark(ctx, o, seq, mq.ParkOverweight); err != nil {
			return meter.Consumed(), fmt.Errorf("service: unpark origin %d seq %d: %w", o, seq, err)
		}
		s.logger.Info("executed overweight message",
			logpkg.F("origin", o),
			logpkg.F("seq", seq),
			logpkg.F("consumed", meter.Consumed().String()),
		)
		return meter.Consumed(), nil
	case processor.KindCorrupt:
		return weight.Zero, fmt.Errorf("%w: origin %d seq %d", ErrCorrupt, o, seq)
	default:
		return weight.Zero, fmt.Errorf("%w: requires %s, limit %s", ErrStillOverweight, out.Required, limit)
	}
}
