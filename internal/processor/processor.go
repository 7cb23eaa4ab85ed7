// Package processor turns queued messages into work under a weight budget.
package processor

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/rzbill/pageq/internal/origin"
	"github.com/rzbill/pageq/internal/weight"
	logpkg "github.com/rzbill/pageq/pkg/log"
)

// Kind classifies a processing attempt.
type Kind int

const (
	// KindAccepted means the message was processed and may be removed.
	KindAccepted Kind = iota
	// KindCorrupt means the message can never be processed.
	KindCorrupt
	// KindOverweight means the remaining budget could not cover the message.
	KindOverweight
)

func (k Kind) String() string {
	switch k {
	case KindAccepted:
		return "accepted"
	case KindCorrupt:
		return "corrupt"
	case KindOverweight:
		return "overweight"
	default:
		return "unknown"
	}
}

// Outcome is the result of one ProcessMessage call. Required is only set for
// overweight outcomes.
type Outcome struct {
	Kind     Kind
	Required weight.Weight
}

// Accepted is the success outcome.
func Accepted() Outcome { return Outcome{Kind: KindAccepted} }

// Corrupt is the permanent-failure outcome.
func Corrupt() Outcome { return Outcome{Kind: KindCorrupt} }

// Overweight reports the weight the message would have needed.
func Overweight(required weight.Weight) Outcome {
	return Outcome{Kind: KindOverweight, Required: required}
}

func (o Outcome) String() string {
	if o.Kind == KindOverweight {
		return fmt.Sprintf("overweight(%s)", o.Required)
	}
	return o.Kind.String()
}

// Processor handles one message, charging its cost to meter. Implementations
// must leave meter untouched unless they return Accepted.
type Processor interface {
	ProcessMessage(ctx context.Context, msg []byte, o origin.ID, meter *weight.Meter) Outcome
}

// Func adapts a function to Processor.
type Func func(ctx context.Context, msg []byte, o origin.ID, meter *weight.Meter) Outcome

func (f Func) ProcessMessage(ctx context.Context, msg []byte, o origin.ID, meter *weight.Meter) Outcome {
	return f(ctx, msg, o, meter)
}

// MarkerLen is the size of the weight marker at the head of a message.
const MarkerLen = 4

// WeightMarker reads the message's required weight from its first four bytes
// (little-endian uint32, applied to both weight components) and records every
// accepted message.
type WeightMarker struct {
	Recorder Recorder
	Logger   logpkg.Logger
}

// RequiredWeight decodes the weight marker. ok is false for messages shorter
// than MarkerLen.
func RequiredWeight(msg []byte) (weight.Weight, bool) {
	if len(msg) < MarkerLen {
		return weight.Zero, false
	}
	w := uint64(binary.LittleEndian.Uint32(msg[:MarkerLen]))
	return weight.FromParts(w, w), true
}

// EncodeMarker returns a message whose marker requires w on both components,
// followed by body.
func EncodeMarker(w uint32, body []byte) []byte {
	out := binary.LittleEndian.AppendUint32(make([]byte, 0, MarkerLen+len(body)), w)
	return append(out, body...)
}

func (p WeightMarker) ProcessMessage(ctx context.Context, msg []byte, o origin.ID, meter *weight.Meter) Outcome {
	required, ok := RequiredWeight(msg)
	if !ok {
		return Corrupt()
	}
	if err := meter.TryConsume(required); err != nil {
		return Overweight(required)
	}
	if p.Recorder != nil {
		if err := p.Recorder.Record(ctx, o, msg); err != nil && p.Logger != nil {
			// The message was processed; a lost record does not undo that.
			p.Logger.WithContext(ctx).Warn("record accepted message failed", logpkg.F("origin", o), logpkg.Err(err))
		}
	}
	return Accepted()
}

// Recorder keeps accepted messages per origin.
type Recorder interface {
	Record(ctx context.Context, o origin.ID, msg []byte) error
}

// Processed is one recorded message.
type Processed struct {
	Origin  origin.ID
	Message []byte
}

// MemoryRecorder keeps records in memory, in acceptance order.
type MemoryRecorder struct {
	mu   sync.Mutex
	recs []Processed
}

func (r *MemoryRecorder) Record(_ context.Context, o origin.ID, msg []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, Processed{Origin: o, Message: append([]byte(nil), msg...)})
	return nil
}

// Processed returns a copy of everything recorded so far.
func (r *MemoryRecorder) Processed() []Processed {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Processed(nil), r.recs...)
}

// Reset drops every record.
func (r *MemoryRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = nil
}
