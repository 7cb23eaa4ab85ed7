package weight

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
)

// Weight is a two-dimensional computation budget: execution time and proof
// size. Both components are non-negative and all arithmetic saturates.
type Weight struct {
	RefTime   uint64 `json:"refTime"`
	ProofSize uint64 `json:"proofSize"`
}

// Zero is the empty weight.
var Zero = Weight{}

// Max is the largest representable weight.
var Max = Weight{RefTime: math.MaxUint64, ProofSize: math.MaxUint64}

// FromParts builds a Weight from its two components.
func FromParts(refTime, proofSize uint64) Weight {
	return Weight{RefTime: refTime, ProofSize: proofSize}
}

// FromAll builds a Weight with both components set to v.
func FromAll(v uint64) Weight {
	return Weight{RefTime: v, ProofSize: v}
}

// IsZero reports whether both components are zero.
func (w Weight) IsZero() bool { return w.RefTime == 0 && w.ProofSize == 0 }

// SaturatingAdd adds component-wise, clamping at math.MaxUint64.
func (w Weight) SaturatingAdd(o Weight) Weight {
	return Weight{RefTime: satAdd(w.RefTime, o.RefTime), ProofSize: satAdd(w.ProofSize, o.ProofSize)}
}

// SaturatingSub subtracts component-wise, clamping at zero.
func (w Weight) SaturatingSub(o Weight) Weight {
	return Weight{RefTime: satSub(w.RefTime, o.RefTime), ProofSize: satSub(w.ProofSize, o.ProofSize)}
}

// CheckedAdd adds component-wise and reports false if either component overflows.
func (w Weight) CheckedAdd(o Weight) (Weight, bool) {
	rt, c1 := bits.Add64(w.RefTime, o.RefTime, 0)
	ps, c2 := bits.Add64(w.ProofSize, o.ProofSize, 0)
	if c1 != 0 || c2 != 0 {
		return Weight{}, false
	}
	return Weight{RefTime: rt, ProofSize: ps}, true
}

// AllLTE reports whether every component of w is <= the matching component of o.
func (w Weight) AllLTE(o Weight) bool {
	return w.RefTime <= o.RefTime && w.ProofSize <= o.ProofSize
}

// Min returns the component-wise minimum of w and o.
func (w Weight) Min(o Weight) Weight {
	return Weight{RefTime: min(w.RefTime, o.RefTime), ProofSize: min(w.ProofSize, o.ProofSize)}
}

// AnyGT reports whether any component of w is > the matching component of o.
func (w Weight) AnyGT(o Weight) bool {
	return w.RefTime > o.RefTime || w.ProofSize > o.ProofSize
}

func (w Weight) String() string {
	return fmt.Sprintf("{ref_time: %d, proof_size: %d}", w.RefTime, w.ProofSize)
}

func satAdd(a, b uint64) uint64 {
	s, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return s
}

func satSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// ErrLimitExceeded is returned by Meter.TryConsume when the debit would
// exceed the meter's limit in any dimension.
var ErrLimitExceeded = errors.New("weight: limit exceeded")

// Meter tracks consumption against a fixed limit. The zero Meter has a zero
// limit and accepts only zero-weight debits.
//
// Invariant: Consumed().AllLTE(Limit()) holds after every call.
type Meter struct {
	limit    Weight
	consumed Weight
}

// NewMeter returns a meter with the given limit and nothing consumed.
func NewMeter(limit Weight) *Meter {
	return &Meter{limit: limit}
}

// Limit returns the meter's fixed limit.
func (m *Meter) Limit() Weight { return m.limit }

// Consumed returns the weight debited so far.
func (m *Meter) Consumed() Weight { return m.consumed }

// Remaining returns the weight still available.
func (m *Meter) Remaining() Weight { return m.limit.SaturatingSub(m.consumed) }

// CanConsume reports whether w could be debited without exceeding the limit.
func (m *Meter) CanConsume(w Weight) bool {
	next, ok := m.consumed.CheckedAdd(w)
	return ok && next.AllLTE(m.limit)
}

// TryConsume debits w if it fits. It is all-or-nothing: on failure the meter
// is unchanged and ErrLimitExceeded is returned.
func (m *Meter) TryConsume(w Weight) error {
	next, ok := m.consumed.CheckedAdd(w)
	if !ok || !next.AllLTE(m.limit) {
		return ErrLimitExceeded
	}
	m.consumed = next
	return nil
}
