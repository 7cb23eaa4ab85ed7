package weight

import (
	"errors"
	"math"
	"testing"
)

func TestSaturatingArithmetic(t *testing.T) {
	a := FromParts(math.MaxUint64-1, 10)
	sum := a.SaturatingAdd(FromParts(5, 5))
	if sum.RefTime != math.MaxUint64 || sum.ProofSize != 15 {
		t.Fatalf("saturating add: %v", sum)
	}
	diff := FromParts(3, 10).SaturatingSub(FromParts(5, 4))
	if diff != FromParts(0, 6) {
		t.Fatalf("saturating sub: %v", diff)
	}
	if _, ok := a.CheckedAdd(FromParts(2, 0)); ok {
		t.Fatalf("expected overflow")
	}
}

func TestComparisons(t *testing.T) {
	if !FromParts(1, 2).AllLTE(FromParts(1, 2)) {
		t.Fatalf("equal weights must be AllLTE")
	}
	if FromParts(1, 3).AllLTE(FromParts(2, 2)) {
		t.Fatalf("one larger component breaks AllLTE")
	}
	if !FromParts(1, 3).AnyGT(FromParts(2, 2)) {
		t.Fatalf("expected AnyGT")
	}
	if got := FromParts(1, 9).Min(FromParts(4, 2)); got != FromParts(1, 2) {
		t.Fatalf("Min = %s", got)
	}
	if got := Max.Min(FromAll(7)); got != FromAll(7) {
		t.Fatalf("Min with Max = %s", got)
	}
}

func TestMeterTryConsume(t *testing.T) {
	m := NewMeter(FromAll(50))
	if err := m.TryConsume(FromAll(30)); err != nil {
		t.Fatalf("consume 30: %v", err)
	}
	if err := m.TryConsume(FromAll(30)); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("want ErrLimitExceeded, got %v", err)
	}
	if m.Consumed() != FromAll(30) {
		t.Fatalf("failed debit must leave meter unchanged: %v", m.Consumed())
	}
	if m.Remaining() != FromAll(20) {
		t.Fatalf("remaining: %v", m.Remaining())
	}
	if !m.CanConsume(FromAll(20)) || m.CanConsume(FromParts(21, 0)) {
		t.Fatalf("CanConsume disagrees with remaining budget")
	}
}

func TestMeterRejectsSingleDimensionOverflow(t *testing.T) {
	m := NewMeter(FromParts(100, 10))
	if err := m.TryConsume(FromParts(1, 11)); err == nil {
		t.Fatalf("proof size over limit must be rejected")
	}
	if !m.Consumed().IsZero() {
		t.Fatalf("meter changed on rejection")
	}
}

func TestMeterNeverExceedsLimit(t *testing.T) {
	m := NewMeter(FromParts(1000, 700))
	for i := uint64(0); i < 200; i++ {
		_ = m.TryConsume(FromParts(i*7%97, i*13%89))
		if !m.Consumed().AllLTE(m.Limit()) {
			t.Fatalf("consumed %v exceeds limit %v", m.Consumed(), m.Limit())
		}
	}
}
