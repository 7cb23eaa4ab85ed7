package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rzbill/pageq/internal/mq"
	"github.com/rzbill/pageq/internal/origin"
	"github.com/rzbill/pageq/internal/processor"
	"github.com/rzbill/pageq/internal/scheduler"
	pebblestore "github.com/rzbill/pageq/internal/storage/pebble"
	"github.com/rzbill/pageq/internal/weight"
)

type fixture struct {
	store *mq.Store
	ring  *scheduler.Ring
	rec   *processor.MemoryRecorder
	svc   *Servicer
}

func newFixture(t *testing.T, maxWeight weight.Weight) *fixture {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	ring := scheduler.NewRing(scheduler.Filter{}, nil)
	store, err := mq.Open(db, mq.Options{Notifier: ring})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	rec := &processor.MemoryRecorder{}
	svc, err := New(Options{
		Store:            store,
		Ring:             ring,
		Processor:        processor.WeightMarker{Recorder: rec},
		MaxMessageWeight: maxWeight,
		PeekBatch:        2,
	})
	if err != nil {
		t.Fatalf("new servicer: %v", err)
	}
	return &fixture{store: store, ring: ring, rec: rec, svc: svc}
}

func (f *fixture) enqueue(t *testing.T, o origin.ID, bodies ...[]byte) {
	t.Helper()
	msgs := make([]mq.Message, len(bodies))
	for i, b := range bodies {
		m, err := f.store.Bound(b)
		if err != nil {
			t.Fatalf("bound: %v", err)
		}
		msgs[i] = m
	}
	if err := f.store.EnqueueMessages(context.Background(), o, msgs); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
}

func w(n uint32) []byte { return processor.EncodeMarker(n, []byte{byte(n)}) }

func TestServiceStopsWhenBudgetRunsOut(t *testing.T) {
	f := newFixture(t, weight.FromAll(500))
	ctx := context.Background()
	f.enqueue(t, 1, w(10), w(10), w(10))
	f.enqueue(t, 2, w(5))

	rep, err := f.svc.ServiceQueues(ctx, weight.NewMeter(weight.FromAll(25)))
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	if rep.Accepted != 2 || !rep.Stopped || rep.StoppedAt != 1 || rep.Consumed != weight.FromAll(20) {
		t.Fatalf("report = %+v", rep)
	}
	if fp, _ := f.store.Footprint(ctx, 1); fp.Count != 1 {
		t.Fatalf("overweight message must stay queued: %+v", fp)
	}
	if fp, _ := f.store.Footprint(ctx, 2); fp.Count != 1 {
		t.Fatalf("origin 2 must be untouched: %+v", fp)
	}

	rep, err = f.svc.ServiceQueues(ctx, weight.NewMeter(weight.FromAll(100)))
	if err != nil {
		t.Fatalf("service 2: %v", err)
	}
	if rep.Accepted != 2 || rep.Stopped || rep.Origins != 2 {
		t.Fatalf("report 2 = %+v", rep)
	}
	if f.ring.Len() != 0 {
		t.Fatalf("drained origins must leave the ring: %v", f.ring.Ready())
	}
	got := f.rec.Processed()
	if len(got) != 4 || got[2].Origin != 1 || got[3].Origin != 2 {
		t.Fatalf("processed order = %+v", got)
	}
}

func TestServiceParksCorruptAndPermanentlyOverweight(t *testing.T) {
	f := newFixture(t, weight.FromAll(500))
	ctx := context.Background()
	f.enqueue(t, 3, []byte{1, 2}, w(1000), w(3))

	rep, err := f.svc.ServiceQueues(ctx, weight.NewMeter(weight.FromAll(500)))
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	if rep.Corrupt != 1 || rep.Overweight != 1 || rep.Accepted != 1 || rep.Stopped {
		t.Fatalf("report = %+v", rep)
	}
	if fp, _ := f.store.Footprint(ctx, 3); !fp.IsZero() {
		t.Fatalf("queue should be empty: %+v", fp)
	}
	corrupt, _ := f.store.Parked(ctx, 3, mq.ParkCorrupt)
	over, _ := f.store.Parked(ctx, 3, mq.ParkOverweight)
	if len(corrupt) != 1 || corrupt[0].Seq != 1 || len(over) != 1 || over[0].Seq != 2 {
		t.Fatalf("parked corrupt=%+v overweight=%+v", corrupt, over)
	}

	if _, err := f.svc.ExecuteOverweight(ctx, 3, 2, weight.FromAll(999)); !errors.Is(err, ErrStillOverweight) {
		t.Fatalf("want ErrStillOverweight, got %v", err)
	}
	used, err := f.svc.ExecuteOverweight(ctx, 3, 2, weight.FromAll(1000))
	if err != nil || used != weight.FromAll(1000) {
		t.Fatalf("execute: %s %v", used, err)
	}
	if _, err := f.svc.ExecuteOverweight(ctx, 3, 2, weight.FromAll(1000)); !errors.Is(err, ErrNotParked) {
		t.Fatalf("want ErrNotParked, got %v", err)
	}
	if _, err := f.svc.ExecuteOverweight(ctx, 3, 1, weight.FromAll(1000)); !errors.Is(err, ErrNotParked) {
		t.Fatalf("corrupt entry is not executable: %v", err)
	}
}

func TestMessageAboveMeterLimitDoesNotBlockOtherOrigins(t *testing.T) {
	f := newFixture(t, weight.FromAll(1000))
	ctx := context.Background()
	f.enqueue(t, 1, w(700))
	f.enqueue(t, 2, w(10))

	for pass := 0; pass < 2; pass++ {
		rep, err := f.svc.ServiceQueues(ctx, weight.NewMeter(weight.FromAll(500)))
		if err != nil {
			t.Fatalf("pass %d: %v", pass, err)
		}
		if rep.Stopped {
			t.Fatalf("pass %d stopped on a message no pass can cover: %+v", pass, rep)
		}
	}
	if fp, _ := f.store.Footprint(ctx, 2); !fp.IsZero() {
		t.Fatalf("origin 2 starved: %s", fp)
	}
	over, _ := f.store.Parked(ctx, 1, mq.ParkOverweight)
	if len(over) != 1 {
		t.Fatalf("heavy message should be parked, got %+v", over)
	}
	if used, err := f.svc.ExecuteOverweight(ctx, 1, over[0].Seq, weight.FromAll(700)); err != nil || used != weight.FromAll(700) {
		t.Fatalf("execute: %s %v", used, err)
	}
}

func TestZeroMaxWeightFallsBackToMeterLimit(t *testing.T) {
	f := newFixture(t, weight.Zero)
	ctx := context.Background()
	f.enqueue(t, 1, w(60), w(5))

	rep, err := f.svc.ServiceQueues(ctx, weight.NewMeter(weight.FromAll(50)))
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	if rep.Overweight != 1 || rep.Accepted != 1 || rep.Stopped {
		t.Fatalf("report = %+v", rep)
	}
}

func TestServiceSkipsSuspendedOrigins(t *testing.T) {
	f := newFixture(t, weight.Zero)
	ctx := context.Background()
	f.enqueue(t, 1, w(1))
	f.enqueue(t, 2, w(1))
	if err := f.store.Suspend(ctx, 1); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	rep, err := f.svc.ServiceQueues(ctx, weight.NewMeter(weight.FromAll(10)))
	if err != nil || rep.Accepted != 1 || rep.Origins != 1 {
		t.Fatalf("report = %+v, %v", rep, err)
	}
	if fp, _ := f.store.Footprint(ctx, 1); fp.Count != 1 {
		t.Fatalf("suspended origin was serviced: %+v", fp)
	}
	_ = f.store.Resume(ctx, 1)
	if !f.ring.Contains(1) {
		t.Fatalf("resumed origin must rejoin the ring")
	}
}

func TestServiceHonoursCancellation(t *testing.T) {
	f := newFixture(t, weight.Zero)
	f.enqueue(t, 1, w(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.svc.ServiceQueues(ctx, weight.NewMeter(weight.FromAll(10))); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatalf("expected error")
	}
}
