package runtime

import (
	"context"
	"testing"
	"time"

	cfgpkg "github.com/rzbill/pageq/internal/config"
	"github.com/rzbill/pageq/internal/footprint"
	"github.com/rzbill/pageq/internal/notify"
	"github.com/rzbill/pageq/internal/origin"
	"github.com/rzbill/pageq/internal/processor"
	logpkg "github.com/rzbill/pageq/pkg/log"
)

func testConfig(t *testing.T) cfgpkg.Config {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.Fsync = "never"
	return cfg
}

func quietLogger() logpkg.Logger {
	return logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{}))
}

func openRuntime(t *testing.T, cfg cfgpkg.Config, n notify.Notifier) *Runtime {
	t.Helper()
	rt, err := Open(Options{Config: cfg, Logger: quietLogger(), Notifier: n})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	return rt
}

func enqueue(t *testing.T, rt *Runtime, o origin.ID, w uint32, body string) {
	t.Helper()
	msg, err := rt.Store().Bound(processor.EncodeMarker(w, []byte(body)))
	if err != nil {
		t.Fatalf("bound: %v", err)
	}
	if err := rt.Store().EnqueueMessage(context.Background(), o, msg); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
}

func TestOpenCloseHealth(t *testing.T) {
	rt := openRuntime(t, testConfig(t), nil)
	if err := rt.CheckHealth(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := rt.CheckHealth(context.Background()); err == nil {
		t.Fatalf("health after close should fail")
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.PagePolicy = "sparse"
	if _, err := Open(Options{Config: cfg, Logger: quietLogger()}); err == nil {
		t.Fatalf("expected policy error")
	}
	cfg = testConfig(t)
	cfg.ScheduleFilter = "pages >"
	if _, err := Open(Options{Config: cfg, Logger: quietLogger()}); err == nil {
		t.Fatalf("expected filter compile error")
	}
}

func TestServiceOnceRecordsAccepted(t *testing.T) {
	var seen []origin.ID
	rt := openRuntime(t, testConfig(t), notify.Func(func(_ context.Context, o origin.ID, _ footprint.Footprint) {
		seen = append(seen, o)
	}))
	defer rt.Close()
	ctx := context.Background()

	enqueue(t, rt, 1, 100, "a")
	enqueue(t, rt, 2, 100, "b")
	if !rt.Ring().Contains(1) || !rt.Ring().Contains(2) {
		t.Fatalf("ring should hold both origins: %v", rt.Ring().Ready())
	}
	rep, err := rt.ServiceOnce(ctx)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	if rep.Accepted != 2 || rep.Stopped {
		t.Fatalf("report = %+v", rep)
	}
	if rt.Ring().Len() != 0 {
		t.Fatalf("drained origins should leave the ring")
	}
	items, err := rt.AuditLog().Read(ctx, 1, 1, 10)
	if err != nil || len(items) != 1 || string(items[0].Message[processor.MarkerLen:]) != "a" {
		t.Fatalf("audit = %+v, %v", items, err)
	}
	if len(seen) < 4 {
		t.Fatalf("extra notifier saw %v", seen)
	}
}

func TestServiceWeightStopsPass(t *testing.T) {
	cfg := testConfig(t)
	cfg.ServiceWeight = cfgpkg.WeightConfig{RefTime: 150, ProofSize: 150}
	rt := openRuntime(t, cfg, nil)
	defer rt.Close()

	enqueue(t, rt, 1, 100, "a")
	enqueue(t, rt, 1, 100, "b")
	rep, err := rt.ServiceOnce(context.Background())
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	if rep.Accepted != 1 || !rep.Stopped || rep.StoppedAt != 1 {
		t.Fatalf("report = %+v", rep)
	}
	fp, err := rt.Store().Footprint(context.Background(), 1)
	if err != nil || fp.Count != 1 {
		t.Fatalf("footprint = %s, %v", fp, err)
	}
}

func TestReopenRestoresRing(t *testing.T) {
	cfg := testConfig(t)
	rt := openRuntime(t, cfg, nil)
	enqueue(t, rt, 7, 10, "x")
	enqueue(t, rt, 9, 10, "y")
	if err := rt.Store().Suspend(context.Background(), 9); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	rt = openRuntime(t, cfg, nil)
	defer rt.Close()
	if !rt.Ring().Contains(7) {
		t.Fatalf("origin 7 should be ready after reopen")
	}
	if rt.Ring().Contains(9) {
		t.Fatalf("suspended origin must stay out of the ring")
	}
}

func TestScheduleFilter(t *testing.T) {
	cfg := testConfig(t)
	cfg.ScheduleFilter = "origin != 3"
	rt := openRuntime(t, cfg, nil)
	defer rt.Close()
	enqueue(t, rt, 3, 10, "x")
	enqueue(t, rt, 4, 10, "y")
	if rt.Ring().Contains(3) || !rt.Ring().Contains(4) {
		t.Fatalf("ring = %v", rt.Ring().Ready())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	rt := openRuntime(t, testConfig(t), nil)
	defer rt.Close()
	enqueue(t, rt, 1, 10, "a")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx, 5*time.Millisecond) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		last, err := rt.AuditLog().LastSeq(1)
		if err != nil {
			t.Fatalf("last seq: %v", err)
		}
		if last == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("message never serviced")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := rt.Run(context.Background(), 0); err == nil {
		t.Fatalf("zero interval should be rejected")
	}
}
