// Package telemetry records store, queue and service activity as
// OpenTelemetry instruments. With no MeterProvider configured the global
// provider hands out noop instruments and every hook is a pass-through.
package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/rzbill/pageq/internal/footprint"
	"github.com/rzbill/pageq/internal/origin"
	"github.com/rzbill/pageq/internal/processor"
	"github.com/rzbill/pageq/internal/service"
)

// instrumentationName is the scope name for pageq instruments.
const instrumentationName = "github.com/rzbill/pageq"

// Instruments implements the metrics hooks of the storage wrapper, the queue
// store and the servicer.
//
// Instruments:
//   - pageq.storage.write.duration, pageq.storage.read.duration,
//     pageq.storage.commit.duration (Float64Histogram, seconds)
//   - pageq.storage.bytes (Int64Counter), attribute op
//   - pageq.queue.mutations (Int64Counter), attribute op
//   - pageq.queue.mutation.messages, pageq.queue.mutation.bytes (Int64Counter)
//   - pageq.queue.pages, pageq.queue.ready_pages, pageq.queue.messages
//     (Int64ObservableGauge), attribute origin, last observed footprint
//   - pageq.process.outcomes (Int64Counter), attribute outcome
//   - pageq.process.required_ref_time (Int64Histogram), overweight only
//   - pageq.service.passes (Int64Counter), attribute stopped
//   - pageq.service.consumed_ref_time (Int64Histogram)
type Instruments struct {
	writeDur, readDur, commitDur metric.Float64Histogram
	storageBytes                 metric.Int64Counter

	mutations, mutationMsgs, mutationBytes metric.Int64Counter

	outcomes       metric.Int64Counter
	requiredWeight metric.Int64Histogram
	passes         metric.Int64Counter
	passConsumed   metric.Int64Histogram

	mu         sync.Mutex
	footprints map[origin.ID]footprint.Footprint
}

// Default builds instruments from the global MeterProvider.
func Default() *Instruments {
	return New(otel.Meter(instrumentationName))
}

// New builds instruments from meter. Instrument creation errors fall back to
// the noop instruments the API returns alongside them.
func New(meter metric.Meter) *Instruments {
	in := &Instruments{footprints: make(map[origin.ID]footprint.Footprint)}

	in.writeDur, _ = meter.Float64Histogram("pageq.storage.write.duration",
		metric.WithDescription("Duration of single-key writes"), metric.WithUnit("s"))
	in.readDur, _ = meter.Float64Histogram("pageq.storage.read.duration",
		metric.WithDescription("Duration of point reads"), metric.WithUnit("s"))
	in.commitDur, _ = meter.Float64Histogram("pageq.storage.commit.duration",
		metric.WithDescription("Duration of batch commits"), metric.WithUnit("s"))
	in.storageBytes, _ = meter.Int64Counter("pageq.storage.bytes",
		metric.WithDescription("Bytes moved through the storage wrapper"), metric.WithUnit("By"))

	in.mutations, _ = meter.Int64Counter("pageq.queue.mutations",
		metric.WithDescription("Queue store mutations"), metric.WithUnit("{mutation}"))
	in.mutationMsgs, _ = meter.Int64Counter("pageq.queue.mutation.messages",
		metric.WithDescription("Messages touched by queue mutations"), metric.WithUnit("{message}"))
	in.mutationBytes, _ = meter.Int64Counter("pageq.queue.mutation.bytes",
		metric.WithDescription("Message bytes appended"), metric.WithUnit("By"))

	in.outcomes, _ = meter.Int64Counter("pageq.process.outcomes",
		metric.WithDescription("Processing outcomes"), metric.WithUnit("{message}"))
	in.requiredWeight, _ = meter.Int64Histogram("pageq.process.required_ref_time",
		metric.WithDescription("Ref-time required by overweight messages"))
	in.passes, _ = meter.Int64Counter("pageq.service.passes",
		metric.WithDescription("Service passes run"), metric.WithUnit("{pass}"))
	in.passConsumed, _ = meter.Int64Histogram("pageq.service.consumed_ref_time",
		metric.WithDescription("Ref-time consumed per service pass"))

	_, _ = meter.Int64ObservableGauge("pageq.queue.pages",
		metric.WithDescription("Pages held by each origin's queue"),
		metric.WithInt64Callback(in.observe(func(fp footprint.Footprint) int64 { return int64(fp.Pages) })))
	_, _ = meter.Int64ObservableGauge("pageq.queue.ready_pages",
		metric.WithDescription("Pages ready for service per origin"),
		metric.WithInt64Callback(in.observe(func(fp footprint.Footprint) int64 { return int64(fp.ReadyPages) })))
	_, _ = meter.Int64ObservableGauge("pageq.queue.messages",
		metric.WithDescription("Messages held by each origin's queue"),
		metric.WithInt64Callback(in.observe(func(fp footprint.Footprint) int64 { return int64(fp.Count) })))
	return in
}

func (in *Instruments) observe(value func(footprint.Footprint) int64) metric.Int64Callback {
	return func(_ context.Context, o metric.Int64Observer) error {
		in.mu.Lock()
		defer in.mu.Unlock()
		for id, fp := range in.footprints {
			o.Observe(value(fp), metric.WithAttributes(attribute.Int64("origin", int64(id))))
		}
		return nil
	}
}

// Storage hooks.

func (in *Instruments) ObserveWrite(elapsed time.Duration, bytes int) {
	ctx := context.Background()
	in.writeDur.Record(ctx, elapsed.Seconds())
	in.storageBytes.Add(ctx, int64(bytes), metric.WithAttributes(attribute.String("op", "write")))
}

func (in *Instruments) ObserveRead(elapsed time.Duration, bytes int) {
	ctx := context.Background()
	in.readDur.Record(ctx, elapsed.Seconds())
	in.storageBytes.Add(ctx, int64(bytes), metric.WithAttributes(attribute.String("op", "read")))
}

func (in *Instruments) ObserveBatchCommit(elapsed time.Duration, numOps int, bytes int) {
	ctx := context.Background()
	in.commitDur.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.Int("ops", numOps)))
	in.storageBytes.Add(ctx, int64(bytes), metric.WithAttributes(attribute.String("op", "commit")))
}

// Queue store hooks.

func (in *Instruments) ObserveMutation(ctx context.Context, op string, _ origin.ID, msgs int, bytes int) {
	attrs := metric.WithAttributes(attribute.String("op", op))
	in.mutations.Add(ctx, 1, attrs)
	in.mutationMsgs.Add(ctx, int64(msgs), attrs)
	in.mutationBytes.Add(ctx, int64(bytes), attrs)
}

func (in *Instruments) ObserveFootprint(_ context.Context, o origin.ID, fp footprint.Footprint) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if fp.IsZero() {
		delete(in.footprints, o)
		return
	}
	in.footprints[o] = fp
}

// Service hooks.

func (in *Instruments) ObserveOutcome(ctx context.Context, _ origin.ID, out processor.Outcome) {
	in.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", out.Kind.String())))
	if out.Kind == processor.KindOverweight {
		in.requiredWeight.Record(ctx, clampInt64(out.Required.RefTime))
	}
}

func (in *Instruments) ObservePass(ctx context.Context, r service.Report) {
	in.passes.Add(ctx, 1, metric.WithAttributes(attribute.Bool("stopped", r.Stopped)))
	in.passConsumed.Record(ctx, clampInt64(r.Consumed.RefTime))
}

func clampInt64(v uint64) int64 {
	if v > 1<<63-1 {
		return 1<<63 - 1
	}
	return int64(v)
}
