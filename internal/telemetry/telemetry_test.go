package telemetry

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/rzbill/pageq/internal/footprint"
	"github.com/rzbill/pageq/internal/processor"
	"github.com/rzbill/pageq/internal/service"
	"github.com/rzbill/pageq/internal/weight"
)

func setupTestMeter() (*sdkmetric.ManualReader, *Instruments) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return reader, New(mp.Meter("test"))
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func sumByAttr(t *testing.T, m *metricdata.Metrics, key, value string) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s: expected Sum[int64], got %T", m.Name, m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.Emit() == value {
			total += dp.Value
		}
	}
	return total
}

func TestQueueMutationsAndFootprintGauge(t *testing.T) {
	reader, in := setupTestMeter()
	ctx := context.Background()
	in.ObserveMutation(ctx, "enqueue", 1, 3, 60)
	in.ObserveMutation(ctx, "enqueue", 2, 1, 5)
	in.ObserveFootprint(ctx, 1, footprint.Footprint{Count: 3, Size: 60, Pages: 3, ReadyPages: 3})
	in.ObserveFootprint(ctx, 2, footprint.Footprint{Count: 1, Size: 5, Pages: 1})
	in.ObserveFootprint(ctx, 2, footprint.Footprint{})

	rm := collectMetrics(t, reader)
	m := findMetric(rm, "pageq.queue.mutations")
	if m == nil || sumByAttr(t, m, "op", "enqueue") != 2 {
		t.Fatalf("mutations not recorded: %+v", m)
	}
	if m := findMetric(rm, "pageq.queue.mutation.bytes"); m == nil || sumByAttr(t, m, "op", "enqueue") != 65 {
		t.Fatalf("bytes not recorded")
	}
	pages := findMetric(rm, "pageq.queue.pages")
	if pages == nil {
		t.Fatalf("pages gauge missing")
	}
	g, ok := pages.Data.(metricdata.Gauge[int64])
	if !ok || len(g.DataPoints) != 1 || g.DataPoints[0].Value != 3 {
		t.Fatalf("swept origin must drop from the gauge: %+v", pages.Data)
	}
}

func TestServiceOutcomes(t *testing.T) {
	reader, in := setupTestMeter()
	ctx := context.Background()
	in.ObserveOutcome(ctx, 1, processor.Accepted())
	in.ObserveOutcome(ctx, 1, processor.Accepted())
	in.ObserveOutcome(ctx, 1, processor.Overweight(weight.FromAll(100)))
	in.ObservePass(ctx, service.Report{Stopped: true, Consumed: weight.FromAll(40)})

	rm := collectMetrics(t, reader)
	m := findMetric(rm, "pageq.process.outcomes")
	if m == nil || sumByAttr(t, m, "outcome", "accepted") != 2 || sumByAttr(t, m, "outcome", "overweight") != 1 {
		t.Fatalf("outcomes = %+v", m)
	}
	h := findMetric(rm, "pageq.process.required_ref_time")
	hist, ok := h.Data.(metricdata.Histogram[int64])
	if !ok || len(hist.DataPoints) != 1 || hist.DataPoints[0].Sum != 100 {
		t.Fatalf("required weight histogram = %+v", h.Data)
	}
	if m := findMetric(rm, "pageq.service.passes"); m == nil {
		t.Fatalf("passes missing")
	}
}

func TestStorageHooks(t *testing.T) {
	reader, in := setupTestMeter()
	in.ObserveWrite(time.Millisecond, 10)
	in.ObserveRead(time.Millisecond, 4)
	in.ObserveBatchCommit(2*time.Millisecond, 3, 20)

	rm := collectMetrics(t, reader)
	m := findMetric(rm, "pageq.storage.bytes")
	if m == nil || sumByAttr(t, m, "op", "write") != 10 || sumByAttr(t, m, "op", "commit") != 20 {
		t.Fatalf("storage bytes = %+v", m)
	}
	if findMetric(rm, "pageq.storage.commit.duration") == nil {
		t.Fatalf("commit duration missing")
	}
}

func TestTracingProcessor(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	p := TracingWithTracer(processor.WeightMarker{}, tp.Tracer("test"))
	meter := weight.NewMeter(weight.FromAll(10))
	ctx := context.Background()

	p.ProcessMessage(ctx, processor.EncodeMarker(5, nil), 1, meter)
	p.ProcessMessage(ctx, []byte{1}, 1, meter)
	p.ProcessMessage(ctx, processor.EncodeMarker(50, nil), 1, meter)

	spans := sr.Ended()
	if len(spans) != 3 {
		t.Fatalf("spans = %d", len(spans))
	}
	if spans[0].Name() != "pageq.process_message" || spans[0].Status().Code != codes.Ok {
		t.Fatalf("accepted span = %s %v", spans[0].Name(), spans[0].Status())
	}
	if spans[1].Status().Code != codes.Error {
		t.Fatalf("corrupt span status = %v", spans[1].Status())
	}
	var required int64
	for _, kv := range spans[2].Attributes() {
		if kv.Key == "pageq.required.ref_time" {
			required = kv.Value.AsInt64()
		}
	}
	if required != 50 {
		t.Fatalf("overweight span missing required weight: %v", spans[2].Attributes())
	}
	if meter.Consumed() != weight.FromAll(5) {
		t.Fatalf("meter = %s", meter.Consumed())
	}
}
