package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rzbill/pageq/internal/origin"
	"github.com/rzbill/pageq/internal/processor"
	"github.com/rzbill/pageq/internal/weight"
)

// Tracing wraps next so that every ProcessMessage call runs in a span, using
// the global TracerProvider.
func Tracing(next processor.Processor) processor.Processor {
	return TracingWithTracer(next, otel.Tracer(instrumentationName))
}

// TracingWithTracer wraps next using the provided tracer.
//
// Span attributes: pageq.origin, pageq.message.size, pageq.outcome and, for
// overweight outcomes, pageq.required.ref_time / pageq.required.proof_size.
// Corrupt messages set the span status to codes.Error.
func TracingWithTracer(next processor.Processor, tracer trace.Tracer) processor.Processor {
	return processor.Func(func(ctx context.Context, msg []byte, o origin.ID, meter *weight.Meter) processor.Outcome {
		ctx, span := tracer.Start(ctx, "pageq.process_message",
			trace.WithAttributes(
				attribute.Int64("pageq.origin", int64(o)),
				attribute.Int("pageq.message.size", len(msg)),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		out := next.ProcessMessage(ctx, msg, o, meter)
		span.SetAttributes(attribute.String("pageq.outcome", out.Kind.String()))
		switch out.Kind {
		case processor.KindAccepted:
			span.SetStatus(codes.Ok, "")
		case processor.KindCorrupt:
			span.SetStatus(codes.Error, "corrupt message")
		case processor.KindOverweight:
			span.SetAttributes(
				attribute.Int64("pageq.required.ref_time", clampInt64(out.Required.RefTime)),
				attribute.Int64("pageq.required.proof_size", clampInt64(out.Required.ProofSize)),
			)
		}
		return out
	})
}
