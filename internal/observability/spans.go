package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/signalsfoundry/nr-mac-scheduler/internal/sched"

// StartSlotSpan opens the span covering one cell's slot decision.
func StartSlotSpan(ctx context.Context, slot string, cc int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "sched/slot",
		trace.WithAttributes(
			attribute.String("nr.slot", slot),
			attribute.Int("nr.cc", cc),
		))
}

// SlotSummary is attached to the slot span once the decision is complete.
type SlotSummary struct {
	PDCCHDL, PDCCHUL int
	PDSCH, PUSCH     int
	RAR, PUCCH       int
}

// EndSlotSpan records the summary and ends the span.
func EndSlotSpan(span trace.Span, sum SlotSummary) {
	span.SetAttributes(
		attribute.Int("nr.pdcch_dl", sum.PDCCHDL),
		attribute.Int("nr.pdcch_ul", sum.PDCCHUL),
		attribute.Int("nr.pdsch", sum.PDSCH),
		attribute.Int("nr.pusch", sum.PUSCH),
		attribute.Int("nr.rar", sum.RAR),
		attribute.Int("nr.pucch", sum.PUCCH),
	)
	span.End()
}
