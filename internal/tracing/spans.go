package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span names.
const (
	SpanScanCycle    = "scan.cycle"
	SpanAgentItem    = "agent.item"
	SpanBackendRound = "backend.round"
)

// Attribute keys.
const (
	AttrAgentName   = "agent.name"
	AttrAgentType   = "agent.type"
	AttrItemName    = "item.name"
	AttrItemRunID   = "item.run_id"
	AttrRoundNumber = "round.number"
	AttrRoundResume = "round.resume"
	AttrSessionID   = "session.id"
	AttrTermination = "termination"
	AttrTriggered   = "trigger.fired"
	AttrRounds      = "item.rounds"
)

// Agent returns the attributes identifying an instance.
func Agent(name, typ string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrAgentName, name),
		attribute.String(AttrAgentType, typ),
	}
}

// End finishes span, recording err as the span status when non-nil.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
