package conversation

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/BaSui01/agentroom/internal/telemetry"
)

// instruments 轮次级别的 OpenTelemetry 埋点.
// 未安装全局 Provider 时为 no-op。
type instruments struct {
	tracer       trace.Tracer
	turnTotal    metric.Int64Counter
	turnDuration metric.Float64Histogram
	activeRuns   metric.Int64UpDownCounter
}

func newInstruments() *instruments {
	meter := telemetry.Meter(telemetry.ScopeConversation)
	in := &instruments{tracer: telemetry.Tracer(telemetry.ScopeConversation)}

	// 创建失败时 otel 返回 no-op 实现，错误可忽略
	in.turnTotal, _ = meter.Int64Counter("agentroom.turns",
		metric.WithDescription("Total number of conversation turns"),
		metric.WithUnit("{turn}"))
	in.turnDuration, _ = meter.Float64Histogram("agentroom.turn.duration",
		metric.WithDescription("Turn duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.25, 0.5, 1, 2.5, 5, 10, 30, 60))
	in.activeRuns, _ = meter.Int64UpDownCounter("agentroom.orchestrators.active",
		metric.WithDescription("Number of running room orchestrators"),
		metric.WithUnit("{orchestrator}"))
	return in
}

func (in *instruments) startTurn(ctx context.Context, roomID uint, sessionID int, participant, provider string) (context.Context, trace.Span) {
	return in.tracer.Start(ctx, "conversation.turn",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.Int64("room.id", int64(roomID)),
			attribute.Int("room.session_id", sessionID),
			attribute.String("participant.name", participant),
			attribute.String("llm.provider", provider),
		))
}

func (in *instruments) endTurn(ctx context.Context, span trace.Span, provider, outcome string, d time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("outcome", outcome),
	)
	in.turnTotal.Add(ctx, 1, attrs)
	in.turnDuration.Record(ctx, d.Seconds(), attrs)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(attribute.String("turn.outcome", outcome))
	span.End()
}
