package application

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"voice-assist/internal/domain"
	"voice-assist/internal/observe"
)

// InstrumentedGenerator records latency and outcome of every call to the
// wrapped generator and traces it as a span.
type InstrumentedGenerator struct {
	next     AnswerGenerator
	provider string
	metrics  *observe.Metrics
}

func NewInstrumentedGenerator(next AnswerGenerator, provider string, metrics *observe.Metrics) *InstrumentedGenerator {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &InstrumentedGenerator{next: next, provider: provider, metrics: metrics}
}

func (g *InstrumentedGenerator) Generate(ctx context.Context, userText string, history []domain.Message) (string, error) {
	ctx, span := observe.StartSpan(ctx, "generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", g.provider),
		attribute.Int("llm.history_messages", len(history)),
	)

	start := time.Now()
	reply, err := g.next.Generate(ctx, userText, history)
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	g.metrics.RecordGeneration(ctx, g.provider, status, time.Since(start).Seconds())
	return reply, err
}
