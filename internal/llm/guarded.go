package llm

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/crestpointmarketing/eventra-app-sub000/internal/apperr"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/observability/metrics"
	"github.com/crestpointmarketing/eventra-app-sub000/pkg/logging"
)

var llmTracer = otel.Tracer("eventra.internal.llm")

const DefaultTimeout = 8 * time.Second

// Purposes label latency metrics and spans.
const (
	PurposeScoring = "scoring"
	PurposePolish  = "polish"
)

// Guarded bounds every call with a timeout and reports failures as
// apperr.ErrExternalCapability so callers can decide whether to fall back.
type Guarded struct {
	client  Client
	timeout time.Duration
	metrics *metrics.EngineMetrics
	logger  *logging.Logger
}

func NewGuarded(client Client, timeout time.Duration, m *metrics.EngineMetrics, logger *logging.Logger) *Guarded {
	if client == nil {
		panic("llm: client cannot be nil")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Guarded{client: client, timeout: timeout, metrics: m, logger: logger}
}

// Call runs one completion for purpose.
func (g *Guarded) Call(ctx context.Context, purpose string, req Request) (Response, error) {
	ctx, span := llmTracer.Start(ctx, "llm."+purpose)
	defer span.End()

	callCtx, cancel := context.WithTimeout(WithPurpose(ctx, purpose), g.timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.client.Complete(callCtx, req)
	latency := time.Since(start)
	status := "ok"
	if err != nil {
		status = "error"
		if callCtx.Err() == context.DeadlineExceeded {
			status = "timeout"
		}
	}
	g.metrics.ObserveLLMLatency(purpose, status, latency.Seconds())
	if span.IsRecording() {
		span.SetAttributes(
			attribute.String("eventra.llm.purpose", purpose),
			attribute.String("eventra.llm.status", status),
			attribute.Int64("eventra.llm.latency_ms", latency.Milliseconds()),
			attribute.Int("eventra.llm.total_tokens", int(resp.Usage.TotalTokens)),
		)
	}
	if err != nil {
		span.RecordError(err)
		g.logger.Warn("llm call failed", "purpose", purpose, "status", status, "latency_ms", latency.Milliseconds(), "error", err)
		return Response{}, apperr.External("llm: "+purpose, err)
	}
	g.logger.Debug("llm call finished", "purpose", purpose, "latency_ms", latency.Milliseconds(),
		"input_tokens", resp.Usage.InputTokens, "output_tokens", resp.Usage.OutputTokens)
	return resp, nil
}
