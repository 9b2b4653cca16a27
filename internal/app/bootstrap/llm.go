package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/crestpointmarketing/eventra-app-sub000/internal/config"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/llm"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/observability/metrics"
	"github.com/crestpointmarketing/eventra-app-sub000/pkg/logging"
)

// BuildLLM wires the language-model capability: Bedrock when a model id is
// set, Gemini when an API key is set, and Bedrock-then-Gemini when both are.
// It returns nil when neither provider is configured. The returned close
// func is never nil.
func BuildLLM(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, m *metrics.EngineMetrics, logger *logging.Logger) (*llm.Guarded, func(), error) {
	noop := func() {}
	if cfg == nil {
		return nil, noop, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var primary, secondary llm.Provider
	closeFn := noop

	if model := strings.TrimSpace(cfg.BedrockModelID); model != "" {
		if awsCfg == nil {
			logger.Warn("bedrock model configured without aws config; skipping bedrock")
		} else {
			primary = llm.Provider{Name: "bedrock", Client: llm.NewBedrockClient(bedrockruntime.NewFromConfig(*awsCfg), model)}
			logger.Info("bedrock language model enabled", "model", model)
		}
	}
	if key := strings.TrimSpace(cfg.GeminiAPIKey); key != "" {
		gemini, err := llm.NewGeminiClient(ctx, key, cfg.GeminiModelID)
		if err != nil {
			return nil, noop, fmt.Errorf("bootstrap: gemini client: %w", err)
		}
		closeFn = func() { _ = gemini.Close() }
		secondary = llm.Provider{Name: "gemini", Client: gemini}
		logger.Info("gemini language model enabled", "model", cfg.GeminiModelID)
	}

	var client llm.Client
	switch {
	case primary.Client != nil && secondary.Client != nil:
		client = llm.NewFallbackClient(primary, secondary, logger)
	case primary.Client != nil:
		client = primary.Client
	case secondary.Client != nil:
		client = secondary.Client
	default:
		logger.Warn("no language model configured; scoring and polish disabled")
		return nil, noop, nil
	}
	return llm.NewGuarded(client, cfg.LLMTimeout, m, logger), closeFn, nil
}
