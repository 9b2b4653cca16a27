package llm

import (
	"context"
	"errors"

	"github.com/crestpointmarketing/eventra-app-sub000/pkg/logging"
)

// Provider names a client for logs.
type Provider struct {
	Name   string
	Client Client
}

type purposeKey struct{}

// WithPurpose tags ctx with the engine flow a call serves.
func WithPurpose(ctx context.Context, purpose string) context.Context {
	return context.WithValue(ctx, purposeKey{}, purpose)
}

// PurposeFrom returns the purpose set by WithPurpose, or "unknown".
func PurposeFrom(ctx context.Context) string {
	if p, ok := ctx.Value(purposeKey{}).(string); ok && p != "" {
		return p
	}
	return "unknown"
}

// FallbackClient sends a request to the secondary provider when the primary
// fails. A cancelled or expired context is never retried.
type FallbackClient struct {
	primary   Provider
	secondary Provider
	logger    *logging.Logger
}

func NewFallbackClient(primary, secondary Provider, logger *logging.Logger) *FallbackClient {
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackClient{primary: primary, secondary: secondary, logger: logger}
}

func (c *FallbackClient) Complete(ctx context.Context, req Request) (Response, error) {
	resp, err := c.primary.Client.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}
	purpose := PurposeFrom(ctx)
	if c.secondary.Client == nil || ctx.Err() != nil {
		return Response{}, err
	}
	c.logger.Warn("model provider failed, switching",
		"purpose", purpose,
		"provider", c.primary.Name,
		"next_provider", c.secondary.Name,
		"error", err,
	)

	resp, secondErr := c.secondary.Client.Complete(ctx, req)
	if secondErr != nil {
		c.logger.Error("every model provider failed",
			"purpose", purpose,
			"providers", []string{c.primary.Name, c.secondary.Name},
			"error", secondErr,
		)
		return Response{}, errors.Join(err, secondErr)
	}
	c.logger.Info("model call served by secondary provider", "purpose", purpose, "provider", c.secondary.Name)
	return resp, nil
}
