package llm

import (
	"context"
	"log/slog"
)

// FallbackClient wraps a primary Client with a fallback provider. If the
// primary fails the request is retried once against the fallback.
type FallbackClient struct {
	primary  Client
	fallback Client
	logger   *slog.Logger
}

// NewFallbackClient builds a fallback-enabled client. A nil fallback means
// the primary is the only provider.
func NewFallbackClient(primary, fallback Client, logger *slog.Logger) *FallbackClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackClient{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (c *FallbackClient) Complete(ctx context.Context, req Request) (Response, error) {
	resp, err := c.primary.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}

	c.logger.Warn("primary LLM failed, attempting fallback",
		"error", err.Error(),
		"fallback_available", c.fallback != nil,
	)

	if c.fallback == nil {
		return Response{}, err
	}

	fallbackResp, fallbackErr := c.fallback.Complete(ctx, req)
	if fallbackErr != nil {
		c.logger.Error("fallback LLM also failed",
			"primary_error", err.Error(),
			"fallback_error", fallbackErr.Error(),
		)
		return Response{}, fallbackErr
	}

	c.logger.Info("fallback LLM succeeded after primary failure")
	return fallbackResp, nil
}
