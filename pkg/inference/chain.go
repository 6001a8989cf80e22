package inference

import (
	"context"
	"log/slog"
)

// Chain tries multiple providers in order until one succeeds.
// Kai uses it to fall back from Gemini to OpenAI when a quota runs out.
type Chain struct {
	providers []Provider
	logger    *slog.Logger
}

// NewChain creates a provider chain.
// At least one provider is required.
func NewChain(providers ...Provider) (*Chain, error) {
	return NewChainWithLogger(slog.Default(), providers...)
}

// NewChainWithLogger creates a provider chain with a custom logger.
func NewChainWithLogger(logger *slog.Logger, providers ...Provider) (*Chain, error) {
	if len(providers) == 0 {
		return nil, ErrProviderUnavailable
	}
	return &Chain{
		providers: providers,
		logger:    logger.With("component", "inference.chain"),
	}, nil
}

// Chat tries each chat-capable provider until one succeeds.
func (c *Chain) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	return try(ctx, c, "chat", ErrProviderUnavailable,
		func(caps Capabilities) bool { return caps.Chat },
		func(p Provider) (*ChatResponse, error) { return p.Chat(ctx, req) },
	)
}

// Vision tries each provider that supports vision.
func (c *Chain) Vision(ctx context.Context, req *VisionRequest) (*VisionResponse, error) {
	return try(ctx, c, "vision", ErrVisionNotSupported,
		func(caps Capabilities) bool { return caps.Vision },
		func(p Provider) (*VisionResponse, error) { return p.Vision(ctx, req) },
	)
}

func try[T any](
	ctx context.Context,
	c *Chain,
	op string,
	none error,
	supports func(Capabilities) bool,
	call func(Provider) (T, error),
) (T, error) {
	var zero T
	var errs []error

	for i, p := range c.providers {
		if !supports(p.Capabilities()) {
			continue
		}

		resp, err := call(p)
		if err == nil {
			if i > 0 {
				c.logger.Info("fallback provider succeeded", "op", op, "provider_index", i)
			}
			return resp, nil
		}

		errs = append(errs, err)
		c.logger.Warn("provider failed, trying next",
			"op", op,
			"provider_index", i,
			"kind", Kind(err),
			"error", err,
		)

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
	}

	if len(errs) == 0 {
		return zero, none
	}
	return zero, &ChainError{Errors: errs}
}

// Capabilities returns combined capabilities of all providers.
func (c *Chain) Capabilities() Capabilities {
	var caps Capabilities
	for _, p := range c.providers {
		pc := p.Capabilities()
		caps.Chat = caps.Chat || pc.Chat
		caps.Vision = caps.Vision || pc.Vision
	}
	return caps
}

// Health returns nil when at least one provider is healthy.
func (c *Chain) Health(ctx context.Context) error {
	var healthy int
	var lastErr error

	for _, p := range c.providers {
		if err := p.Health(ctx); err != nil {
			lastErr = err
		} else {
			healthy++
		}
	}

	if healthy == 0 {
		return WrapError("chain", lastErr)
	}
	c.logger.Debug("health check complete", "healthy", healthy, "total", len(c.providers))
	return nil
}

// Close closes all providers.
func (c *Chain) Close() error {
	var lastErr error
	for _, p := range c.providers {
		if err := p.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Providers returns the list of providers in the chain.
func (c *Chain) Providers() []Provider {
	return c.providers
}

// Verify Chain implements Provider at compile time.
var _ Provider = (*Chain)(nil)
