package inference

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"go.uber.org/multierr"
)

// Chain fails over between LLM servers: the primary from llm.base_url
// first, then each entry of llm.fallbacks. After a failover the server
// that answered is tried first on later requests.
type Chain struct {
	providers []Provider
	preferred atomic.Int32
	logger    *slog.Logger
}

// NewChain returns ErrProviderUnavailable when providers is empty.
func NewChain(logger *slog.Logger, providers ...Provider) (*Chain, error) {
	if len(providers) == 0 {
		return nil, ErrProviderUnavailable
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{providers: providers, logger: logger.With("component", "inference.chain")}, nil
}

// Chat asks each server in turn, starting with the preferred one, and
// returns a *ChainError listing every failure when none answers.
func (c *Chain) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	start := int(c.preferred.Load())
	n := len(c.providers)
	failures := make([]error, 0, n)

	for k := range n {
		i := (start + k) % n
		resp, err := c.providers[i].Chat(ctx, req)
		if err == nil {
			if i != start {
				c.preferred.Store(int32(i))
				c.logger.Info("switched LLM server", "from", start, "to", i)
			}
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		failures = append(failures, err)
		c.logger.Warn("LLM server failed", "index", i, "left", n-k-1, "error", err)
	}
	return nil, &ChainError{Errors: failures}
}

// Health passes if any server is healthy.
func (c *Chain) Health(ctx context.Context) error {
	var errs error
	for _, p := range c.providers {
		err := p.Health(ctx)
		if err == nil {
			return nil
		}
		errs = multierr.Append(errs, err)
	}
	return fmt.Errorf("inference chain: no healthy endpoint: %w", errs)
}

func (c *Chain) Close() error {
	var errs error
	for _, p := range c.providers {
		errs = multierr.Append(errs, p.Close())
	}
	return errs
}

// Providers returns the servers in configured order.
func (c *Chain) Providers() []Provider {
	return c.providers
}

var _ Provider = (*Chain)(nil)
