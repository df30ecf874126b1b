package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
	"github.com/0xcro3dile/ragchat-go/internal/domain/ports"
)

// timeoutClient bounds a whole generation, stream included.
type timeoutClient struct {
	next    ports.GenerationClient
	timeout time.Duration
}

// WithTimeout wraps next so every call fails with a Timeout GenerationError
// once d has elapsed. The underlying request is cancelled, which releases
// its connection. A non-positive d returns next unchanged.
func WithTimeout(next ports.GenerationClient, d time.Duration) ports.GenerationClient {
	if d <= 0 {
		return next
	}
	return &timeoutClient{next: next, timeout: d}
}

func (c *timeoutClient) timeoutError() *entities.GenerationError {
	return entities.NewGenerationError(entities.GenerationTimeout, fmt.Errorf("generation exceeded %s: %w", c.timeout, context.DeadlineExceeded))
}

func expired(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.DeadlineExceeded)
}

func (c *timeoutClient) Generate(ctx context.Context, prompt entities.Prompt) (string, error) {
	tctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	answer, err := c.next.Generate(tctx, prompt)
	if err != nil && expired(tctx) && ctx.Err() == nil {
		return "", c.timeoutError()
	}
	return answer, err
}

func (c *timeoutClient) GenerateStream(ctx context.Context, prompt entities.Prompt) (<-chan ports.StreamToken, error) {
	tctx, cancel := context.WithTimeout(ctx, c.timeout)

	in, err := c.next.GenerateStream(tctx, prompt)
	if err != nil {
		timedOut := expired(tctx) && ctx.Err() == nil
		cancel()
		if timedOut {
			return nil, c.timeoutError()
		}
		return nil, err
	}

	out := make(chan ports.StreamToken)
	go func() {
		defer close(out)
		defer cancel()
		defer func() { go drain(in) }()

		for {
			select {
			case tok, ok := <-in:
				if !ok {
					if expired(tctx) && ctx.Err() == nil {
						send(ctx, out, ports.StreamToken{Error: c.timeoutError()})
					}
					return
				}
				if tok.Error != nil && expired(tctx) && ctx.Err() == nil {
					tok = ports.StreamToken{Error: c.timeoutError()}
				}
				if !send(ctx, out, tok) {
					return
				}
				if tok.Done || tok.Error != nil {
					return
				}
			case <-tctx.Done():
				if ctx.Err() == nil {
					send(ctx, out, ports.StreamToken{Error: c.timeoutError()})
				}
				return
			}
		}
	}()

	return out, nil
}
