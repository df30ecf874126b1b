package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
	"github.com/0xcro3dile/ragchat-go/internal/domain/ports"
)

// errStreamTruncated reports a body that ended before the completion marker.
var errStreamTruncated = errors.New("stream ended before completion")

// maxErrorBody caps how much of a failed response is kept for logs.
const maxErrorBody = 512

// statusError maps a non-2xx response to a GenerationError.
func statusError(backend string, resp *http.Response) *entities.GenerationError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	err := fmt.Errorf("%s returned status %d: %s", backend, resp.StatusCode, strings.TrimSpace(string(body)))

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return entities.NewGenerationError(entities.GenerationAuth, err)
	case resp.StatusCode == http.StatusTooManyRequests:
		return entities.NewGenerationError(entities.GenerationRateLimit, err)
	case resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode == http.StatusGatewayTimeout:
		return entities.NewGenerationError(entities.GenerationTimeout, err)
	case resp.StatusCode >= 500:
		return entities.NewGenerationError(entities.GenerationNetwork, err)
	default:
		return entities.NewGenerationError(entities.GenerationUnknown, err)
	}
}

// transportError classifies a failed request or body read.
func transportError(backend string, err error) *entities.GenerationError {
	var ge *entities.GenerationError
	if errors.As(err, &ge) {
		return ge
	}
	wrapped := fmt.Errorf("calling %s: %w", backend, err)

	if errors.Is(err, context.DeadlineExceeded) {
		return entities.NewGenerationError(entities.GenerationTimeout, wrapped)
	}
	if errors.Is(err, context.Canceled) {
		return entities.NewGenerationError(entities.GenerationUnknown, wrapped)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return entities.NewGenerationError(entities.GenerationTimeout, wrapped)
		}
		return entities.NewGenerationError(entities.GenerationNetwork, wrapped)
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return entities.NewGenerationError(entities.GenerationNetwork, wrapped)
	}
	return entities.NewGenerationError(entities.GenerationUnknown, wrapped)
}

// decodeError reports a malformed backend payload.
func decodeError(backend string, err error) *entities.GenerationError {
	return entities.NewGenerationError(entities.GenerationUnknown, fmt.Errorf("decoding %s response: %w", backend, err))
}

// send delivers tok unless ctx is done first.
func send(ctx context.Context, ch chan<- ports.StreamToken, tok ports.StreamToken) bool {
	select {
	case ch <- tok:
		return true
	case <-ctx.Done():
		return false
	}
}

// sendFinal delivers a terminal token when the consumer is still reading.
func sendFinal(ch chan<- ports.StreamToken, tok ports.StreamToken) {
	select {
	case ch <- tok:
	default:
	}
}

func drain(ch <-chan ports.StreamToken) {
	for range ch {
	}
}
