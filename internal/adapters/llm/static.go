package llm

import (
	"context"
	"strings"
	"time"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
	"github.com/0xcro3dile/ragchat-go/internal/domain/ports"
)

// NoContextAnswer is the static backend's reply when nothing was retrieved.
const NoContextAnswer = "I couldn't find anything about that in the knowledge base."

// StaticAdapter is an offline GenerationClient that answers with the
// retrieved context itself. It is deterministic and needs no network.
type StaticAdapter struct {
	delay time.Duration // pause between streamed words
}

// NewStaticAdapter creates the offline backend.
func NewStaticAdapter(delay time.Duration) *StaticAdapter {
	return &StaticAdapter{delay: delay}
}

func (a *StaticAdapter) answer(prompt entities.Prompt) string {
	if prompt.Context == "" {
		return NoContextAnswer
	}
	return "Here is what I found:\n\n" + prompt.Context
}

// Generate returns the canned answer.
func (a *StaticAdapter) Generate(ctx context.Context, prompt entities.Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", transportError("static", err)
	}
	return a.answer(prompt), nil
}

// GenerateStream emits the canned answer word by word.
func (a *StaticAdapter) GenerateStream(ctx context.Context, prompt entities.Prompt) (<-chan ports.StreamToken, error) {
	words := splitWords(a.answer(prompt))
	ch := make(chan ports.StreamToken)

	go func() {
		defer close(ch)
		for i, w := range words {
			if i > 0 && a.delay > 0 {
				select {
				case <-time.After(a.delay):
				case <-ctx.Done():
					sendFinal(ch, ports.StreamToken{Error: transportError("static", ctx.Err())})
					return
				}
			}
			if !send(ctx, ch, ports.StreamToken{Content: w}) {
				sendFinal(ch, ports.StreamToken{Error: transportError("static", ctx.Err())})
				return
			}
		}
		send(ctx, ch, ports.StreamToken{Done: true})
	}()

	return ch, nil
}

// splitWords cuts s after each space so the pieces concatenate back to s.
func splitWords(s string) []string {
	var out []string
	for s != "" {
		i := strings.IndexByte(s, ' ')
		if i < 0 {
			out = append(out, s)
			break
		}
		out = append(out, s[:i+1])
		s = s[i+1:]
	}
	return out
}
