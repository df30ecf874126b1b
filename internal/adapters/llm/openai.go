package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
	"github.com/0xcro3dile/ragchat-go/internal/domain/ports"
)

// OpenAIAdapter implements ports.GenerationClient against an
// OpenAI-compatible chat completions endpoint.
type OpenAIAdapter struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewOpenAIAdapter creates a chat completions adapter.
func NewOpenAIAdapter(baseURL, apiKey, model string) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIAdapter{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: 300 * time.Second},
	}, nil
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
	Stream   bool            `json:"stream,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message      openAIMessage `json:"message"`
		Delta        openAIMessage `json:"delta"`
		FinishReason *string       `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (a *OpenAIAdapter) post(ctx context.Context, prompt entities.Prompt, stream bool) (*http.Response, error) {
	body, err := json.Marshal(openAIRequest{
		Model:    a.model,
		Messages: []openAIMessage{{Role: "user", Content: prompt.Text}},
		Stream:   stream,
	})
	if err != nil {
		return nil, entities.NewGenerationError(entities.GenerationUnknown, fmt.Errorf("marshaling request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, entities.NewGenerationError(entities.GenerationUnknown, fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, transportError("OpenAI", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError("OpenAI", resp)
	}
	return resp, nil
}

// Generate returns the first choice's message content.
func (a *OpenAIAdapter) Generate(ctx context.Context, prompt entities.Prompt) (string, error) {
	resp, err := a.post(ctx, prompt, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if ctx.Err() != nil {
			return "", transportError("OpenAI", ctx.Err())
		}
		return "", decodeError("OpenAI", err)
	}
	if out.Error != nil {
		return "", entities.NewGenerationError(entities.GenerationUnknown, errors.New(out.Error.Message))
	}
	if len(out.Choices) == 0 {
		return "", decodeError("OpenAI", errors.New("no choices"))
	}
	return out.Choices[0].Message.Content, nil
}

// GenerateStream streams content deltas until the [DONE] sentinel.
func (a *OpenAIAdapter) GenerateStream(ctx context.Context, prompt entities.Prompt) (<-chan ports.StreamToken, error) {
	resp, err := a.post(ctx, prompt, true)
	if err != nil {
		return nil, err
	}

	ch := make(chan ports.StreamToken, 100)

	go func() {
		defer close(ch)
		defer resp.Body.Close()

		done := false
		err := readSSE(resp.Body, func(_, data string) error {
			if data == "[DONE]" {
				done = true
				return errStopStream
			}
			var chunk openAIResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				return decodeError("OpenAI", err)
			}
			if chunk.Error != nil {
				return entities.NewGenerationError(entities.GenerationUnknown, errors.New(chunk.Error.Message))
			}
			for _, c := range chunk.Choices {
				if c.Delta.Content == "" {
					continue
				}
				if !send(ctx, ch, ports.StreamToken{Content: c.Delta.Content}) {
					return ctx.Err()
				}
			}
			return nil
		})
		finishStream(ctx, ch, "OpenAI", done, err)
	}()

	return ch, nil
}

// finishStream emits the terminal token of an SSE stream.
func finishStream(ctx context.Context, ch chan<- ports.StreamToken, backend string, done bool, err error) {
	if errors.Is(err, errStopStream) {
		err = nil
	}
	switch {
	case ctx.Err() != nil:
		sendFinal(ch, ports.StreamToken{Error: transportError(backend, ctx.Err())})
	case err != nil:
		send(ctx, ch, ports.StreamToken{Error: transportError(backend, err)})
	case !done:
		send(ctx, ch, ports.StreamToken{Error: entities.NewGenerationError(entities.GenerationNetwork, errStreamTruncated)})
	default:
		send(ctx, ch, ports.StreamToken{Done: true})
	}
}
