// Package llm provides GenerationClient adapters: Ollama, OpenAI-compatible
// chat completions, Gemini and a static offline backend, plus the timeout
// decorator every configured client is wrapped in.
package llm

import (
	"bufio"
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

// OllamaLLMAdapter implements ports.GenerationClient using the Ollama API.
type OllamaLLMAdapter struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaLLMAdapter creates a new Ollama LLM adapter.
func NewOllamaLLMAdapter(baseURL, model string) *OllamaLLMAdapter {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.2"
	}
	return &OllamaLLMAdapter{
		baseURL: baseURL,
		model:   model,
		client: &http.Client{
			Timeout: 300 * time.Second, // Longer timeout for streaming
		},
	}
}

// ollamaGenerateRequest is the Ollama generate API request.
type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// ollamaGenerateResponse is the Ollama generate API response.
type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

func (a *OllamaLLMAdapter) post(ctx context.Context, prompt entities.Prompt, stream bool) (*http.Response, error) {
	jsonData, err := json.Marshal(ollamaGenerateRequest{
		Model:  a.model,
		Prompt: prompt.Text,
		Stream: stream,
	})
	if err != nil {
		return nil, entities.NewGenerationError(entities.GenerationUnknown, fmt.Errorf("marshaling request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/generate", bytes.NewReader(jsonData))
	if err != nil {
		return nil, entities.NewGenerationError(entities.GenerationUnknown, fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, transportError("Ollama", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError("Ollama", resp)
	}
	return resp, nil
}

// Generate returns the complete answer for prompt.
func (a *OllamaLLMAdapter) Generate(ctx context.Context, prompt entities.Prompt) (string, error) {
	resp, err := a.post(ctx, prompt, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var genResp ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		if ctx.Err() != nil {
			return "", transportError("Ollama", ctx.Err())
		}
		return "", decodeError("Ollama", err)
	}
	if genResp.Error != "" {
		return "", entities.NewGenerationError(entities.GenerationUnknown, errors.New(genResp.Error))
	}

	return genResp.Response, nil
}

// GenerateStream streams newline-delimited JSON chunks from Ollama.
func (a *OllamaLLMAdapter) GenerateStream(ctx context.Context, prompt entities.Prompt) (<-chan ports.StreamToken, error) {
	resp, err := a.post(ctx, prompt, true)
	if err != nil {
		return nil, err
	}

	ch := make(chan ports.StreamToken, 100)

	go func() {
		defer close(ch)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var chunk ollamaGenerateResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				continue // Skip malformed lines
			}
			if chunk.Error != "" {
				send(ctx, ch, ports.StreamToken{
					Error: entities.NewGenerationError(entities.GenerationUnknown, errors.New(chunk.Error)),
				})
				return
			}

			if !send(ctx, ch, ports.StreamToken{Content: chunk.Response, Done: chunk.Done}) {
				sendFinal(ch, ports.StreamToken{Error: transportError("Ollama", ctx.Err())})
				return
			}
			if chunk.Done {
				return
			}
		}

		switch err := scanner.Err(); {
		case ctx.Err() != nil:
			sendFinal(ch, ports.StreamToken{Error: transportError("Ollama", ctx.Err())})
		case err != nil:
			send(ctx, ch, ports.StreamToken{Error: transportError("Ollama", err)})
		default:
			send(ctx, ch, ports.StreamToken{Error: entities.NewGenerationError(entities.GenerationNetwork, errStreamTruncated)})
		}
	}()

	return ch, nil
}
