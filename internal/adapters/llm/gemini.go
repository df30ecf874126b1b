package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
	"github.com/0xcro3dile/ragchat-go/internal/domain/ports"
)

// GeminiAdapter implements ports.GenerationClient using the Gemini
// generateContent API.
type GeminiAdapter struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewGeminiAdapter creates a Gemini adapter.
func NewGeminiAdapter(baseURL, apiKey, model string) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: 300 * time.Second},
	}, nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

// text concatenates the parts of the first candidate.
func (r geminiResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

func (r geminiResponse) blocked() error {
	if r.PromptFeedback != nil && r.PromptFeedback.BlockReason != "" {
		return fmt.Errorf("prompt blocked: %s", r.PromptFeedback.BlockReason)
	}
	return nil
}

func (a *GeminiAdapter) post(ctx context.Context, prompt entities.Prompt, method string, query url.Values) (*http.Response, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt.Text}}}},
	})
	if err != nil {
		return nil, entities.NewGenerationError(entities.GenerationUnknown, fmt.Errorf("marshaling request: %w", err))
	}

	endpoint := fmt.Sprintf("%s/models/%s:%s", a.baseURL, url.PathEscape(a.model), method)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, entities.NewGenerationError(entities.GenerationUnknown, fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, transportError("Gemini", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError("Gemini", resp)
	}
	return resp, nil
}

// Generate returns the first candidate's text.
func (a *GeminiAdapter) Generate(ctx context.Context, prompt entities.Prompt) (string, error) {
	resp, err := a.post(ctx, prompt, "generateContent", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if ctx.Err() != nil {
			return "", transportError("Gemini", ctx.Err())
		}
		return "", decodeError("Gemini", err)
	}
	if err := out.blocked(); err != nil {
		return "", entities.NewGenerationError(entities.GenerationUnknown, err)
	}
	if len(out.Candidates) == 0 {
		return "", decodeError("Gemini", errors.New("no candidates"))
	}
	return out.text(), nil
}

// GenerateStream uses streamGenerateContent with SSE framing; the stream is
// complete when the body ends cleanly.
func (a *GeminiAdapter) GenerateStream(ctx context.Context, prompt entities.Prompt) (<-chan ports.StreamToken, error) {
	resp, err := a.post(ctx, prompt, "streamGenerateContent", url.Values{"alt": {"sse"}})
	if err != nil {
		return nil, err
	}

	ch := make(chan ports.StreamToken, 100)

	go func() {
		defer close(ch)
		defer resp.Body.Close()

		err := readSSE(resp.Body, func(_, data string) error {
			var chunk geminiResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				return decodeError("Gemini", err)
			}
			if err := chunk.blocked(); err != nil {
				return entities.NewGenerationError(entities.GenerationUnknown, err)
			}
			if text := chunk.text(); text != "" {
				if !send(ctx, ch, ports.StreamToken{Content: text}) {
					return ctx.Err()
				}
			}
			return nil
		})
		finishStream(ctx, ch, "Gemini", true, err)
	}()

	return ch, nil
}
