package llm

import (
	"fmt"
	"strings"
	"time"

	"github.com/0xcro3dile/ragchat-go/internal/domain/ports"
)

// Options selects and configures a generation backend.
type Options struct {
	Backend string // static, ollama, openai or gemini
	BaseURL string
	Model   string
	APIKey  string
	Timeout time.Duration
	// StreamDelay paces the static backend's stream.
	StreamDelay time.Duration
}

// Backends lists the supported backend names.
var Backends = []string{"static", "ollama", "openai", "gemini"}

// New builds the configured client wrapped in WithTimeout.
func New(opts Options) (ports.GenerationClient, error) {
	var (
		client ports.GenerationClient
		err    error
	)
	switch strings.ToLower(opts.Backend) {
	case "", "static":
		client = NewStaticAdapter(opts.StreamDelay)
	case "ollama":
		client = NewOllamaLLMAdapter(opts.BaseURL, opts.Model)
	case "openai":
		client, err = NewOpenAIAdapter(opts.BaseURL, opts.APIKey, opts.Model)
	case "gemini":
		client, err = NewGeminiAdapter(opts.BaseURL, opts.APIKey, opts.Model)
	default:
		return nil, fmt.Errorf("unknown generation backend %q (want one of %s)", opts.Backend, strings.Join(Backends, ", "))
	}
	if err != nil {
		return nil, err
	}
	return WithTimeout(client, opts.Timeout), nil
}
