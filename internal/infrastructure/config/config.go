// Package config loads runtime settings from defaults, an optional config
// file, .env and RAGCHAT_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultGreeting seeds every new conversation.
const DefaultGreeting = "Hello! I'm your AI assistant powered by RAG (Retrieval-Augmented Generation). " +
	"I can help you with questions about our company, products, and documentation. What would you like to know?"

// Corpus source kinds.
const (
	SourceBuiltin  = "builtin"
	SourceFile     = "file"
	SourceDir      = "dir"
	SourceSQLite   = "sqlite"
	SourcePostgres = "postgres"
)

// Retrieval engines.
const (
	EngineSubstring = "substring"
	EngineBleve     = "bleve"
	EngineEmbedding = "embedding"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	Corpus       CorpusConfig       `mapstructure:"corpus"`
	Retrieval    RetrievalConfig    `mapstructure:"retrieval"`
	Context      ContextConfig      `mapstructure:"context"`
	Generation   GenerationConfig   `mapstructure:"generation"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	NATS         NATSConfig         `mapstructure:"nats"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type LogConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

type CorpusConfig struct {
	Source        string        `mapstructure:"source"`
	Path          string        `mapstructure:"path"`
	DatabaseURL   string        `mapstructure:"database_url"`
	Query         string        `mapstructure:"query"`
	Watch         bool          `mapstructure:"watch"`
	WatchDebounce time.Duration `mapstructure:"watch_debounce"`
}

type RetrievalConfig struct {
	Engine    string          `mapstructure:"engine"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
}

// EmbeddingConfig configures the embedding engine, served by Ollama.
type EmbeddingConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Model    string        `mapstructure:"model"`
	MinScore float64       `mapstructure:"min_score"`
	TopK     int           `mapstructure:"top_k"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type ContextConfig struct {
	MaxContextChars       int  `mapstructure:"max_context_chars"`
	IncludeCategoryLabels bool `mapstructure:"include_category_labels"`
}

type GenerationConfig struct {
	Backend     string        `mapstructure:"backend"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	TimeoutMS   int           `mapstructure:"timeout_ms"`
	Streaming   bool          `mapstructure:"streaming"`
	StreamDelay time.Duration `mapstructure:"stream_delay"`
}

// Timeout converts TimeoutMS.
func (g GenerationConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutMS) * time.Millisecond
}

type ConversationConfig struct {
	Greeting        string        `mapstructure:"greeting"`
	FallbackMessage string        `mapstructure:"fallback_message"`
	RetryAttempts   int           `mapstructure:"retry_attempts"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
}

type NATSConfig struct {
	URL           string `mapstructure:"url"`
	Token         string `mapstructure:"token"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
	PublishDeltas bool   `mapstructure:"publish_deltas"`
}

// Enabled reports whether events should be published.
func (n NATSConfig) Enabled() bool { return n.URL != "" }

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("log.mode", "development")
	v.SetDefault("log.level", "")

	v.SetDefault("corpus.source", SourceBuiltin)
	v.SetDefault("corpus.path", "")
	v.SetDefault("corpus.database_url", "")
	v.SetDefault("corpus.query", "")
	v.SetDefault("corpus.watch", false)
	v.SetDefault("corpus.watch_debounce", "250ms")

	v.SetDefault("retrieval.engine", EngineSubstring)
	v.SetDefault("retrieval.embedding.base_url", "")
	v.SetDefault("retrieval.embedding.model", "")
	v.SetDefault("retrieval.embedding.min_score", 0.5)
	v.SetDefault("retrieval.embedding.top_k", 3)
	v.SetDefault("retrieval.embedding.timeout", "10s")

	v.SetDefault("context.max_context_chars", 4000)
	v.SetDefault("context.include_category_labels", false)

	v.SetDefault("generation.backend", "static")
	v.SetDefault("generation.base_url", "")
	v.SetDefault("generation.model", "")
	v.SetDefault("generation.api_key", "")
	v.SetDefault("generation.timeout_ms", 30000)
	v.SetDefault("generation.streaming", true)
	v.SetDefault("generation.stream_delay", "0s")

	v.SetDefault("conversation.greeting", DefaultGreeting)
	v.SetDefault("conversation.fallback_message", "")
	v.SetDefault("conversation.retry_attempts", 0)
	v.SetDefault("conversation.retry_delay", "500ms")

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.token", "")
	v.SetDefault("nats.subject_prefix", "ragchat")
	v.SetDefault("nats.publish_deltas", false)

	v.SetDefault("metrics.enabled", true)
}

// Load reads configuration. path may be empty, in which case ragchat.yaml
// (or .json) is looked up in ./config and the working directory and
// silently skipped when absent.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // .env is optional

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("ragchat")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("RAGCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	// Provider keys commonly live under their own names.
	if cfg.Generation.APIKey == "" {
		cfg.Generation.APIKey = providerKey(cfg.Generation.Backend)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error

	switch c.Corpus.Source {
	case SourceBuiltin:
	case SourceFile, SourceDir, SourceSQLite:
		if c.Corpus.Path == "" {
			errs = append(errs, fmt.Errorf("corpus.path is required for source %q", c.Corpus.Source))
		}
	case SourcePostgres:
		if c.Corpus.DatabaseURL == "" {
			errs = append(errs, errors.New("corpus.database_url is required for source postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown corpus.source %q", c.Corpus.Source))
	}
	if c.Corpus.Watch && c.Corpus.Source != SourceFile && c.Corpus.Source != SourceDir {
		errs = append(errs, errors.New("corpus.watch requires a file or dir source"))
	}

	if !slices.Contains([]string{EngineSubstring, EngineBleve, EngineEmbedding}, c.Retrieval.Engine) {
		errs = append(errs, fmt.Errorf("unknown retrieval.engine %q", c.Retrieval.Engine))
	}
	if c.Retrieval.Engine == EngineEmbedding {
		if e := c.Retrieval.Embedding; e.MinScore < -1 || e.MinScore > 1 {
			errs = append(errs, errors.New("retrieval.embedding.min_score must be within [-1, 1]"))
		}
	}

	switch strings.ToLower(c.Generation.Backend) {
	case "static", "ollama":
	case "openai", "gemini":
		if c.Generation.APIKey == "" {
			errs = append(errs, fmt.Errorf("generation.api_key is required for backend %q", c.Generation.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown generation.backend %q", c.Generation.Backend))
	}
	if c.Generation.TimeoutMS < 0 {
		errs = append(errs, errors.New("generation.timeout_ms must not be negative"))
	}

	if c.Conversation.RetryAttempts < 0 {
		errs = append(errs, errors.New("conversation.retry_attempts must not be negative"))
	}

	return errors.Join(errs...)
}

func providerKey(backend string) string {
	switch strings.ToLower(backend) {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "gemini":
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			return key
		}
		return os.Getenv("GOOGLE_API_KEY")
	}
	return ""
}
