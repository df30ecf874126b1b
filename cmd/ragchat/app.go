package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/0xcro3dile/ragchat-go/internal/adapters/docstore"
	"github.com/0xcro3dile/ragchat-go/internal/adapters/embedding"
	"github.com/0xcro3dile/ragchat-go/internal/adapters/events"
	"github.com/0xcro3dile/ragchat-go/internal/adapters/llm"
	"github.com/0xcro3dile/ragchat-go/internal/adapters/loader"
	"github.com/0xcro3dile/ragchat-go/internal/adapters/metrics"
	"github.com/0xcro3dile/ragchat-go/internal/adapters/retrieval"
	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
	"github.com/0xcro3dile/ragchat-go/internal/domain/ports"
	"github.com/0xcro3dile/ragchat-go/internal/domain/usecases"
	"github.com/0xcro3dile/ragchat-go/internal/infrastructure/config"
	logpkg "github.com/0xcro3dile/ragchat-go/internal/infrastructure/logger"
)

// app is the composition root shared by every command.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	ingest    *usecases.IngestUseCase
	assembler *usecases.ContextAssembler
	generator ports.GenerationClient
	metrics   *metrics.Metrics // nil when disabled
	nats      *events.Client   // nil when disabled
	closers   []func()
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	source, closeSource, err := openSource(ctx, cfg.Corpus)
	if err != nil {
		return nil, err
	}
	if closeSource != nil {
		a.closers = append(a.closers, closeSource)
	}

	newRetriever, err := retrieverFactory(ctx, cfg.Retrieval, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.ingest = usecases.NewIngestUseCase(source, newStore, newRetriever, logger)

	if cfg.Metrics.Enabled {
		a.metrics = metrics.New()
		a.ingest.OnLoad(func(c *usecases.Corpus) {
			a.metrics.CorpusLoaded(len(c.Store.All()), c.Version)
		})
	}

	if _, err := a.ingest.Load(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, a.ingest.Close)

	a.assembler = usecases.NewContextAssembler(usecases.AssemblerOptions{
		MaxContextChars:       cfg.Context.MaxContextChars,
		IncludeCategoryLabels: cfg.Context.IncludeCategoryLabels,
	})

	a.generator, err = llm.New(llm.Options{
		Backend:     cfg.Generation.Backend,
		BaseURL:     cfg.Generation.BaseURL,
		Model:       cfg.Generation.Model,
		APIKey:      cfg.Generation.APIKey,
		Timeout:     cfg.Generation.Timeout(),
		StreamDelay: cfg.Generation.StreamDelay,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	logger.Info("generation backend ready",
		zap.String("backend", cfg.Generation.Backend),
		zap.String("model", cfg.Generation.Model),
		zap.String("api_key", logpkg.Redact(cfg.Generation.APIKey)),
		zap.Duration("timeout", cfg.Generation.Timeout()),
	)

	if cfg.NATS.Enabled() {
		a.nats, err = events.NewClient(ctx, cfg.NATS.URL, cfg.NATS.Token, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, a.nats.Close)
	}

	return a, nil
}

type noRetriever struct{}

func (noRetriever) Retrieve(string) entities.RetrievalResult { return nil }

// newConversation builds a conversation over the current corpus snapshot,
// with NATS fan-out attached when configured. The snapshot is held until
// the conversation closes.
func (a *app) newConversation() *usecases.ConversationManager {
	opts := usecases.ConversationOptions{
		Streaming:       a.cfg.Generation.Streaming,
		Greeting:        a.cfg.Conversation.Greeting,
		FallbackMessage: a.cfg.Conversation.FallbackMessage,
		RetryAttempts:   a.cfg.Conversation.RetryAttempts,
		RetryDelay:      a.cfg.Conversation.RetryDelay,
	}
	// nil once the app is shutting down; such a conversation finds nothing.
	var retriever ports.Retriever = noRetriever{}
	if corpus := a.ingest.Acquire(); corpus != nil {
		retriever = corpus.Retriever
		opts.OnClose = corpus.Release
	}
	if a.metrics != nil {
		opts.Observer = a.metrics
	}

	m := usecases.NewConversationManager(retriever, a.assembler, a.generator, a.logger, opts)
	if a.nats != nil {
		m.Subscribe(events.NewSubscriber(a.nats, m.ID(), events.SubscriberOptions{
			Prefix:        a.cfg.NATS.SubjectPrefix,
			PublishDeltas: a.cfg.NATS.PublishDeltas,
		}, a.logger))
	}
	return m
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func newStore(docs []entities.Document) (ports.DocumentStore, error) {
	store, err := docstore.NewMemoryStore(docs)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// retrieverFactory builds retrievers for the configured engine. The
// embedding engine embeds each corpus snapshot as it is loaded.
func retrieverFactory(ctx context.Context, cfg config.RetrievalConfig, logger *zap.Logger) (usecases.RetrieverFactory, error) {
	switch cfg.Engine {
	case "", config.EngineSubstring:
		return func(store ports.DocumentStore) (ports.Retriever, error) {
			return usecases.NewSubstringRetriever(store), nil
		}, nil
	case config.EngineBleve:
		return func(store ports.DocumentStore) (ports.Retriever, error) {
			r, err := retrieval.NewBleveRetriever(store)
			if err != nil {
				return nil, err
			}
			return r, nil
		}, nil
	case config.EngineEmbedding:
		embedder := embedding.NewOllamaAdapter(cfg.Embedding.BaseURL, cfg.Embedding.Model, logger)
		opts := retrieval.EmbeddingOptions{
			MinScore: cfg.Embedding.MinScore,
			TopK:     cfg.Embedding.TopK,
			Timeout:  cfg.Embedding.Timeout,
		}
		return func(store ports.DocumentStore) (ports.Retriever, error) {
			r, err := retrieval.NewEmbeddingRetriever(ctx, store, embedder, opts, logger)
			if err != nil {
				return nil, err
			}
			return r, nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown retrieval engine %q", cfg.Engine)
	}
}

// openSource resolves the configured corpus source. The returned closer
// may be nil.
func openSource(ctx context.Context, cfg config.CorpusConfig) (ports.CorpusSource, func(), error) {
	switch cfg.Source {
	case "", config.SourceBuiltin:
		return loader.NewStaticSource(loader.BuiltinDocuments()), nil, nil
	case config.SourceFile:
		return loader.NewFileSource(cfg.Path), nil, nil
	case config.SourceDir:
		return loader.NewDirSource(cfg.Path), nil, nil
	case config.SourceSQLite:
		src, err := docstore.NewSQLiteSource(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return src, func() { _ = src.Close() }, nil
	case config.SourcePostgres:
		src, err := docstore.NewPostgresSource(ctx, cfg.DatabaseURL, cfg.Query)
		if err != nil {
			return nil, nil, err
		}
		return src, src.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown corpus source %q", cfg.Source)
	}
}
