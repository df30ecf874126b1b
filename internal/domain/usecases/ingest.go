// Package usecases contains application business rules.
// Usecases orchestrate entities and depend on port interfaces only; concrete
// adapters are injected by the composition root.
package usecases

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
	"github.com/0xcro3dile/ragchat-go/internal/domain/ports"
)

// StoreFactory builds an immutable DocumentStore from loaded documents.
type StoreFactory func(docs []entities.Document) (ports.DocumentStore, error)

// RetrieverFactory builds a Retriever over a store.
type RetrieverFactory func(store ports.DocumentStore) (ports.Retriever, error)

// Corpus is one immutable snapshot of the loaded documents and the
// retriever built over them. Holders that outlive a request Acquire it; once
// a reload has replaced it and every holder has released it, a retriever
// implementing io.Closer is closed.
type Corpus struct {
	Store     ports.DocumentStore
	Retriever ports.Retriever
	Version   int
	LoadedAt  time.Time

	refMu   sync.Mutex
	refs    int
	retired bool
	closed  bool
}

// Acquire marks the snapshot in use. It reports false when the snapshot
// was already closed; Release must follow a successful Acquire.
func (c *Corpus) Acquire() bool {
	c.refMu.Lock()
	defer c.refMu.Unlock()
	if c.closed {
		return false
	}
	c.refs++
	return true
}

// Release drops a reference taken by Acquire.
func (c *Corpus) Release() {
	c.refMu.Lock()
	c.refs--
	c.refMu.Unlock()
	c.closeIfUnused()
}

func (c *Corpus) retire() {
	c.refMu.Lock()
	c.retired = true
	c.refMu.Unlock()
	c.closeIfUnused()
}

func (c *Corpus) closeIfUnused() {
	c.refMu.Lock()
	if c.closed || !c.retired || c.refs > 0 {
		c.refMu.Unlock()
		return
	}
	c.closed = true
	c.refMu.Unlock()

	if closer, ok := c.Retriever.(io.Closer); ok {
		closer.Close()
	}
}

// IngestUseCase loads the corpus from a source and publishes snapshots.
// A reload never mutates a published snapshot; conversations keep the one
// they were created with.
type IngestUseCase struct {
	source       ports.CorpusSource
	newStore     StoreFactory
	newRetriever RetrieverFactory
	logger       *zap.Logger

	mu      sync.RWMutex
	current *Corpus
	onLoad  []func(*Corpus)
}

// NewIngestUseCase creates an IngestUseCase with injected dependencies.
func NewIngestUseCase(
	source ports.CorpusSource,
	newStore StoreFactory,
	newRetriever RetrieverFactory,
	logger *zap.Logger,
) *IngestUseCase {
	if newRetriever == nil {
		newRetriever = func(store ports.DocumentStore) (ports.Retriever, error) {
			return NewSubstringRetriever(store), nil
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestUseCase{
		source:       source,
		newStore:     newStore,
		newRetriever: newRetriever,
		logger:       logger,
	}
}

// Load reads the source and publishes a new snapshot. On error the
// previous snapshot, if any, stays current.
func (uc *IngestUseCase) Load(ctx context.Context) (*Corpus, error) {
	docs, err := uc.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading corpus: %w", err)
	}
	store, err := uc.newStore(docs)
	if err != nil {
		return nil, fmt.Errorf("building document store: %w", err)
	}
	retriever, err := uc.newRetriever(store)
	if err != nil {
		return nil, fmt.Errorf("building retriever: %w", err)
	}

	uc.mu.Lock()
	version := 1
	if uc.current != nil {
		version = uc.current.Version + 1
	}
	corpus := &Corpus{
		Store:     store,
		Retriever: retriever,
		Version:   version,
		LoadedAt:  time.Now(),
	}
	previous := uc.current
	uc.current = corpus
	hooks := uc.onLoad
	uc.mu.Unlock()

	if previous != nil {
		previous.retire()
	}

	uc.logger.Info("corpus loaded", zap.Int("documents", len(docs)), zap.Int("version", version))
	for _, fn := range hooks {
		fn(corpus)
	}
	return corpus, nil
}

// OnLoad registers fn to run after every successful Load.
func (uc *IngestUseCase) OnLoad(fn func(*Corpus)) {
	uc.mu.Lock()
	uc.onLoad = append(uc.onLoad, fn)
	uc.mu.Unlock()
}

// Acquire returns the latest snapshot with a reference held, or nil before
// the first Load. The caller must Release it.
func (uc *IngestUseCase) Acquire() *Corpus {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	if uc.current == nil || !uc.current.Acquire() {
		return nil
	}
	return uc.current
}

// Close retires the current snapshot. Holders keep it until they release.
func (uc *IngestUseCase) Close() {
	uc.mu.Lock()
	current := uc.current
	uc.current = nil
	uc.mu.Unlock()
	if current != nil {
		current.retire()
	}
}

// Current returns the latest snapshot, or nil before the first Load.
func (uc *IngestUseCase) Current() *Corpus {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	return uc.current
}

// Watch reloads the corpus whenever files under dir change, coalescing
// bursts of events within debounce. It returns when ctx is done.
func (uc *IngestUseCase) Watch(ctx context.Context, watcher ports.FileWatcher, dir string, debounce time.Duration) error {
	events, err := watcher.Watch(ctx, dir)
	if err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	defer watcher.Stop()

	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	var (
		timer   *time.Timer
		trigger <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			uc.logger.Debug("corpus change detected", zap.String("path", ev.Path))
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(debounce)
			}
			trigger = timer.C
		case <-trigger:
			trigger = nil
			if _, err := uc.Load(ctx); err != nil {
				uc.logger.Error("corpus reload failed, keeping previous snapshot", zap.Error(err))
			}
		}
	}
}
