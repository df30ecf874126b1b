package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
	"github.com/0xcro3dile/ragchat-go/internal/domain/ports"
)

const queryCacheSize = 256

// EmbeddingOptions tunes EmbeddingRetriever.
type EmbeddingOptions struct {
	MinScore float64       // cosine similarity a document needs to match
	TopK     int           // zero keeps every match
	Timeout  time.Duration // per query embedding call; zero means none
}

// EmbeddingRetriever ranks documents by cosine similarity between the query
// embedding and document embeddings computed once at construction.
type EmbeddingRetriever struct {
	embedder ports.EmbeddingService
	opts     EmbeddingOptions
	logger   *zap.Logger
	docs     []entities.Document
	vectors  [][]float32

	mu    sync.Mutex
	cache map[string][]float32
}

// NewEmbeddingRetriever embeds every document of store.
func NewEmbeddingRetriever(ctx context.Context, store ports.DocumentStore, embedder ports.EmbeddingService, opts EmbeddingOptions, logger *zap.Logger) (*EmbeddingRetriever, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	docs := store.All()
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = embeddingText(d)
	}
	vectors, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding corpus: %w", err)
	}
	if len(vectors) != len(docs) {
		return nil, fmt.Errorf("embedding corpus: got %d vectors for %d documents", len(vectors), len(docs))
	}

	return &EmbeddingRetriever{
		embedder: embedder,
		opts:     opts,
		logger:   logger,
		docs:     docs,
		vectors:  vectors,
		cache:    make(map[string][]float32),
	}, nil
}

func embeddingText(d entities.Document) string {
	return strings.Join([]string{d.Title, d.Category, d.Content}, "\n")
}

// Retrieve returns documents scoring at least MinScore, best first, ties
// broken by corpus order. A failed embedding call yields no documents.
func (r *EmbeddingRetriever) Retrieve(query string) entities.RetrievalResult {
	q := strings.TrimSpace(query)
	if q == "" || len(r.docs) == 0 {
		return entities.RetrievalResult{}
	}

	qv, err := r.queryVector(q)
	if err != nil {
		r.logger.Warn("query embedding failed", zap.Error(err))
		return entities.RetrievalResult{}
	}

	type scored struct {
		pos   int
		score float64
	}
	var hits []scored
	for i, v := range r.vectors {
		if s := cosine(qv, v); s >= r.opts.MinScore {
			hits = append(hits, scored{pos: i, score: s})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if r.opts.TopK > 0 && len(hits) > r.opts.TopK {
		hits = hits[:r.opts.TopK]
	}

	result := make(entities.RetrievalResult, len(hits))
	for i, h := range hits {
		result[i] = r.docs[h.pos]
	}
	return result
}

// queryVector embeds q, memoising results so a repeated query sees the
// same vector.
func (r *EmbeddingRetriever) queryVector(q string) ([]float32, error) {
	r.mu.Lock()
	v, ok := r.cache[q]
	r.mu.Unlock()
	if ok {
		return v, nil
	}

	ctx := context.Background()
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}
	v, err := r.embedder.Embed(ctx, q)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if len(r.cache) >= queryCacheSize {
		clear(r.cache)
	}
	r.cache[q] = v
	r.mu.Unlock()
	return v, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
