// Package retrieval provides full-text retrievers that can replace the
// substring baseline.
package retrieval

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/blevesearch/bleve"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
	"github.com/0xcro3dile/ragchat-go/internal/domain/ports"
)

// BleveRetriever ranks documents with BM25-style scoring over an in-memory
// bleve index of title, content and category.
type BleveRetriever struct {
	index    bleve.Index
	docs     map[string]entities.Document
	position map[string]int
}

// NewBleveRetriever indexes every document of store.
func NewBleveRetriever(store ports.DocumentStore) (*BleveRetriever, error) {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("creating index: %w", err)
	}

	all := store.All()
	r := &BleveRetriever{
		index:    index,
		docs:     make(map[string]entities.Document, len(all)),
		position: make(map[string]int, len(all)),
	}

	batch := index.NewBatch()
	for i, d := range all {
		r.docs[d.ID] = d
		r.position[d.ID] = i
		fields := map[string]interface{}{
			"title":    d.Title,
			"content":  d.Content,
			"category": d.Category,
		}
		if err := batch.Index(d.ID, fields); err != nil {
			return nil, fmt.Errorf("indexing document %s: %w", d.ID, err)
		}
	}
	if err := index.Batch(batch); err != nil {
		return nil, fmt.Errorf("indexing corpus: %w", err)
	}
	return r, nil
}

// Retrieve returns matching documents by descending score, ties broken by
// corpus order. A failed search yields no documents.
func (r *BleveRetriever) Retrieve(query string) entities.RetrievalResult {
	q := strings.TrimSpace(query)
	if q == "" || len(r.docs) == 0 {
		return entities.RetrievalResult{}
	}

	req := bleve.NewSearchRequest(bleve.NewMatchQuery(q))
	req.Size = len(r.docs)
	res, err := r.index.Search(req)
	if err != nil {
		return entities.RetrievalResult{}
	}

	hits := res.Hits
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return r.position[hits[i].ID] < r.position[hits[j].ID]
	})

	result := make(entities.RetrievalResult, 0, len(hits))
	for _, h := range hits {
		if d, ok := r.docs[h.ID]; ok {
			result = append(result, d)
		}
	}
	return result
}

var _ io.Closer = (*BleveRetriever)(nil)

// Close releases the index. Snapshots whose retriever is closed are no
// longer handed out, see usecases.Corpus.
func (r *BleveRetriever) Close() error {
	return r.index.Close()
}
