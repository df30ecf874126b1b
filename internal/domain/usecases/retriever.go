package usecases

import (
	"strings"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
	"github.com/0xcro3dile/ragchat-go/internal/domain/ports"
)

// SubstringRetriever is the baseline retriever: a document matches when its
// title, content or category contains the query, ignoring case.
// Matches keep corpus order; there is no scoring.
type SubstringRetriever struct {
	docs    []entities.Document
	lowered [][3]string // lowercased title, content, category
}

// NewSubstringRetriever snapshots the store's corpus.
// The store is immutable, so the snapshot never goes stale.
func NewSubstringRetriever(store ports.DocumentStore) *SubstringRetriever {
	docs := store.All()
	lowered := make([][3]string, len(docs))
	for i, d := range docs {
		lowered[i] = [3]string{strings.ToLower(d.Title), strings.ToLower(d.Content), strings.ToLower(d.Category)}
	}
	return &SubstringRetriever{docs: docs, lowered: lowered}
}

// Retrieve returns matching documents in corpus order. The query is only
// lowercased: surrounding whitespace is part of the substring.
func (r *SubstringRetriever) Retrieve(query string) entities.RetrievalResult {
	if strings.TrimSpace(query) == "" {
		return entities.RetrievalResult{}
	}
	q := strings.ToLower(query)

	result := entities.RetrievalResult{}
	for i, fields := range r.lowered {
		if strings.Contains(fields[0], q) || strings.Contains(fields[1], q) || strings.Contains(fields[2], q) {
			result = append(result, r.docs[i])
		}
	}
	return result
}
