package usecases

import (
	"context"
	"errors"
	"fmt"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
	"github.com/0xcro3dile/ragchat-go/internal/domain/ports"
)

var errCorpusNotLoaded = errors.New("corpus not loaded")

// QueryUseCase answers single questions without a conversation and exposes
// retrieval previews for diagnostics.
type QueryUseCase struct {
	corpus    func() *Corpus
	assembler *ContextAssembler
	generator ports.GenerationClient
}

// NewQueryUseCase creates a QueryUseCase reading the latest corpus snapshot.
func NewQueryUseCase(corpus func() *Corpus, assembler *ContextAssembler, generator ports.GenerationClient) *QueryUseCase {
	return &QueryUseCase{
		corpus:    corpus,
		assembler: assembler,
		generator: generator,
	}
}

// Query retrieves context and generates a complete answer.
func (uc *QueryUseCase) Query(ctx context.Context, query string) (*entities.Answer, error) {
	prompt, err := uc.Search(query)
	if err != nil {
		return nil, err
	}
	answer, err := uc.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generating response: %w", err)
	}
	return &entities.Answer{Text: answer, Sources: prompt.Documents}, nil
}

// Stream retrieves context and opens a generation stream. The returned
// prompt carries the documents the answer is grounded on.
func (uc *QueryUseCase) Stream(ctx context.Context, query string) (entities.Prompt, <-chan ports.StreamToken, error) {
	prompt, err := uc.Search(query)
	if err != nil {
		return entities.Prompt{}, nil, err
	}
	tokens, err := uc.generator.GenerateStream(ctx, prompt)
	if err != nil {
		return entities.Prompt{}, nil, fmt.Errorf("generating response: %w", err)
	}
	return prompt, tokens, nil
}

// Search retrieves and assembles without calling the backend.
func (uc *QueryUseCase) Search(query string) (entities.Prompt, error) {
	raw := query
	query = normalizeSubmission(query)
	if query == "" {
		return entities.Prompt{}, entities.ErrEmptyQuery
	}
	corpus, err := uc.acquire()
	if err != nil {
		return entities.Prompt{}, err
	}
	defer corpus.Release()
	docs := corpus.Retriever.Retrieve(raw)
	return uc.assembler.Assemble(query, docs), nil
}

// acquire holds the latest snapshot for the duration of a request. A closed
// snapshot is never current, so the loop ends on the next read.
func (uc *QueryUseCase) acquire() (*Corpus, error) {
	for {
		c := uc.corpus()
		if c == nil {
			return nil, errCorpusNotLoaded
		}
		if c.Acquire() {
			return c, nil
		}
	}
}
