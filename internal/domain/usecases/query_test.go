package usecases

import (
	"context"
	"errors"
	"testing"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
)

func staticCorpus(store *mockStore) func() *Corpus {
	corpus := &Corpus{Store: store, Retriever: NewSubstringRetriever(store), Version: 1}
	return func() *Corpus { return corpus }
}

func TestQueryUseCase_ReturnsAnswer(t *testing.T) {
	gen := &mockGenerator{answer: "Our plans start at $10."}
	uc := NewQueryUseCase(staticCorpus(pricingCorpus()), NewContextAssembler(AssemblerOptions{}), gen)

	resp, err := uc.Query(context.Background(), "pricing")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if resp.Text != "Our plans start at $10." {
		t.Errorf("unexpected answer: %s", resp.Text)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].ID != "1" {
		t.Errorf("unexpected sources: %+v", resp.Sources)
	}
}

func TestQueryUseCase_PropagatesGenerationError(t *testing.T) {
	gen := &mockGenerator{errs: []error{entities.NewGenerationError(entities.GenerationAuth, errors.New("401"))}}
	uc := NewQueryUseCase(staticCorpus(sampleCorpus()), NewContextAssembler(AssemblerOptions{}), gen)

	_, err := uc.Query(context.Background(), "anything")
	if entities.GenerationErrorKindOf(err) != entities.GenerationAuth {
		t.Errorf("expected auth error, got %v", err)
	}
}

func TestQueryUseCase_Search(t *testing.T) {
	gen := &mockGenerator{}
	uc := NewQueryUseCase(staticCorpus(sampleCorpus()), NewContextAssembler(AssemblerOptions{}), gen)

	prompt, err := uc.Search("technical")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(prompt.Documents) != 1 {
		t.Errorf("expected 1 document, got %d", len(prompt.Documents))
	}
	if gen.callCount() != 0 {
		t.Error("search must not call the backend")
	}
}

func TestQueryUseCase_EmptyQuery(t *testing.T) {
	uc := NewQueryUseCase(staticCorpus(sampleCorpus()), NewContextAssembler(AssemblerOptions{}), &mockGenerator{})

	if _, err := uc.Search("  "); !errors.Is(err, entities.ErrEmptyQuery) {
		t.Errorf("expected ErrEmptyQuery, got %v", err)
	}
}

func TestQueryUseCase_Stream(t *testing.T) {
	gen := &mockGenerator{deltas: []string{"Our plans ", "start at $10."}}
	uc := NewQueryUseCase(staticCorpus(pricingCorpus()), NewContextAssembler(AssemblerOptions{}), gen)

	prompt, tokens, err := uc.Stream(context.Background(), "pricing")
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	if len(prompt.Documents) != 1 {
		t.Errorf("expected 1 source, got %d", len(prompt.Documents))
	}

	var text string
	var done bool
	for tok := range tokens {
		text += tok.Content
		done = done || tok.Done
	}
	if text != "Our plans start at $10." || !done {
		t.Errorf("unexpected stream: %q done=%v", text, done)
	}
}

func TestQueryUseCase_NoCorpus(t *testing.T) {
	uc := NewQueryUseCase(func() *Corpus { return nil }, NewContextAssembler(AssemblerOptions{}), &mockGenerator{})

	if _, err := uc.Search("pricing"); err == nil {
		t.Error("expected error without a corpus")
	}
}

func TestQueryUseCase_SearchSkipsClosedSnapshot(t *testing.T) {
	retriever := &closingRetriever{SubstringRetriever: NewSubstringRetriever(pricingCorpus())}
	stale := &Corpus{Store: pricingCorpus(), Retriever: retriever, Version: 1}
	stale.retire()
	fresh := &Corpus{Store: pricingCorpus(), Retriever: NewSubstringRetriever(pricingCorpus()), Version: 2}

	reads := 0
	current := func() *Corpus {
		reads++
		if reads == 1 {
			return stale
		}
		return fresh
	}
	uc := NewQueryUseCase(current, NewContextAssembler(AssemblerOptions{}), &mockGenerator{})

	prompt, err := uc.Search("pricing")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(prompt.Documents) != 1 || reads != 2 {
		t.Errorf("expected retrieval on the fresh snapshot, got %d docs after %d reads", len(prompt.Documents), reads)
	}
	if retriever.closeCount() != 1 {
		t.Errorf("retired snapshot should be closed, got %d", retriever.closeCount())
	}
}

func TestQueryUseCase_SearchUsesSubmittedText(t *testing.T) {
	uc := NewQueryUseCase(staticCorpus(pricingCorpus()), NewContextAssembler(AssemblerOptions{}), &mockGenerator{})

	prompt, err := uc.Search("pricing ")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(prompt.Documents) != 0 || prompt.Query != "pricing" {
		t.Errorf("unexpected prompt: query %q, %d docs", prompt.Query, len(prompt.Documents))
	}
}
