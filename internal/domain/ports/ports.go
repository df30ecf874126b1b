// Package ports defines interfaces for external dependencies.
// Usecases depend on these abstractions, not on concrete implementations.
// Adapters implement these interfaces.
package ports

import (
	"context"
	"time"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
)

// DocumentStore holds the immutable corpus.
type DocumentStore interface {
	// All returns every document in corpus order.
	All() []entities.Document

	// ByID looks up a document, returning an error matching entities.ErrNotFound.
	ByID(id string) (entities.Document, error)
}

// CorpusSource loads the corpus once at startup.
type CorpusSource interface {
	Load(ctx context.Context) ([]entities.Document, error)
}

// Retriever selects the documents relevant to a query.
// Implementations must be pure: same query, same corpus, same result.
type Retriever interface {
	Retrieve(query string) entities.RetrievalResult
}

// EmbeddingService turns text into vectors for similarity retrieval.
type EmbeddingService interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// GenerationClient abstracts an external text-generation backend.
// Errors are reported as *entities.GenerationError. Clients never retry.
type GenerationClient interface {
	// Generate returns the complete answer for prompt.
	Generate(ctx context.Context, prompt entities.Prompt) (string, error)

	// GenerateStream returns a finite channel of deltas. The last token carries
	// either Done or Error, after which the channel is closed.
	GenerateStream(ctx context.Context, prompt entities.Prompt) (<-chan StreamToken, error)
}

// StreamToken represents a single delta in a streaming response.
type StreamToken struct {
	Content string
	Done    bool
	Error   error
}

// Subscriber receives conversation notifications in mutation order.
type Subscriber interface {
	OnMessageAppended(msg entities.Message)
	OnStreamDelta(delta string)
	OnStatusChanged(status entities.Status)
}

// TurnOutcome is how a turn ended.
type TurnOutcome string

const (
	TurnCompleted TurnOutcome = "completed"
	TurnFailed    TurnOutcome = "failed"
	TurnCancelled TurnOutcome = "cancelled"
)

// TurnReport summarises a finished turn for observability.
type TurnReport struct {
	ConversationID string
	Outcome        TurnOutcome
	ErrorKind      entities.GenerationErrorKind // meaningful when Outcome is TurnFailed
	Retrieved      int
	PromptChars    int
	Attempts       int
	Duration       time.Duration
}

// TurnObserver records turn-level telemetry.
type TurnObserver interface {
	TurnRejected(conversationID string, reason error)
	TurnFinished(report TurnReport)
}

// FileWatcher monitors a directory for changes.
type FileWatcher interface {
	// Watch starts monitoring the directory and emits events.
	Watch(ctx context.Context, dir string) (<-chan FileEvent, error)

	// Stop stops the watcher.
	Stop() error
}

// FileEvent represents a file system change.
type FileEvent struct {
	Path      string
	Operation FileOperation
}

// FileOperation is the type of file change.
type FileOperation int

const (
	FileCreated FileOperation = iota
	FileModified
	FileDeleted
)
