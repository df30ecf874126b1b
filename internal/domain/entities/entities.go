// Package entities contains core business entities.
// These are the enterprise business rules - pure domain objects with no external dependencies.
package entities

import (
	"encoding/json"
	"fmt"
	"time"
)

// Document is a single retrievable passage of the corpus.
// Documents are immutable once the corpus is loaded.
type Document struct {
	ID       string `json:"id" yaml:"id"`
	Title    string `json:"title" yaml:"title"`
	Content  string `json:"content" yaml:"content"`
	Category string `json:"category" yaml:"category"`
}

// RetrievalResult is the ordered (relevance-descending) set of documents
// selected for one query. It is produced fresh per query and never stored.
type RetrievalResult []Document

// IDs returns the document IDs in result order.
func (r RetrievalResult) IDs() []string {
	ids := make([]string, len(r))
	for i, d := range r {
		ids[i] = d.ID
	}
	return ids
}

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a conversation history.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Prompt is the generation payload assembled for a single turn.
type Prompt struct {
	Query     string     // literal user query
	Context   string     // rendered context block, possibly empty
	Text      string     // full text sent to the backend
	Documents []Document // documents that fit in the context block
}

// String returns the full prompt text.
func (p Prompt) String() string { return p.Text }

// Status is the state of a conversation's turn pipeline.
type Status int

const (
	StatusIdle Status = iota
	StatusRetrieving
	StatusGenerating
	StatusStreaming
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRetrieving:
		return "retrieving"
	case StatusGenerating:
		return "generating"
	case StatusStreaming:
		return "streaming"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText renders the status by name in JSON payloads.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name produced by MarshalText.
func (s *Status) UnmarshalText(text []byte) error {
	for c := StatusIdle; c <= StatusFailed; c++ {
		if c.String() == string(text) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", text)
}

// EventKind tags a conversation Event.
type EventKind string

const (
	EventMessage EventKind = "message"
	EventDelta   EventKind = "delta"
	EventStatus  EventKind = "status"
)

// Event is a single subscriber notification in a transport-neutral form.
// Exactly one of Message, Delta or Status is meaningful, per Kind.
type Event struct {
	Kind    EventKind
	Message *Message
	Delta   string
	Status  Status
}

// MarshalJSON emits the type tag and only the field that Kind selects.
func (e Event) MarshalJSON() ([]byte, error) {
	type wire struct {
		Kind    EventKind `json:"type"`
		Message *Message  `json:"message,omitempty"`
		Delta   string    `json:"content,omitempty"`
		Status  *Status   `json:"status,omitempty"`
	}
	w := wire{Kind: e.Kind}
	switch e.Kind {
	case EventMessage:
		w.Message = e.Message
	case EventDelta:
		w.Delta = e.Delta
	case EventStatus:
		s := e.Status
		w.Status = &s
	}
	return json.Marshal(w)
}

// Answer is the result of a one-shot, history-free question.
type Answer struct {
	Text    string     `json:"answer"`
	Sources []Document `json:"sources"`
}
