package entities

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy rejects a submission while a turn is already in flight.
	ErrBusy = errors.New("conversation busy")
	// ErrEmptyQuery rejects blank submissions.
	ErrEmptyQuery = errors.New("empty query")
	// ErrClosed rejects submissions after the session ended.
	ErrClosed = errors.New("conversation closed")
	// ErrNotFound is returned by document lookups by ID.
	ErrNotFound = errors.New("not found")
)

// GenerationErrorKind classifies backend failures for logging and metrics.
type GenerationErrorKind int

const (
	GenerationUnknown GenerationErrorKind = iota
	GenerationNetwork
	GenerationAuth
	GenerationRateLimit
	GenerationTimeout
)

func (k GenerationErrorKind) String() string {
	switch k {
	case GenerationNetwork:
		return "network"
	case GenerationAuth:
		return "auth"
	case GenerationRateLimit:
		return "rate_limit"
	case GenerationTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// GenerationError is the only error a GenerationClient reports.
type GenerationError struct {
	Kind GenerationErrorKind
	Err  error
}

// NewGenerationError wraps err with a kind.
func NewGenerationError(kind GenerationErrorKind, err error) *GenerationError {
	return &GenerationError{Kind: kind, Err: err}
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("generation %s error", e.Kind)
	}
	return fmt.Sprintf("generation %s error: %v", e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// GenerationErrorKindOf reports the kind of err, or GenerationUnknown when
// err is not a GenerationError.
func GenerationErrorKindOf(err error) GenerationErrorKind {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return GenerationUnknown
}
