package usecases

import (
	"strings"
	"unicode/utf8"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
)

// DefaultMaxContextChars bounds the context block when no limit is configured.
const DefaultMaxContextChars = 4000

const (
	promptPreamble = "You are a helpful AI assistant. Use the following context to answer the user's question:\n\n"
	promptClosing  = "\n\nPlease provide a helpful and accurate response based on the context provided."
	docSeparator   = "\n\n"
)

// AssemblerOptions configures the ContextAssembler.
type AssemblerOptions struct {
	// MaxContextChars caps the rendered context block only, not
	// Prompt.Text: the preamble and the query are not counted. The unit is
	// runes. Documents are dropped from the end of the ranked list until the
	// block fits.
	MaxContextChars int
	// IncludeCategoryLabels prefixes each document with "[Category] ".
	IncludeCategoryLabels bool
}

// ContextAssembler turns a query and its retrieved documents into a Prompt.
type ContextAssembler struct {
	opts AssemblerOptions
}

// NewContextAssembler creates an assembler, defaulting MaxContextChars.
func NewContextAssembler(opts AssemblerOptions) *ContextAssembler {
	if opts.MaxContextChars <= 0 {
		opts.MaxContextChars = DefaultMaxContextChars
	}
	return &ContextAssembler{opts: opts}
}

// Options returns the effective options.
func (a *ContextAssembler) Options() AssemblerOptions { return a.opts }

// Assemble builds the prompt. It never fails: when not even the first
// document fits, the context block is empty.
func (a *ContextAssembler) Assemble(query string, docs entities.RetrievalResult) entities.Prompt {
	kept, contextBlock := a.renderContext(docs)

	var sb strings.Builder
	sb.WriteString(promptPreamble)
	sb.WriteString("CONTEXT:\n")
	sb.WriteString(contextBlock)
	sb.WriteString("\n\nUSER QUESTION: ")
	sb.WriteString(query)
	sb.WriteString(promptClosing)

	return entities.Prompt{
		Query:     query,
		Context:   contextBlock,
		Text:      sb.String(),
		Documents: kept,
	}
}

// renderContext keeps the longest prefix of docs whose rendering fits.
func (a *ContextAssembler) renderContext(docs entities.RetrievalResult) ([]entities.Document, string) {
	var (
		parts []string
		used  int
	)
	for _, d := range docs {
		entry := a.renderDocument(d)
		size := utf8.RuneCountInString(entry)
		if len(parts) > 0 {
			size += utf8.RuneCountInString(docSeparator)
		}
		if used+size > a.opts.MaxContextChars {
			break
		}
		parts = append(parts, entry)
		used += size
	}

	kept := make([]entities.Document, len(parts))
	copy(kept, docs[:len(parts)])
	return kept, strings.Join(parts, docSeparator)
}

func (a *ContextAssembler) renderDocument(d entities.Document) string {
	if a.opts.IncludeCategoryLabels && d.Category != "" {
		return "[" + d.Category + "] " + d.Title + ": " + d.Content
	}
	return d.Title + ": " + d.Content
}
