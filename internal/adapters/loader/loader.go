// Package loader provides corpus sources backed by files: single text or
// markdown documents, whole directories of them, and JSON/YAML corpus files.
package loader

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
)

// TextLoader loads plain text and markdown documents (.txt, .md).
//
// A markdown file may start with a YAML front matter block setting id,
// title and category. Otherwise the title is the first "# " heading, or the
// file name without extension.
type TextLoader struct{}

// NewTextLoader creates a new text document loader.
func NewTextLoader() *TextLoader {
	return &TextLoader{}
}

// Load reads one document. relPath seeds the generated ID so the same file
// keeps its ID across reloads.
func (l *TextLoader) Load(ctx context.Context, path, relPath string) (entities.Document, error) {
	if err := ctx.Err(); err != nil {
		return entities.Document{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return entities.Document{}, err
	}

	meta, body, err := splitFrontMatter(data)
	if err != nil {
		return entities.Document{}, fmt.Errorf("parsing front matter of %s: %w", relPath, err)
	}

	doc := entities.Document{
		ID:       meta.ID,
		Title:    meta.Title,
		Category: meta.Category,
	}
	if doc.Title == "" {
		doc.Title, body = extractHeading(body)
	}
	if doc.Title == "" {
		doc.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if doc.ID == "" {
		doc.ID = generateDocID(filepath.ToSlash(relPath))
	}
	doc.Content = strings.TrimSpace(body)
	return doc, nil
}

// SupportedExtensions returns file extensions this loader handles.
func (l *TextLoader) SupportedExtensions() []string {
	return []string{".txt", ".md", ".markdown"}
}

// Supports reports whether path has a supported extension.
func (l *TextLoader) Supports(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range l.SupportedExtensions() {
		if e == ext {
			return true
		}
	}
	return false
}

type frontMatter struct {
	ID       string `yaml:"id"`
	Title    string `yaml:"title"`
	Category string `yaml:"category"`
}

var frontMatterDelim = []byte("---")

func splitFrontMatter(data []byte) (frontMatter, string, error) {
	var meta frontMatter
	trimmed := bytes.TrimPrefix(data, []byte("\ufeff"))
	if !bytes.HasPrefix(trimmed, frontMatterDelim) {
		return meta, string(data), nil
	}

	rest := trimmed[len(frontMatterDelim):]
	nl := bytes.IndexByte(rest, '\n')
	if nl < 0 || len(bytes.TrimSpace(rest[:nl])) != 0 {
		return meta, string(data), nil
	}
	rest = rest[nl+1:]

	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return meta, string(data), nil
	}
	if err := yaml.Unmarshal(rest[:end], &meta); err != nil {
		return meta, "", err
	}

	body := rest[end+len("\n---"):]
	if nl := bytes.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = nil
	}
	return meta, string(body), nil
}

// extractHeading pulls a leading "# Title" line out of body.
func extractHeading(body string) (string, string) {
	trimmed := strings.TrimLeft(body, " \t\r\n")
	if !strings.HasPrefix(trimmed, "# ") {
		return "", body
	}
	line, rest, _ := strings.Cut(trimmed, "\n")
	return strings.TrimSpace(strings.TrimPrefix(line, "# ")), rest
}

// generateDocID creates a deterministic ID for a document.
func generateDocID(path string) string {
	hash := sha256.Sum256([]byte(path))
	return hex.EncodeToString(hash[:8])
}
