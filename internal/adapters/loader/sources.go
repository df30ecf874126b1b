package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
)

// DirSource loads every supported file under a directory. Files are read in
// lexical path order; a file's first directory below the root becomes its
// category unless front matter says otherwise.
type DirSource struct {
	root   string
	loader *TextLoader
}

// NewDirSource creates a source rooted at dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{root: dir, loader: NewTextLoader()}
}

// Root returns the watched directory.
func (s *DirSource) Root() string { return s.root }

// Load walks the directory.
func (s *DirSource) Load(ctx context.Context) ([]entities.Document, error) {
	var paths []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != s.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if s.loader.Supports(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", s.root, err)
	}
	sort.Strings(paths)

	docs := make([]entities.Document, 0, len(paths))
	for _, path := range paths {
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			rel = path
		}
		doc, err := s.loader.Load(ctx, path, rel)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", rel, err)
		}
		if doc.Category == "" {
			if dir, _, nested := strings.Cut(filepath.ToSlash(rel), "/"); nested {
				doc.Category = dir
			}
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// FileSource loads a corpus file: a JSON or YAML list of documents, or an
// object with a "documents" list.
type FileSource struct {
	path string
}

// NewFileSource creates a source for path; the format follows the extension.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Path returns the corpus file path.
func (s *FileSource) Path() string { return s.path }

type corpusFile struct {
	Documents []entities.Document `json:"documents" yaml:"documents"`
}

// Load reads and decodes the file.
func (s *FileSource) Load(ctx context.Context) ([]entities.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading corpus file: %w", err)
	}

	var unmarshal func([]byte, any) error
	switch strings.ToLower(filepath.Ext(s.path)) {
	case ".json":
		unmarshal = json.Unmarshal
	case ".yaml", ".yml":
		unmarshal = yaml.Unmarshal
	default:
		return nil, fmt.Errorf("unsupported corpus file %s: want .json, .yaml or .yml", s.path)
	}

	var list []entities.Document
	if err := unmarshal(data, &list); err == nil {
		return list, nil
	}
	var wrapped corpusFile
	if err := unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("decoding corpus file: %w", err)
	}
	return wrapped.Documents, nil
}

// StaticSource serves a fixed list of documents.
type StaticSource struct {
	docs []entities.Document
}

// NewStaticSource creates a source over docs.
func NewStaticSource(docs []entities.Document) *StaticSource {
	return &StaticSource{docs: docs}
}

// Load returns a copy of the documents.
func (s *StaticSource) Load(ctx context.Context) ([]entities.Document, error) {
	out := make([]entities.Document, len(s.docs))
	copy(out, s.docs)
	return out, nil
}

// BuiltinDocuments is the demo corpus used when no source is configured.
func BuiltinDocuments() []entities.Document {
	return []entities.Document{
		{
			ID:       "1",
			Title:    "Company Overview",
			Content:  "Quagster is a cutting-edge technology company focused on AI-driven solutions...",
			Category: "About",
		},
		{
			ID:       "2",
			Title:    "Product Features",
			Content:  "Our platform offers advanced machine learning capabilities, real-time analytics...",
			Category: "Products",
		},
		{
			ID:       "3",
			Title:    "Technical Documentation",
			Content:  "API endpoints, integration guides, and technical specifications...",
			Category: "Technical",
		},
	}
}
