// Package parser converts uploaded file bytes into plain text for chunking.
// A registry maps declared MIME types and file extensions to per-format
// parsers; anything unregistered is rejected before the pipeline touches the
// chunker or embedder.
package parser

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bull/docchat/internal/domain"
)

// Parsed is the plain-text result of parsing one upload.
type Parsed struct {
	Text  string
	Title string
}

// Parser extracts plain text from one document format.
type Parser interface {
	Parse(data []byte) (Parsed, error)
}

// Registry selects a parser by MIME type or file extension.
type Registry struct {
	byMIME map[string]Parser
	byExt  map[string]Parser
}

// NewRegistry returns a registry with the supported upload formats:
// plain text, markdown, and PDF.
func NewRegistry() *Registry {
	r := &Registry{
		byMIME: make(map[string]Parser),
		byExt:  make(map[string]Parser),
	}

	plain := &plaintextParser{}
	r.register(plain, []string{"text/plain"}, []string{".txt"})

	md := newMarkdownParser()
	r.register(md, []string{"text/markdown", "text/x-markdown"}, []string{".md", ".markdown"})

	pdf := &pdfParser{}
	r.register(pdf, []string{"application/pdf"}, []string{".pdf"})

	return r
}

func (r *Registry) register(p Parser, mimeTypes, extensions []string) {
	for _, m := range mimeTypes {
		r.byMIME[m] = p
	}
	for _, e := range extensions {
		r.byExt[e] = p
	}
}

// Parse resolves a parser from the declared MIME type, falling back to the
// filename extension, and extracts plain text. An upload matching neither
// fails with ErrUnsupportedFormat.
func (r *Registry) Parse(filename, mimeType string, data []byte) (Parsed, error) {
	p, ok := r.resolve(filename, mimeType)
	if !ok {
		return Parsed{}, fmt.Errorf("%w: %q (%s)", domain.ErrUnsupportedFormat, filename, mimeType)
	}

	parsed, err := p.Parse(data)
	if err != nil {
		return Parsed{}, fmt.Errorf("parse %q: %w", filename, err)
	}
	if parsed.Title == "" {
		base := filepath.Base(filename)
		parsed.Title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return parsed, nil
}

func (r *Registry) resolve(filename, mimeType string) (Parser, bool) {
	if mimeType != "" {
		// Declared type may carry parameters, e.g. "text/plain; charset=utf-8".
		mt, _, _ := strings.Cut(mimeType, ";")
		if p, ok := r.byMIME[strings.ToLower(strings.TrimSpace(mt))]; ok {
			return p, true
		}
	}
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" {
		if p, ok := r.byExt[ext]; ok {
			return p, true
		}
	}
	return nil, false
}
