// Package ingest extracts plain text from uploaded documents and joins it
// into a single evaluation corpus.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"strings"
	"sync"
)

// ErrUnsupportedType is returned when no parser handles a document's media type.
var ErrUnsupportedType = errors.New("unsupported content type")

// Parser extracts text from one document format.
type Parser interface {
	// Parse returns the document text. params holds media type parameters
	// such as charset.
	Parse(ctx context.Context, r io.Reader, params map[string]string) (string, error)

	// Name returns the parser name for logging.
	Name() string

	// SupportedTypes returns the MIME types this parser handles.
	SupportedTypes() []string
}

// Registry maps media types to parsers.
type Registry struct {
	mu     sync.RWMutex
	byType map[string]Parser
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byType: make(map[string]Parser)}
}

// NewDefaultRegistry returns a registry with the PDF and plain text parsers.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewPDFParser())
	r.Register(NewTextParser())
	return r
}

// Register adds a parser for all of its supported types.
func (r *Registry) Register(p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range p.SupportedTypes() {
		r.byType[strings.ToLower(t)] = p
	}
}

// Get returns the parser for a content type header value and its parameters.
func (r *Registry) Get(contentType string) (Parser, map[string]string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		// Fall back to the bare type when parameters are malformed.
		mediaType = strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
		params = nil
	}

	r.mu.RLock()
	p, ok := r.byType[mediaType]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedType, mediaType)
	}
	return p, params, nil
}

// Document is one uploaded file.
type Document struct {
	Name        string
	ContentType string
	Data        []byte
}

// Ingestor builds a corpus from documents.
type Ingestor struct {
	registry *Registry
	logger   *slog.Logger
}

// NewIngestor creates an ingestor. A nil registry uses NewDefaultRegistry.
func NewIngestor(registry *Registry, logger *slog.Logger) *Ingestor {
	if registry == nil {
		registry = NewDefaultRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{registry: registry, logger: logger.With("component", "ingest")}
}

// Corpus extracts text from every supported document and joins the results
// with a single space. Documents with an unsupported type or that fail to
// parse are logged and skipped. It returns the number of documents used.
func (i *Ingestor) Corpus(ctx context.Context, docs []Document) (string, int, error) {
	texts := make([]string, 0, len(docs))
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return "", 0, err
		}

		parser, params, err := i.registry.Get(doc.ContentType)
		if err != nil {
			i.logger.Warn("skipping document", "name", doc.Name, "content_type", doc.ContentType, "error", err)
			continue
		}

		text, err := parser.Parse(ctx, bytes.NewReader(doc.Data), params)
		if err != nil {
			i.logger.Error("failed to extract document text", "name", doc.Name, "parser", parser.Name(), "error", err)
			continue
		}
		if strings.TrimSpace(text) == "" {
			i.logger.Warn("document has no text", "name", doc.Name, "parser", parser.Name())
			continue
		}

		i.logger.Debug("extracted document", "name", doc.Name, "parser", parser.Name(), "chars", len(text))
		texts = append(texts, text)
	}
	return strings.Join(texts, " "), len(texts), nil
}
