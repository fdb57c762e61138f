package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFParser extracts the text layer of PDF documents page by page.
type PDFParser struct{}

// NewPDFParser creates a PDF parser.
func NewPDFParser() *PDFParser {
	return &PDFParser{}
}

// Name returns the parser name.
func (p *PDFParser) Name() string {
	return "pdf"
}

// SupportedTypes returns the MIME types this parser handles.
func (p *PDFParser) SupportedTypes() []string {
	return []string{"application/pdf"}
}

// Parse concatenates the plain text of every page.
func (p *PDFParser) Parse(ctx context.Context, r io.Reader, _ map[string]string) (text string, err error) {
	// The pdf package panics on some malformed inputs.
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("parse pdf: %v", rec)
		}
	}()

	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		b.WriteString(pageText)
	}
	return b.String(), nil
}
