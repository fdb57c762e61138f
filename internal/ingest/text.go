package ingest

import (
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/unicode/norm"
)

// TextParser reads plain text. Non UTF-8 charsets named in the content type
// are decoded, invalid bytes are replaced, and the result is NFC-normalized.
type TextParser struct{}

// NewTextParser creates a plain text parser.
func NewTextParser() *TextParser {
	return &TextParser{}
}

// Name returns the parser name.
func (p *TextParser) Name() string {
	return "text"
}

// SupportedTypes returns the MIME types this parser handles.
func (p *TextParser) SupportedTypes() []string {
	return []string{"text/plain"}
}

// Parse extracts content from a plain text document.
func (p *TextParser) Parse(ctx context.Context, r io.Reader, params map[string]string) (string, error) {
	if charset := strings.ToLower(params["charset"]); charset != "" && charset != "utf-8" && charset != "utf8" {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return "", fmt.Errorf("unknown charset %q: %w", charset, err)
		}
		r = enc.NewDecoder().Reader(r)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	content := string(data)
	if !utf8.ValidString(content) {
		content = strings.ToValidUTF8(content, "\uFFFD")
	}
	return norm.NFC.String(content), nil
}
