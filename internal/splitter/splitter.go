// Package splitter divides a corpus into overlapping chunks for retrieval.
package splitter

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrInvalidConfig is returned when chunk size or overlap are out of range.
var ErrInvalidConfig = errors.New("invalid splitter config")

// Method selects the splitting strategy.
type Method int

const (
	// Recursive splits on a separator hierarchy, then cuts characters.
	Recursive Method = iota
	// FixedWidth splits on whitespace only.
	FixedWidth
)

// String returns the wire name of the method.
func (m Method) String() string {
	switch m {
	case Recursive:
		return "RecursiveTextSplitter"
	case FixedWidth:
		return "CharacterTextSplitter"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// ParseMethod maps a wire name to a Method. An empty name selects Recursive.
func ParseMethod(name string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "recursivetextsplitter", "recursive":
		return Recursive, nil
	case "charactertextsplitter", "character", "fixed", "fixedwidth":
		return FixedWidth, nil
	default:
		return 0, fmt.Errorf("%w: unknown split method %q", ErrInvalidConfig, name)
	}
}

// Config controls chunk sizes. Sizes are measured in runes.
type Config struct {
	ChunkSize int
	Overlap   int
	Method    Method
}

// Validate checks that 0 <= Overlap < ChunkSize.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, c.ChunkSize)
	}
	if c.Overlap < 0 || c.Overlap >= c.ChunkSize {
		return fmt.Errorf("%w: overlap must be in [0, %d), got %d", ErrInvalidConfig, c.ChunkSize, c.Overlap)
	}
	if c.Method != Recursive && c.Method != FixedWidth {
		return fmt.Errorf("%w: unknown method %d", ErrInvalidConfig, int(c.Method))
	}
	return nil
}

// DefaultSeparators is the recursive separator hierarchy, largest unit first.
var DefaultSeparators = []string{
	"\n\n", // Paragraph break
	"\n",   // Line break
	". ",   // Sentence end
	"? ",   // Question end
	"! ",   // Exclamation end
	" ",    // Word
}

// Split divides corpus into chunks.
//
// Chunks are contiguous substrings of corpus. Each chunk after the first
// starts exactly cfg.Overlap runes before the end of the previous one, so
// consecutive chunks share cfg.Overlap runes. Chunks end on the coarsest
// separator boundary that fits; when none fits, the text is cut at the
// character level. In FixedWidth mode a whitespace-free token longer than
// ChunkSize is never cut and yields an over-long chunk. Whitespace-only
// chunks are dropped.
func Split(corpus string, cfg Config) ([]string, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(corpus) == "" {
		return nil, nil
	}

	text := []rune(corpus)
	var (
		pieces []int
		levels [][]int
	)
	switch cfg.Method {
	case FixedWidth:
		pieces = whitespaceBoundaries(text)
	default:
		pieces = recursiveBoundaries(text, 0, len(text), cfg.ChunkSize, separatorRunes(DefaultSeparators))
		for _, sep := range separatorRunes(DefaultSeparators) {
			levels = append(levels, separatorBoundaries(text, sep))
		}
	}

	w := window{pieces: pieces, levels: levels, size: cfg.ChunkSize}

	var chunks []string
	start, prevEnd := 0, 0
	for prevEnd < len(text) {
		end := w.next(start, prevEnd)
		if chunk := string(text[start:end]); strings.TrimSpace(chunk) != "" {
			chunks = append(chunks, chunk)
		}
		prevEnd = end
		if prevEnd >= len(text) {
			break
		}
		start = max(end-cfg.Overlap, start)
	}
	return chunks, nil
}

type window struct {
	pieces []int   // ascending piece end offsets, last == len(text)
	levels [][]int // finer boundaries per separator, coarsest first
	size   int
}

// next returns the end of the chunk that begins at start. The end always
// lies past prevEnd.
func (w window) next(start, prevEnd int) int {
	limit := start + w.size

	if end, ok := lastInRange(w.pieces, prevEnd, limit); ok {
		return end
	}
	for _, bounds := range w.levels {
		if end, ok := lastInRange(bounds, prevEnd, limit); ok {
			return end
		}
	}

	// Nothing fits: the next piece is indivisible or needs a character cut.
	piece := firstAfter(w.pieces, prevEnd)
	if piece-prevEnd > w.size {
		return piece
	}
	return min(limit, piece)
}

// lastInRange returns the largest value v in sorted with lo < v <= hi.
func lastInRange(sorted []int, lo, hi int) (int, bool) {
	idx := upperBound(sorted, hi) - 1
	if idx < 0 || sorted[idx] <= lo {
		return 0, false
	}
	return sorted[idx], true
}

// firstAfter returns the smallest value in sorted greater than v.
func firstAfter(sorted []int, v int) int {
	return sorted[upperBound(sorted, v)]
}

func upperBound(sorted []int, v int) int {
	lo, hi := 0, len(sorted)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if sorted[mid] <= v {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func separatorRunes(seps []string) [][]rune {
	out := make([][]rune, len(seps))
	for i, sep := range seps {
		out[i] = []rune(sep)
	}
	return out
}

// recursiveBoundaries returns piece end offsets for text[lo:hi], splitting
// after each separator occurrence and descending the hierarchy for pieces
// still longer than size.
func recursiveBoundaries(text []rune, lo, hi, size int, seps [][]rune) []int {
	if hi-lo <= size {
		return []int{hi}
	}
	if len(seps) == 0 {
		var out []int
		for pos := lo + size; pos < hi; pos += size {
			out = append(out, pos)
		}
		return append(out, hi)
	}

	var out []int
	pieceStart := lo
	for _, end := range separatorBoundaries(text[lo:hi], seps[0]) {
		end += lo
		out = append(out, recursiveBoundaries(text, pieceStart, end, size, seps[1:])...)
		pieceStart = end
	}
	if pieceStart < hi {
		out = append(out, recursiveBoundaries(text, pieceStart, hi, size, seps[1:])...)
	}
	return out
}

// separatorBoundaries returns the offsets just past each non-overlapping
// occurrence of sep.
func separatorBoundaries(text []rune, sep []rune) []int {
	var out []int
	for i := 0; i+len(sep) <= len(text); {
		if hasPrefix(text[i:], sep) {
			i += len(sep)
			out = append(out, i)
			continue
		}
		i++
	}
	return out
}

func hasPrefix(text, prefix []rune) bool {
	if len(prefix) > len(text) {
		return false
	}
	for i, r := range prefix {
		if text[i] != r {
			return false
		}
	}
	return true
}

// whitespaceBoundaries returns offsets after every whitespace rune plus the
// end of text.
func whitespaceBoundaries(text []rune) []int {
	var out []int
	for i, r := range text {
		if unicode.IsSpace(r) {
			out = append(out, i+1)
		}
	}
	if len(out) == 0 || out[len(out)-1] != len(text) {
		out = append(out, len(text))
	}
	return out
}
