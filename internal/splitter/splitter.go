// Package splitter implements recursive text splitting for chunking
// markdown documents before embedding.
//
// The splitter tries separators in order, preferring boundaries that keep
// semantic units intact: fenced code blocks first, then paragraphs, lines
// and words, with a character-level split as the last resort. Split pieces
// are merged back into chunks no larger than the configured size, with a
// sliding overlap window between consecutive chunks.
package splitter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultSeparators order boundaries from most to least desirable.
// The empty string means "split anywhere" and must come last.
var DefaultSeparators = []string{"```\n", "\n\n", "\n", " ", ""}

// DefaultOverlapRatio is the fraction of the chunk size retained as overlap
// between consecutive chunks.
const DefaultOverlapRatio = 0.15

// LengthFunc measures text in the unit chunks are budgeted in.
type LengthFunc func(string) int

// TokenLength returns a LengthFunc counting cl100k_base tokens, the
// tokenizer used by the OpenAI embedding models.
func TokenLength() (LengthFunc, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("loading cl100k_base encoding: %w", err)
	}
	return func(s string) int {
		return len(enc.Encode(s, nil, nil))
	}, nil
}

// RuneLength counts runes. Useful in tests and for character budgets.
func RuneLength(s string) int {
	return len([]rune(s))
}

// Recursive splits text recursively by a separator hierarchy.
type Recursive struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
	length       LengthFunc
}

// Option configures a Recursive splitter.
type Option func(*Recursive)

// WithSeparators overrides the separator hierarchy.
func WithSeparators(seps []string) Option {
	return func(r *Recursive) { r.separators = seps }
}

// WithLengthFunc overrides the length measure.
func WithLengthFunc(fn LengthFunc) Option {
	return func(r *Recursive) { r.length = fn }
}

// WithOverlap overrides the computed overlap.
func WithOverlap(overlap int) Option {
	return func(r *Recursive) { r.chunkOverlap = overlap }
}

// NewRecursive creates a splitter with the given chunk size. The overlap
// defaults to DefaultOverlapRatio * chunkSize truncated to an int, and the
// length measure defaults to cl100k_base token counting.
func NewRecursive(chunkSize int, opts ...Option) (*Recursive, error) {
	if chunkSize < 1 {
		return nil, errors.New("chunk size must be positive")
	}

	r := &Recursive{
		chunkSize:    chunkSize,
		chunkOverlap: int(DefaultOverlapRatio * float64(chunkSize)),
		separators:   DefaultSeparators,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.length == nil {
		fn, err := TokenLength()
		if err != nil {
			return nil, err
		}
		r.length = fn
	}
	if r.chunkOverlap >= r.chunkSize {
		return nil, fmt.Errorf("overlap %d must be smaller than chunk size %d", r.chunkOverlap, r.chunkSize)
	}
	return r, nil
}

// ChunkSize returns the configured chunk budget.
func (r *Recursive) ChunkSize() int { return r.chunkSize }

// ChunkOverlap returns the configured overlap.
func (r *Recursive) ChunkOverlap() int { return r.chunkOverlap }

// Split breaks text into chunks of at most the configured size. Empty
// chunks are never returned; an all-whitespace input yields nil.
func (r *Recursive) Split(text string) []string {
	return r.split(text, r.separators)
}

func (r *Recursive) split(text string, separators []string) []string {
	// Pick the first separator present in the text; the rest remain
	// available for recursion into oversized pieces.
	separator := separators[len(separators)-1]
	var next []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			next = separators[i+1:]
			break
		}
	}

	splits := splitKeeping(text, separator)

	var chunks []string
	var good []string
	for _, piece := range splits {
		if r.length(piece) < r.chunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			chunks = append(chunks, r.merge(good)...)
			good = nil
		}
		if len(next) == 0 {
			// Nothing finer to split by; emit oversized piece as-is.
			if s := strings.TrimSpace(piece); s != "" {
				chunks = append(chunks, s)
			}
			continue
		}
		chunks = append(chunks, r.split(piece, next)...)
	}
	if len(good) > 0 {
		chunks = append(chunks, r.merge(good)...)
	}
	return chunks
}

// splitKeeping splits text by sep, re-attaching the separator to the end of
// each piece so no characters are lost. An empty sep splits into runes.
func splitKeeping(text, sep string) []string {
	if sep == "" {
		runes := []rune(text)
		out := make([]string, 0, len(runes))
		for _, r := range runes {
			out = append(out, string(r))
		}
		return out
	}

	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if i < len(parts)-1 {
			p += sep
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// merge packs small pieces into chunks up to chunkSize, carrying a trailing
// window of pieces totalling at most chunkOverlap into the next chunk.
func (r *Recursive) merge(pieces []string) []string {
	var chunks []string
	var current []string
	total := 0

	flush := func() {
		if s := strings.TrimSpace(strings.Join(current, "")); s != "" {
			chunks = append(chunks, s)
		}
	}

	for _, piece := range pieces {
		l := r.length(piece)
		if total+l > r.chunkSize && len(current) > 0 {
			flush()
			// Slide the window: drop leading pieces until what remains
			// fits in the overlap budget and leaves room for the new piece.
			for len(current) > 0 && (total > r.chunkOverlap || total+l > r.chunkSize) {
				total -= r.length(current[0])
				current = current[1:]
			}
		}
		current = append(current, piece)
		total += l
	}
	if len(current) > 0 {
		flush()
	}
	return chunks
}
