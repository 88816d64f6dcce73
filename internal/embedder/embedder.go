// Package embedder implements the embedding provider boundary: a
// deterministic, dependency-free hash embedding used by this engine in
// place of a live model backend, plus the interface the rest of the
// engine programs against. Adapted from the teacher's
// internal/embed.StaticEmbedder — the teacher falls back to this
// implementation when Ollama/MLX are unavailable; this engine adopts
// it as the sole embedding backend, since no live model runtime is in
// scope here.
package embedder

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
	"sync"
	"unicode"
)

// Provider generates vector embeddings for chunk and query text. Every
// read/write path that touches the Vector Store programs against this
// interface rather than a concrete backend.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelName() string
	Available(ctx context.Context) bool
	Close() error
}

// tokenWeight/ngramWeight/ngramSize mirror the teacher's static
// embedder blend of whole-token and character-trigram signal.
const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

var stopWords = map[string]bool{
	"func": true, "function": true, "def": true, "class": true,
	"return": true, "import": true, "const": true, "var": true,
	"let": true, "int": true, "string": true, "bool": true,
	"void": true, "true": true, "false": true, "nil": true,
	"null": true, "this": true, "self": true, "new": true,
}

// Hash is a deterministic, model-free Provider: text is hashed into a
// fixed-size vector via whole-token and character-trigram buckets, then
// normalized to unit length. Identical text always yields an identical
// vector, so it satisfies every contract the rest of the engine needs
// without a network call or a loaded model.
type Hash struct {
	mu         sync.RWMutex
	dimensions int
	modelName  string
	closed     bool
}

// New builds a Hash provider with the given output dimensionality and
// model identifier (recorded alongside embeddings so Model
// Compatibility can detect a later dimension/name change).
func New(dimensions int, modelName string) *Hash {
	return &Hash{dimensions: dimensions, modelName: modelName}
}

// Embed generates the embedding for a single text.
func (e *Hash) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("embedder is closed")
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, e.dimensions), nil
	}
	return normalize(e.generateVector(trimmed)), nil
}

// EmbedBatch generates embeddings for multiple texts, failing the
// whole batch if any individual text fails (the static hash path never
// actually errors, but the signature matches a live backend's).
func (e *Hash) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// Dimensions returns the configured output dimensionality.
func (e *Hash) Dimensions() int { return e.dimensions }

// ModelName returns the configured model identifier.
func (e *Hash) ModelName() string { return e.modelName }

// Available reports readiness; a Hash provider is always available
// until closed.
func (e *Hash) Available(ctx context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close marks the provider closed; further Embed calls fail.
func (e *Hash) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *Hash) generateVector(text string) []float32 {
	vector := make([]float32, e.dimensions)

	for _, token := range filterStopWords(tokenize(text)) {
		vector[hashToIndex(token, e.dimensions)] += tokenWeight
	}

	normalized := normalizeForNgrams(text)
	for _, gram := range ngrams(normalized, ngramSize) {
		vector[hashToIndex(gram, e.dimensions)] += ngramWeight
	}

	return vector
}

func tokenize(text string) []string {
	var tokens []string
	for _, word := range tokenRegex.FindAllString(text, -1) {
		for _, t := range splitCodeToken(word) {
			if lower := strings.ToLower(t); lower != "" {
				tokens = append(tokens, lower)
			}
		}
	}
	return tokens
}

func splitCodeToken(token string) []string {
	if strings.Contains(token, "_") {
		var result []string
		for _, part := range strings.Split(token, "_") {
			if part != "" {
				result = append(result, splitCamelCase(part)...)
			}
		}
		return result
	}
	return splitCamelCase(token)
}

func splitCamelCase(s string) []string {
	if s == "" {
		return []string{}
	}
	var result []string
	var cur strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevLower := unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || nextLower {
				if cur.Len() > 0 {
					result = append(result, cur.String())
					cur.Reset()
				}
			}
		}
		cur.WriteRune(r)
	}
	if cur.Len() > 0 {
		result = append(result, cur.String())
	}
	return result
}

func filterStopWords(tokens []string) []string {
	var out []string
	for _, t := range tokens {
		if !stopWords[t] {
			out = append(out, t)
		}
	}
	return out
}

func normalizeForNgrams(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func ngrams(text string, n int) []string {
	if len(text) < n {
		return []string{}
	}
	out := make([]string, 0, len(text)-n+1)
	for i := 0; i <= len(text)-n; i++ {
		out = append(out, text[i:i+n])
	}
	return out
}

func hashToIndex(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}

func normalize(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, val := range v {
		out[i] = float32(float64(val) / magnitude)
	}
	return out
}
