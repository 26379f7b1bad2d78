// Package hashembed is a deterministic, dependency-free embedding provider
// based on signed feature hashing. Vectors are L2-normalized, so cosine and
// inner product rank identically. Used for local runs and reproducible tests.
package hashembed

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/kailas-cloud/nerprompt/internal/domain"
)

// DefaultDim is used when no dimension is configured.
const DefaultDim = 256

// Embedder maps text onto a fixed number of hashed buckets.
// Words count once each; scripts written without spaces contribute
// character unigrams and bigrams instead.
type Embedder struct {
	dim int
}

// New creates a hashing embedder producing dim-dimensional vectors.
func New(dim int) *Embedder {
	if dim <= 0 {
		dim = DefaultDim
	}
	return &Embedder{dim: dim}
}

// Dim returns the vector dimension.
func (e *Embedder) Dim() int { return e.dim }

// Embed implements domain.Embedder. Token usage is the number of features.
func (e *Embedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	vec, n := e.vector(text)
	return domain.EmbeddingResult{Embedding: vec, PromptTokens: n, TotalTokens: n}, nil
}

// BatchEmbed implements domain.BatchEmbedder.
func (e *Embedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, len(texts))}
	for i, t := range texts {
		vec, n := e.vector(t)
		out.Embeddings[i] = vec
		out.PromptTokens += n
		out.TotalTokens += n
	}
	return out, nil
}

// HealthCheck always succeeds.
func (e *Embedder) HealthCheck(_ context.Context) error { return nil }

func (e *Embedder) vector(text string) ([]float32, int) {
	acc := make([]float64, e.dim)
	features := Features(text)
	for _, f := range features {
		h := xxhash.Sum64String(f)
		idx := int(h % uint64(e.dim))
		if h>>63 == 1 {
			acc[idx]--
		} else {
			acc[idx]++
		}
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	vec := make([]float32, e.dim)
	if norm == 0 {
		return vec, len(features)
	}
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec, len(features)
}

// Features splits text into lowercase hashing features.
func Features(text string) []string {
	var out []string
	for _, word := range strings.FieldsFunc(strings.ToLower(text), isSeparator) {
		runes := []rune(word)
		if !unspaced(runes) {
			out = append(out, word)
			continue
		}
		for i := range runes {
			out = append(out, string(runes[i]))
			if i+1 < len(runes) {
				out = append(out, string(runes[i:i+2]))
			}
		}
	}
	return out
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsMark(r)
}

func unspaced(runes []rune) bool {
	for _, r := range runes {
		if unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Thai) {
			return true
		}
	}
	return false
}
