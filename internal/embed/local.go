// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agentic CDP Contributors

package embed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/romangoldberg/agentic-cdp-demo/internal/store"
)

// DefaultDimensions matches the 384-dimension sentence-transformer the
// reference deployment embeds with, so local and hosted indexes share a
// schema.
const DefaultDimensions = 384

// Compile-time interface check.
var _ store.Embedder = (*Local)(nil)

// Local is a deterministic feature-hashing embedder for offline development
// and tests. It hashes lowercased tokens into a fixed number of buckets and
// L2-normalizes the result, so texts sharing vocabulary land near each other
// under cosine similarity. It is not a semantic model; production deployments
// configure the openai provider.
type Local struct {
	dims int
}

// NewLocal creates a local embedder. dims <= 0 uses DefaultDimensions.
func NewLocal(dims int) *Local {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &Local{dims: dims}
}

func (l *Local) Dimensions() int { return l.dims }

// Embed hashes each text into a normalized bag-of-tokens vector. The output
// depends only on the input text, never on call order or prior state.
func (l *Local) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = l.embedOne(text)
	}
	return out, nil
}

func (l *Local) embedOne(text string) []float32 {
	v := make([]float32, l.dims)

	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		v[h.Sum64()%uint64(l.dims)]++
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
	return v
}
