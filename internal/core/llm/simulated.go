package llm

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/corpora-ai/corpora/internal/core"
)

var _ core.EmbeddingProvider = (*SimulatedEmbedder)(nil)

// SimulatedEmbedder produces synthetic vectors drawn from N(0, 0.1) for
// deployments without embedding hardware or an API key. It is a declared
// test/dev mode, selected once at startup, never mixed with real embeddings
// in the same deployment.
type SimulatedEmbedder struct {
	dim   int
	delay time.Duration
}

func NewSimulatedEmbedder(dim int) *SimulatedEmbedder {
	return &SimulatedEmbedder{dim: dim, delay: 500 * time.Millisecond}
}

func (s *SimulatedEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	// Artificial delay approximating real inference time.
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	vec := make([]float32, s.dim)
	for i := range vec {
		vec[i] = float32(rand.NormFloat64() * 0.1)
	}
	return vec, nil
}
