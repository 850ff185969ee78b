package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFastSimulated(dim int) *SimulatedEmbedder {
	s := NewSimulatedEmbedder(dim)
	s.delay = time.Millisecond
	return s
}

func TestSimulatedEmbedder_Dimension(t *testing.T) {
	s := newFastSimulated(32)
	vec, err := s.EmbedText(context.Background(), "some chunk text")
	require.NoError(t, err)
	assert.Len(t, vec, 32)
}

func TestSimulatedEmbedder_BlankInput(t *testing.T) {
	s := newFastSimulated(32)
	for _, in := range []string{"", "   ", "\n\t"} {
		vec, err := s.EmbedText(context.Background(), in)
		require.NoError(t, err)
		assert.Empty(t, vec)
	}
}

func TestSimulatedEmbedder_ValuesVary(t *testing.T) {
	s := newFastSimulated(16)
	a, err := s.EmbedText(context.Background(), "text")
	require.NoError(t, err)
	b, err := s.EmbedText(context.Background(), "text")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSimulatedEmbedder_CancelledContext(t *testing.T) {
	s := NewSimulatedEmbedder(16)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.EmbedText(ctx, "text")
	assert.ErrorIs(t, err, context.Canceled)
}
