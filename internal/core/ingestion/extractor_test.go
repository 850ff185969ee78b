package ingestion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_UnsupportedTypeIsUnprocessable(t *testing.T) {
	e := NewDocconvExtractor(false)
	for _, ct := range []string{"image/png", "video/mp4", "application/zip", ""} {
		_, err := e.Extract(context.Background(), []byte{0x00}, ct)
		assert.ErrorIs(t, err, ErrUnprocessable, "content type %q", ct)
	}
}

func TestExtract_PlainText(t *testing.T) {
	e := NewDocconvExtractor(false)
	text, err := e.Extract(context.Background(), []byte("hello world"), "text/plain")
	require.NoError(t, err)
	assert.Contains(t, text, "hello world")
}

func TestExtract_CancelledContext(t *testing.T) {
	e := NewDocconvExtractor(false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Extract(ctx, []byte("hello"), "text/plain")
	assert.ErrorIs(t, err, context.Canceled)
}
