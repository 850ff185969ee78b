package ingestion

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"code.sajari.com/docconv"

	"github.com/corpora-ai/corpora/internal/core"
)

// ErrUnprocessable marks a document whose format is recognized as unsupported
// for extraction. It is a classification, not a failure: the worker records
// the document as "unprocessable" and moves on.
var ErrUnprocessable = errors.New("unprocessable document type")

// Content types docconv can extract text from in this deployment.
var supportedTypes = map[string]bool{
	"application/pdf": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
	"application/vnd.oasis.opendocument.text": true,
	"text/plain":    true,
	"text/markdown": true,
	"text/html":     true,
}

var _ core.TextExtractor = (*DocconvExtractor)(nil)

// DocconvExtractor implements core.TextExtractor using sajari/docconv.
type DocconvExtractor struct {
	useReadability bool
}

func NewDocconvExtractor(useReadability bool) *DocconvExtractor {
	return &DocconvExtractor{useReadability: useReadability}
}

// Extract converts the raw document bytes into plain text. Unknown content
// types return ErrUnprocessable; conversion failures are transient errors.
func (e *DocconvExtractor) Extract(ctx context.Context, data []byte, contentType string) (string, error) {
	if !supportedTypes[contentType] {
		return "", fmt.Errorf("%w: %s", ErrUnprocessable, contentType)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	res, err := docconv.Convert(bytes.NewReader(data), contentType, e.useReadability)
	if err != nil {
		return "", fmt.Errorf("docconv %s: %w", contentType, err)
	}
	return res.Body, nil
}
