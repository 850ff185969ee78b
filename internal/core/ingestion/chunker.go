package ingestion

import (
	"strings"
)

// Normalize strips NUL bytes and collapses all whitespace runs (including
// newlines) into single spaces.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\x00", " ")
	return strings.Join(strings.Fields(text), " ")
}

// Chunk splits normalized text into overlapping windows of at most chunkSize
// runes, advancing chunkSize-overlap runes per step. The advance is floored
// at one rune so the loop terminates even when overlap >= chunkSize. Windows
// are trimmed and empty ones dropped; text that fits a single window is
// returned whole. Purely character-count based, no sentence or token
// awareness.
func Chunk(text string, chunkSize, overlap int) []string {
	norm := Normalize(text)
	if norm == "" {
		return nil
	}

	runes := []rune(norm)
	if len(runes) <= chunkSize {
		return []string{norm}
	}

	step := chunkSize - overlap
	if step < 1 {
		step = 1
	}

	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		window := strings.TrimSpace(string(runes[start:end]))
		if window != "" {
			chunks = append(chunks, window)
		}
	}
	return chunks
}

// Sanitize replaces control characters other than \n, \r and \t with spaces
// before a chunk is embedded and stored.
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return r
		}
		if r < 32 {
			return ' '
		}
		return r
	}, s)
}
