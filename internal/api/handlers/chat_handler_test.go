package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpora-ai/corpora/internal/api/handlers"
	"github.com/corpora-ai/corpora/internal/models"
)

type fixedEmbedder struct {
	vec []float32
}

func (f fixedEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return f.vec, nil
}

type fixedLLM struct {
	answer     string
	lastPrompt string
}

func (f *fixedLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.lastPrompt = userPrompt
	return f.answer, nil
}

func newChatRouter(db *fakeDB, emb fixedEmbedder, llm *fixedLLM) http.Handler {
	h := handlers.NewChatHandler(db, emb, llm, len(emb.vec))
	r := chi.NewRouter()
	r.Post("/chat/query", h.Query)
	return r
}

func TestQuery_UnknownCollection(t *testing.T) {
	router := newChatRouter(newFakeDB(), fixedEmbedder{vec: []float32{1}}, &fixedLLM{})
	rec := doRequest(t, router, http.MethodPost, "/chat/query", "user-1",
		map[string]any{"collection_id": "col-1", "query": "hello"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQuery_MissingFields(t *testing.T) {
	db := newFakeDB()
	db.collections["col-1"] = "user-1"
	router := newChatRouter(db, fixedEmbedder{vec: []float32{1}}, &fixedLLM{})

	rec := doRequest(t, router, http.MethodPost, "/chat/query", "user-1",
		map[string]any{"collection_id": "col-1", "query": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/chat/query", "user-1",
		map[string]any{"query": "hello"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuery_AnswersWithContext(t *testing.T) {
	db := newFakeDB()
	db.collections["col-1"] = "user-1"
	db.searchResults = []models.DocumentChunk{
		{ID: "ch-1", DocumentID: "doc-1", ChunkText: "the sky is blue"},
	}
	llm := &fixedLLM{answer: "It is blue."}
	router := newChatRouter(db, fixedEmbedder{vec: []float32{0.1, 0.2}}, llm)

	rec := doRequest(t, router, http.MethodPost, "/chat/query", "user-1",
		map[string]any{"collection_id": "col-1", "query": "what color is the sky?"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Answer  string                 `json:"answer"`
		Sources []models.DocumentChunk `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "It is blue.", resp.Answer)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "ch-1", resp.Sources[0].ID)

	assert.Contains(t, llm.lastPrompt, "the sky is blue")
	assert.Contains(t, llm.lastPrompt, "what color is the sky?")
}
