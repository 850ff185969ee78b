package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	middleware "github.com/corpora-ai/corpora/internal/api/middlewares"
	"github.com/corpora-ai/corpora/internal/core"
	"github.com/corpora-ai/corpora/internal/core/llm"
	"github.com/corpora-ai/corpora/internal/models"
)

const defaultTopK = 5

const chatSystemPrompt = `You are a helpful assistant. Answer the user's question using only the provided context. If the context does not contain the answer, say you don't know.`

type ChatHandler struct {
	dbclient core.DbClient
	embedder core.EmbeddingProvider
	llm      core.LLMProvider
	embedDim int
}

func NewChatHandler(dbclient core.DbClient, embedder core.EmbeddingProvider, provider core.LLMProvider, embedDim int) *ChatHandler {
	return &ChatHandler{dbclient: dbclient, embedder: embedder, llm: provider, embedDim: embedDim}
}

type queryRequest struct {
	CollectionID string `json:"collection_id"`
	Query        string `json:"query"`
	TopK         int    `json:"top_k"`
}

type queryResponse struct {
	Answer  string                 `json:"answer"`
	Sources []models.DocumentChunk `json:"sources"`
}

// Query embeds the question, retrieves the nearest chunks from the collection
// and asks the LLM to answer over them.
func (h *ChatHandler) Query(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if req.CollectionID == "" {
		http.Error(w, "collection_id required", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		http.Error(w, "query required", http.StatusBadRequest)
		return
	}
	if req.TopK <= 0 {
		req.TopK = defaultTopK
	}

	col, err := h.dbclient.GetCollectionOwned(r.Context(), req.CollectionID, userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if col == nil {
		http.Error(w, "collection not found", http.StatusNotFound)
		return
	}

	vec, err := h.embedder.EmbedText(r.Context(), req.Query)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to embed query: %v", err), http.StatusInternalServerError)
		return
	}
	if len(vec) == 0 {
		http.Error(w, "query produced no embedding", http.StatusBadRequest)
		return
	}
	vec, _ = llm.ReconcileDimension(vec, h.embedDim)

	chunks, err := h.dbclient.SearchChunks(r.Context(), req.CollectionID, vec, req.TopK)
	if err != nil {
		http.Error(w, fmt.Sprintf("search failed: %v", err), http.StatusInternalServerError)
		return
	}

	var b strings.Builder
	b.WriteString("Context:\n")
	for i, c := range chunks {
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, c.ChunkText)
	}
	b.WriteString("Question: ")
	b.WriteString(req.Query)

	answer, err := h.llm.Generate(r.Context(), chatSystemPrompt, b.String())
	if err != nil {
		http.Error(w, fmt.Sprintf("generation failed: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(queryResponse{Answer: answer, Sources: chunks})
}
