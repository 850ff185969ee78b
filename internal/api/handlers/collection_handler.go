package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"mime"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	middleware "github.com/corpora-ai/corpora/internal/api/middlewares"
	"github.com/corpora-ai/corpora/internal/core"
	"github.com/corpora-ai/corpora/internal/models"
)

type CollectionHandler struct {
	dbclient     core.DbClient
	objectclient core.ObjectClient
}

func NewCollectionHandler(dbclient core.DbClient, objectclient core.ObjectClient) *CollectionHandler {
	return &CollectionHandler{dbclient: dbclient, objectclient: objectclient}
}

type createCollectionRequest struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

func (h *CollectionHandler) CreateCollection(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req createCollectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name required", http.StatusBadRequest)
		return
	}
	if req.Type == "" {
		req.Type = "documents"
	}

	col := &models.Collection{
		ID:          uuid.NewString(),
		UserID:      userID,
		Name:        req.Name,
		Type:        req.Type,
		Description: req.Description,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	if err := h.dbclient.CreateCollection(r.Context(), col); err != nil {
		http.Error(w, fmt.Sprintf("failed to create collection: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(col)
}

func (h *CollectionHandler) GetCollection(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	collectionID := chi.URLParam(r, "collectionID")
	col, err := h.dbclient.GetCollectionOwned(r.Context(), collectionID, userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if col == nil {
		http.Error(w, "collection not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(col)
}

func (h *CollectionHandler) ListCollections(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	collections, err := h.dbclient.ListCollectionsByUser(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(collections)
}

// UploadDocument stores the raw file in object storage and inserts a
// "not_processed" document row. Embedding happens later through the task
// queue, never inline with the upload.
func (h *CollectionHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	collectionID := chi.URLParam(r, "collectionID")
	col, err := h.dbclient.GetCollectionOwned(r.Context(), collectionID, userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if col == nil {
		http.Error(w, "collection not found", http.StatusNotFound)
		return
	}

	r.ParseMultipartForm(52 << 20)

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "invalid file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	// Sanitize the filename so the object key carries no path components.
	cleanName := filepath.Base(header.Filename)
	ext := filepath.Ext(cleanName)
	docID := uuid.NewString()
	key := fmt.Sprintf("%s/%s/%s/%s", userID, collectionID, docID, cleanName)

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mime.TypeByExtension(ext)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if err := h.objectclient.Upload(r.Context(), key, file, contentType); err != nil {
		http.Error(w, fmt.Sprintf("upload failed: %v", err), http.StatusInternalServerError)
		return
	}

	doc := &models.Document{
		ID:           docID,
		CollectionID: collectionID,
		Name:         cleanName,
		Type:         ext,
		Size:         header.Size,
		FilePath:     key,
		ContentType:  contentType,
		Status:       models.DocStatusNotProcessed,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	if err := h.dbclient.CreateDocument(r.Context(), doc); err != nil {
		log.Printf("DB insert failed for doc %s: %v", docID, err)
		http.Error(w, fmt.Sprintf("failed to store document metadata: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}

func (h *CollectionHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	collectionID := chi.URLParam(r, "collectionID")
	col, err := h.dbclient.GetCollectionOwned(r.Context(), collectionID, userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if col == nil {
		http.Error(w, "collection not found", http.StatusNotFound)
		return
	}

	documents, err := h.dbclient.ListDocumentsByCollection(r.Context(), collectionID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(documents)
}
