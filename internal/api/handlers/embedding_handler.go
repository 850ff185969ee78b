package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	middleware "github.com/corpora-ai/corpora/internal/api/middlewares"
	"github.com/corpora-ai/corpora/internal/core"
	"github.com/corpora-ai/corpora/internal/models"
)

// EmbeddingHandler exposes the task submission and status endpoints. It never
// embeds anything itself; all heavy work happens in the worker process.
type EmbeddingHandler struct {
	dbclient core.DbClient
	queue    core.TaskQueue
	statuses core.TaskStatusStore
}

func NewEmbeddingHandler(dbclient core.DbClient, queue core.TaskQueue, statuses core.TaskStatusStore) *EmbeddingHandler {
	return &EmbeddingHandler{dbclient: dbclient, queue: queue, statuses: statuses}
}

type generateRequest struct {
	CollectionID string   `json:"collection_id"`
	DocumentIDs  []string `json:"document_ids"`
}

type generateResponse struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Generate validates the requested scope, writes the "queued" status record
// and then pushes the task. The status is written first so a poll immediately
// after submission never sees an unknown task id.
func (h *EmbeddingHandler) Generate(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if req.CollectionID == "" && len(req.DocumentIDs) == 0 {
		http.Error(w, "collection_id or document_ids required", http.StatusBadRequest)
		return
	}

	task := &models.EmbeddingTask{
		TaskID:    uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}

	if len(req.DocumentIDs) > 0 {
		// All-or-nothing: any unknown or foreign document rejects the task.
		for _, id := range req.DocumentIDs {
			doc, err := h.dbclient.GetDocumentOwned(r.Context(), id, userID)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			if doc == nil {
				http.Error(w, fmt.Sprintf("document %s not found", id), http.StatusNotFound)
				return
			}
		}
		task.TaskType = models.TaskTypeDocuments
		task.DocumentIDs = req.DocumentIDs
	} else {
		col, err := h.dbclient.GetCollectionOwned(r.Context(), req.CollectionID, userID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if col == nil {
			http.Error(w, "collection not found", http.StatusNotFound)
			return
		}
		task.TaskType = models.TaskTypeCollection
		task.CollectionID = req.CollectionID
	}

	// For collection tasks the worker resolves the final document set, but a
	// poll right after submission should already show the scope size.
	documentCount := len(task.DocumentIDs)
	if task.TaskType == models.TaskTypeCollection {
		ids, err := h.dbclient.ListDocumentIDsByCollection(r.Context(), task.CollectionID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		documentCount = len(ids)
	}

	queued := &models.TaskStatus{
		TaskID:        task.TaskID,
		Status:        models.TaskStatusQueued,
		Progress:      0,
		DocumentCount: documentCount,
		CollectionID:  task.CollectionID,
		DocumentIDs:   task.DocumentIDs,
	}
	if err := h.statuses.SetTaskStatus(r.Context(), queued); err != nil {
		http.Error(w, fmt.Sprintf("failed to record task: %v", err), http.StatusInternalServerError)
		return
	}

	if err := h.queue.Enqueue(r.Context(), task); err != nil {
		log.Printf("enqueue failed for task %s: %v", task.TaskID, err)
		http.Error(w, fmt.Sprintf("failed to enqueue task: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(generateResponse{
		TaskID:  task.TaskID,
		Status:  models.TaskStatusQueued,
		Message: "embedding task queued",
	})
}

// GetStatus returns the task status record for a task id. Ownership is
// enforced through the scope the task references.
func (h *EmbeddingHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	taskID := chi.URLParam(r, "taskID")
	status, err := h.statuses.GetTaskStatus(r.Context(), taskID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if status == nil {
		http.Error(w, "task not found", http.StatusNotFound)
		return
	}

	if !h.taskVisible(r, status, userID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// taskVisible checks the requester owns the task's scope: the collection for
// a collection task, otherwise any referenced document. Checking all ids
// keeps a task visible to its owner even after some of its documents were
// deleted.
func (h *EmbeddingHandler) taskVisible(r *http.Request, status *models.TaskStatus, userID string) bool {
	if status.CollectionID != "" {
		col, err := h.dbclient.GetCollectionOwned(r.Context(), status.CollectionID, userID)
		return err == nil && col != nil
	}
	if len(status.DocumentIDs) > 0 {
		for _, id := range status.DocumentIDs {
			doc, err := h.dbclient.GetDocumentOwned(r.Context(), id, userID)
			if err == nil && doc != nil {
				return true
			}
		}
		return false
	}
	return true
}

type documentStatusResponse struct {
	DocumentID      string `json:"document_id"`
	Status          string `json:"status"`
	TotalChunks     int    `json:"total_chunks"`
	ProcessedChunks int    `json:"processed_chunks"`
}

// GetDocumentStatus reports a document's durable embedding progress from its
// row and metadata. When metadata is absent it falls back to a live chunk
// count, so documents embedded before the progress stamping existed still
// report correctly.
func (h *EmbeddingHandler) GetDocumentStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	documentID := chi.URLParam(r, "documentID")
	doc, err := h.dbclient.GetDocumentOwned(r.Context(), documentID, userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if doc == nil {
		http.Error(w, "document not found", http.StatusNotFound)
		return
	}

	resp := documentStatusResponse{
		DocumentID: doc.ID,
		Status:     doc.Status,
	}

	if doc.Status == models.DocStatusUnprocessable {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
		return
	}

	if doc.Metadata != nil {
		resp.TotalChunks = doc.Metadata.TotalChunks
		resp.ProcessedChunks = doc.Metadata.ProcessedChunks
	}

	if doc.Metadata == nil && doc.Status != models.DocStatusProcessing {
		count, err := h.dbclient.CountChunksByDocument(r.Context(), doc.ID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if count > 0 {
			resp.Status = models.DocStatusCompleted
			resp.TotalChunks = count
			resp.ProcessedChunks = count
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// GetCollectionStatus reports the collection's embedding state. The latest
// task status record wins when one references the collection; otherwise the
// state is synthesized from the documents table.
func (h *EmbeddingHandler) GetCollectionStatus(w http.ResponseWriter, r *http.Request) {
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

	status, err := h.statuses.LatestTaskStatusByCollection(r.Context(), collectionID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if status != nil {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(status)
		return
	}

	// No task on record, count what is already embedded.
	ids, err := h.dbclient.ListDocumentIDsByCollection(r.Context(), collectionID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	embedded := 0
	for _, id := range ids {
		count, err := h.dbclient.CountChunksByDocument(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if count > 0 {
			embedded++
		}
	}

	synthesized := &models.TaskStatus{
		TaskID:         fmt.Sprintf("collection-status-%s", collectionID),
		Status:         models.DocStatusNotProcessed,
		DocumentCount:  len(ids),
		ProcessedCount: embedded,
		CollectionID:   collectionID,
		DocumentIDs:    ids,
		UpdatedAt:      time.Now().UTC(),
	}
	if len(ids) > 0 && embedded == len(ids) {
		synthesized.Status = models.TaskStatusCompleted
		synthesized.Progress = 1.0
	} else if len(ids) > 0 {
		synthesized.Progress = float64(embedded) / float64(len(ids))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(synthesized)
}
