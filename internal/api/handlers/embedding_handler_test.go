package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpora-ai/corpora/internal/api/handlers"
	middleware "github.com/corpora-ai/corpora/internal/api/middlewares"
	"github.com/corpora-ai/corpora/internal/models"
)

// --- fakes ---

type fakeDB struct {
	collections   map[string]string           // collection id -> owner
	documents     map[string]*models.Document // document id -> row
	docOwners     map[string]string           // document id -> owner
	chunkCounts   map[string]int              // document id -> stored chunks
	byColl        map[string][]string         // collection id -> doc ids
	searchResults []models.DocumentChunk
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		collections: map[string]string{},
		documents:   map[string]*models.Document{},
		docOwners:   map[string]string{},
		chunkCounts: map[string]int{},
		byColl:      map[string][]string{},
	}
}

func (f *fakeDB) CreateUser(ctx context.Context, u *models.User) error { return nil }
func (f *fakeDB) GetUserByEmail(ctx context.Context, e string) (*models.User, error) {
	return nil, nil
}
func (f *fakeDB) CreateCollection(ctx context.Context, c *models.Collection) error { return nil }
func (f *fakeDB) ListCollectionsByUser(ctx context.Context, u string) ([]models.Collection, error) {
	return nil, nil
}
func (f *fakeDB) GetCollectionOwned(ctx context.Context, c, u string) (*models.Collection, error) {
	if owner, ok := f.collections[c]; ok && owner == u {
		return &models.Collection{ID: c, UserID: u}, nil
	}
	return nil, nil
}
func (f *fakeDB) CreateDocument(ctx context.Context, d *models.Document) error { return nil }
func (f *fakeDB) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	return f.documents[id], nil
}
func (f *fakeDB) GetDocumentOwned(ctx context.Context, d, u string) (*models.Document, error) {
	if owner, ok := f.docOwners[d]; ok && owner == u {
		return f.documents[d], nil
	}
	return nil, nil
}
func (f *fakeDB) ListDocumentsByCollection(ctx context.Context, c string) ([]models.Document, error) {
	return nil, nil
}
func (f *fakeDB) ListDocumentIDsByCollection(ctx context.Context, c string) ([]string, error) {
	return f.byColl[c], nil
}
func (f *fakeDB) UpdateDocumentStatus(ctx context.Context, id, status string) error { return nil }
func (f *fakeDB) SetDocumentProcessing(ctx context.Context, id string, total int) error {
	return nil
}
func (f *fakeDB) SetDocumentCompleted(ctx context.Context, id string, processed int) error {
	return nil
}
func (f *fakeDB) DeleteChunksByDocument(ctx context.Context, id string) error { return nil }
func (f *fakeDB) InsertChunk(ctx context.Context, c *models.DocumentChunk) error { return nil }
func (f *fakeDB) CountChunksByDocument(ctx context.Context, id string) (int, error) {
	return f.chunkCounts[id], nil
}
func (f *fakeDB) SearchChunks(ctx context.Context, c string, v []float32, l int) ([]models.DocumentChunk, error) {
	return f.searchResults, nil
}
func (f *fakeDB) Close() error { return nil }

// fakeTaskStore records the order of status writes and enqueues so the
// write-before-enqueue contract is observable.
type fakeTaskStore struct {
	ops        []string
	statuses   map[string]*models.TaskStatus
	enqueued   []*models.EmbeddingTask
	enqueueErr error
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{statuses: map[string]*models.TaskStatus{}}
}

func (f *fakeTaskStore) Enqueue(ctx context.Context, task *models.EmbeddingTask) error {
	if f.enqueueErr != nil {
		return f.enqueueErr
	}
	f.ops = append(f.ops, "enqueue")
	f.enqueued = append(f.enqueued, task)
	return nil
}
func (f *fakeTaskStore) Dequeue(ctx context.Context, timeout time.Duration) (*models.EmbeddingTask, error) {
	return nil, nil
}
func (f *fakeTaskStore) SetTaskStatus(ctx context.Context, st *models.TaskStatus) error {
	f.ops = append(f.ops, "set_status")
	s := *st
	f.statuses[st.TaskID] = &s
	return nil
}
func (f *fakeTaskStore) GetTaskStatus(ctx context.Context, id string) (*models.TaskStatus, error) {
	return f.statuses[id], nil
}
func (f *fakeTaskStore) LatestTaskStatusByCollection(ctx context.Context, c string) (*models.TaskStatus, error) {
	for _, st := range f.statuses {
		if st.CollectionID == c {
			return st, nil
		}
	}
	return nil, nil
}

// --- helpers ---

func newRouter(db *fakeDB, store *fakeTaskStore) http.Handler {
	h := handlers.NewEmbeddingHandler(db, store, store)
	r := chi.NewRouter()
	r.Post("/embeddings/generate", h.Generate)
	r.Get("/embeddings/status/{taskID}", h.GetStatus)
	r.Get("/embeddings/document/{documentID}/status", h.GetDocumentStatus)
	r.Get("/embeddings/collection/{collectionID}/status", h.GetCollectionStatus)
	return r
}

func doRequest(t *testing.T, router http.Handler, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req = req.WithContext(middleware.WithUserID(req.Context(), userID))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// --- Generate ---

func TestGenerate_RequiresScope(t *testing.T) {
	router := newRouter(newFakeDB(), newFakeTaskStore())
	rec := doRequest(t, router, http.MethodPost, "/embeddings/generate", "user-1",
		map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerate_UnknownDocumentRejectsWholeTask(t *testing.T) {
	db := newFakeDB()
	db.docOwners["doc-1"] = "user-1"
	db.documents["doc-1"] = &models.Document{ID: "doc-1"}
	store := newFakeTaskStore()
	router := newRouter(db, store)

	rec := doRequest(t, router, http.MethodPost, "/embeddings/generate", "user-1",
		map[string]any{"document_ids": []string{"doc-1", "doc-missing"}})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, store.enqueued)
	assert.Empty(t, store.statuses)
}

func TestGenerate_ForeignCollectionIsNotFound(t *testing.T) {
	db := newFakeDB()
	db.collections["col-1"] = "someone-else"
	router := newRouter(db, newFakeTaskStore())

	rec := doRequest(t, router, http.MethodPost, "/embeddings/generate", "user-1",
		map[string]any{"collection_id": "col-1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGenerate_WritesStatusBeforeEnqueue(t *testing.T) {
	db := newFakeDB()
	db.collections["col-1"] = "user-1"
	store := newFakeTaskStore()
	router := newRouter(db, store)

	rec := doRequest(t, router, http.MethodPost, "/embeddings/generate", "user-1",
		map[string]any{"collection_id": "col-1"})

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, []string{"set_status", "enqueue"}, store.ops)

	var resp struct {
		TaskID string `json:"task_id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.TaskID)
	assert.Equal(t, models.TaskStatusQueued, resp.Status)

	require.Len(t, store.enqueued, 1)
	task := store.enqueued[0]
	assert.Equal(t, resp.TaskID, task.TaskID)
	assert.Equal(t, models.TaskTypeCollection, task.TaskType)
	assert.Equal(t, "col-1", task.CollectionID)

	st := store.statuses[resp.TaskID]
	require.NotNil(t, st)
	assert.Equal(t, models.TaskStatusQueued, st.Status)
}

func TestGenerate_CollectionTaskCountsDocumentsUpFront(t *testing.T) {
	db := newFakeDB()
	db.collections["col-1"] = "user-1"
	db.byColl["col-1"] = []string{"doc-1", "doc-2", "doc-3"}
	store := newFakeTaskStore()
	router := newRouter(db, store)

	rec := doRequest(t, router, http.MethodPost, "/embeddings/generate", "user-1",
		map[string]any{"collection_id": "col-1"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		TaskID string `json:"task_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	st := store.statuses[resp.TaskID]
	require.NotNil(t, st)
	assert.Equal(t, 3, st.DocumentCount)
}

func TestGenerate_EnqueueFailureIsServerError(t *testing.T) {
	db := newFakeDB()
	db.collections["col-1"] = "user-1"
	store := newFakeTaskStore()
	store.enqueueErr = fmt.Errorf("redis down")
	router := newRouter(db, store)

	rec := doRequest(t, router, http.MethodPost, "/embeddings/generate", "user-1",
		map[string]any{"collection_id": "col-1"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// --- GetStatus ---

func TestGetStatus_UnknownTask(t *testing.T) {
	router := newRouter(newFakeDB(), newFakeTaskStore())
	rec := doRequest(t, router, http.MethodGet, "/embeddings/status/nope", "user-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetStatus_ForeignScopeIsForbidden(t *testing.T) {
	db := newFakeDB()
	db.collections["col-1"] = "someone-else"
	store := newFakeTaskStore()
	store.statuses["task-1"] = &models.TaskStatus{TaskID: "task-1", CollectionID: "col-1"}
	router := newRouter(db, store)

	rec := doRequest(t, router, http.MethodGet, "/embeddings/status/task-1", "user-1", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetStatus_VisibleWhenAnyDocumentResolves(t *testing.T) {
	// The first referenced document was deleted; the task must stay visible
	// to its owner through the remaining one.
	db := newFakeDB()
	db.docOwners["doc-2"] = "user-1"
	db.documents["doc-2"] = &models.Document{ID: "doc-2"}
	store := newFakeTaskStore()
	store.statuses["task-1"] = &models.TaskStatus{
		TaskID:      "task-1",
		Status:      models.TaskStatusCompleted,
		DocumentIDs: []string{"doc-deleted", "doc-2"},
	}
	router := newRouter(db, store)

	rec := doRequest(t, router, http.MethodGet, "/embeddings/status/task-1", "user-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetStatus_ReturnsRecord(t *testing.T) {
	db := newFakeDB()
	db.collections["col-1"] = "user-1"
	store := newFakeTaskStore()
	store.statuses["task-1"] = &models.TaskStatus{
		TaskID:       "task-1",
		Status:       models.TaskStatusProcessing,
		Progress:     0.5,
		CollectionID: "col-1",
	}
	router := newRouter(db, store)

	rec := doRequest(t, router, http.MethodGet, "/embeddings/status/task-1", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var st models.TaskStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, models.TaskStatusProcessing, st.Status)
	assert.Equal(t, 0.5, st.Progress)
}

// --- GetDocumentStatus ---

func TestGetDocumentStatus_Unprocessable(t *testing.T) {
	db := newFakeDB()
	db.docOwners["doc-1"] = "user-1"
	db.documents["doc-1"] = &models.Document{ID: "doc-1", Status: models.DocStatusUnprocessable}
	router := newRouter(db, newFakeTaskStore())

	rec := doRequest(t, router, http.MethodGet, "/embeddings/document/doc-1/status", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.DocStatusUnprocessable, resp["status"])
}

func TestGetDocumentStatus_MetadataProgress(t *testing.T) {
	db := newFakeDB()
	db.docOwners["doc-1"] = "user-1"
	db.documents["doc-1"] = &models.Document{
		ID:       "doc-1",
		Status:   models.DocStatusCompleted,
		Metadata: &models.DocumentMetadata{TotalChunks: 10, ProcessedChunks: 10},
	}
	router := newRouter(db, newFakeTaskStore())

	rec := doRequest(t, router, http.MethodGet, "/embeddings/document/doc-1/status", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(10), resp["total_chunks"])
	assert.Equal(t, float64(10), resp["processed_chunks"])
}

func TestGetDocumentStatus_LiveCountFallback(t *testing.T) {
	// A document embedded before progress stamping has chunks but no metadata.
	db := newFakeDB()
	db.docOwners["doc-1"] = "user-1"
	db.documents["doc-1"] = &models.Document{ID: "doc-1", Status: models.DocStatusNotProcessed}
	db.chunkCounts["doc-1"] = 7
	router := newRouter(db, newFakeTaskStore())

	rec := doRequest(t, router, http.MethodGet, "/embeddings/document/doc-1/status", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.DocStatusCompleted, resp["status"])
	assert.Equal(t, float64(7), resp["processed_chunks"])
}

// --- GetCollectionStatus ---

func TestGetCollectionStatus_TaskRecordWins(t *testing.T) {
	db := newFakeDB()
	db.collections["col-1"] = "user-1"
	store := newFakeTaskStore()
	store.statuses["task-1"] = &models.TaskStatus{
		TaskID:       "task-1",
		Status:       models.TaskStatusProcessing,
		CollectionID: "col-1",
	}
	router := newRouter(db, store)

	rec := doRequest(t, router, http.MethodGet, "/embeddings/collection/col-1/status", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var st models.TaskStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "task-1", st.TaskID)
}

func TestGetCollectionStatus_SynthesizedFromChunks(t *testing.T) {
	db := newFakeDB()
	db.collections["col-1"] = "user-1"
	db.byColl["col-1"] = []string{"doc-1", "doc-2"}
	db.chunkCounts["doc-1"] = 3
	db.chunkCounts["doc-2"] = 4
	router := newRouter(db, newFakeTaskStore())

	rec := doRequest(t, router, http.MethodGet, "/embeddings/collection/col-1/status", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var st models.TaskStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "collection-status-col-1", st.TaskID)
	assert.Equal(t, models.TaskStatusCompleted, st.Status)
	assert.Equal(t, 2, st.ProcessedCount)
	assert.Equal(t, 1.0, st.Progress)
}

func TestGetCollectionStatus_PartiallyEmbedded(t *testing.T) {
	db := newFakeDB()
	db.collections["col-1"] = "user-1"
	db.byColl["col-1"] = []string{"doc-1", "doc-2"}
	db.chunkCounts["doc-1"] = 3
	router := newRouter(db, newFakeTaskStore())

	rec := doRequest(t, router, http.MethodGet, "/embeddings/collection/col-1/status", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var st models.TaskStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, models.DocStatusNotProcessed, st.Status)
	assert.Equal(t, 0.5, st.Progress)
}
