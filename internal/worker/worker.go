package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/corpora-ai/corpora/internal/core"
	"github.com/corpora-ai/corpora/internal/core/ingestion"
	"github.com/corpora-ai/corpora/internal/core/llm"
	"github.com/corpora-ai/corpora/internal/models"
)

// Queue is the worker's view of the task queue: the blocking pop plus the
// health probe driven by the reconnect loop.
type Queue interface {
	core.TaskQueue
	Ping(ctx context.Context) error
}

// Config carries the pipeline and loop knobs the worker needs.
type Config struct {
	ChunkSize         int
	ChunkOverlap      int
	EmbedDim          int
	PollTimeout       time.Duration
	ReconnectAttempts int
	ReconnectDelay    time.Duration
}

// Worker is the sequential embedding task consumer. One instance processes
// one task at a time; multiple instances may run side by side, each popping
// its own tasks. Processing is deliberately serial across documents and
// chunks to bound the embedding load.
type Worker struct {
	db        core.DbClient
	queue     Queue
	statuses  core.TaskStatusStore
	objects   core.ObjectClient
	embedder  core.EmbeddingProvider
	extractor core.TextExtractor
	cfg       Config
}

func New(db core.DbClient, queue Queue, statuses core.TaskStatusStore, objects core.ObjectClient,
	embedder core.EmbeddingProvider, extractor core.TextExtractor, cfg Config) *Worker {
	return &Worker{
		db:        db,
		queue:     queue,
		statuses:  statuses,
		objects:   objects,
		embedder:  embedder,
		extractor: extractor,
		cfg:       cfg,
	}
}

// Run is the main consumer loop. It blocks until ctx is cancelled or the
// queue stays unreachable through the whole reconnect budget, which is fatal:
// the process exits and the supervisor restarts it.
func (w *Worker) Run(ctx context.Context) error {
	log.Println("worker: starting consumer loop")

	for {
		select {
		case <-ctx.Done():
			log.Println("worker: shutting down")
			return nil
		default:
		}

		task, err := w.queue.Dequeue(ctx, w.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("worker: dequeue failed: %v", err)
			if !w.awaitQueue(ctx) {
				return fmt.Errorf("queue unreachable after %d attempts", w.cfg.ReconnectAttempts)
			}
			continue
		}
		if task == nil {
			continue // poll timeout, loop for liveness
		}
		if task.TaskID == "" {
			log.Println("worker: dropping task with empty task_id")
			continue
		}

		log.Printf("worker: processing task %s (%s)", task.TaskID, task.TaskType)
		w.processTask(ctx, task)
	}
}

// awaitQueue pings the queue with a bounded number of attempts and a fixed
// delay between them. False means the budget is exhausted.
func (w *Worker) awaitQueue(ctx context.Context) bool {
	for attempt := 1; attempt <= w.cfg.ReconnectAttempts; attempt++ {
		log.Printf("worker: queue reconnect attempt %d/%d", attempt, w.cfg.ReconnectAttempts)
		if err := w.queue.Ping(ctx); err == nil {
			return true
		}
		select {
		case <-time.After(w.cfg.ReconnectDelay):
		case <-ctx.Done():
			return false
		}
	}
	return false
}

// processTask resolves the task's scope to a document id list and drives the
// per-document loop. A collection task expands to the collection's documents
// as of now; concurrent membership changes are not reflected.
func (w *Worker) processTask(ctx context.Context, task *models.EmbeddingTask) {
	switch task.TaskType {
	case models.TaskTypeDocuments:
		w.processDocuments(ctx, task, task.DocumentIDs)

	case models.TaskTypeCollection:
		ids, err := w.db.ListDocumentIDsByCollection(ctx, task.CollectionID)
		if err != nil {
			log.Printf("worker: task %s: resolving collection %s: %v", task.TaskID, task.CollectionID, err)
			w.writeStatus(ctx, task, nil, models.TaskStatusFailed, 0, 0, 0)
			return
		}
		w.processDocuments(ctx, task, ids)

	default:
		log.Printf("worker: task %s: unknown task type %q", task.TaskID, task.TaskType)
	}
}

// processDocuments runs the per-document loop with fault isolation: one
// document's failure never aborts the batch. processedCount counts successes
// only; a status record with updated progress is written after every attempt.
func (w *Worker) processDocuments(ctx context.Context, task *models.EmbeddingTask, ids []string) {
	total := len(ids)
	processed := 0

	if total == 0 {
		// Vacuous success: nothing to do is not a failure.
		w.writeStatus(ctx, task, ids, models.TaskStatusCompleted, 1.0, 0, 0)
		return
	}

	w.writeStatus(ctx, task, ids, models.TaskStatusProcessing, 0, total, 0)

	for _, id := range ids {
		inserted, expected, err := w.processDocument(ctx, id)
		switch {
		case err != nil:
			log.Printf("worker: task %s: document %s failed: %v", task.TaskID, id, err)
		case expected > 0 && inserted == 0:
			// Every chunk of a chunkable document failed; not a success.
			log.Printf("worker: task %s: document %s produced no chunks (expected %d)", task.TaskID, id, expected)
		default:
			processed++
		}

		w.writeStatus(ctx, task, ids, models.TaskStatusProcessing,
			float64(processed)/float64(total), total, processed)
	}

	final := models.TaskStatusPartial
	if processed == total {
		final = models.TaskStatusCompleted
	}
	w.writeStatus(ctx, task, ids, final, float64(processed)/float64(total), total, processed)
}

// processDocument runs the checkpoint sequence for a single document:
// fetch row, verify backing object, extract, chunk, full-replace the stored
// chunks, then stamp completion. It returns how many chunks were inserted
// and how many were expected; an unprocessable document is a zero-chunk
// success, not an error.
func (w *Worker) processDocument(ctx context.Context, documentID string) (inserted, expected int, err error) {
	doc, err := w.db.GetDocumentByID(ctx, documentID)
	if err != nil {
		return 0, 0, fmt.Errorf("fetch document: %w", err)
	}
	if doc == nil {
		return 0, 0, fmt.Errorf("document %s not found", documentID)
	}

	exists, err := w.objects.Exists(ctx, doc.FilePath)
	if err != nil {
		return 0, 0, w.failDocument(ctx, doc.ID, fmt.Errorf("check object %s: %w", doc.FilePath, err))
	}
	if !exists {
		return 0, 0, w.failDocument(ctx, doc.ID, fmt.Errorf("object %s not found", doc.FilePath))
	}

	data, err := w.objects.Get(ctx, doc.FilePath)
	if err != nil {
		return 0, 0, w.failDocument(ctx, doc.ID, fmt.Errorf("fetch object %s: %w", doc.FilePath, err))
	}

	text, err := w.extractor.Extract(ctx, data, doc.ContentType)
	if errors.Is(err, ingestion.ErrUnprocessable) {
		// Known-unsupported format: record it and succeed with zero output.
		log.Printf("worker: document %s is unprocessable: %v", doc.ID, err)
		if uerr := w.db.UpdateDocumentStatus(ctx, doc.ID, models.DocStatusUnprocessable); uerr != nil {
			return 0, 0, fmt.Errorf("mark unprocessable: %w", uerr)
		}
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, w.failDocument(ctx, doc.ID, fmt.Errorf("extract text: %w", err))
	}

	chunks := ingestion.Chunk(text, w.cfg.ChunkSize, w.cfg.ChunkOverlap)
	expected = len(chunks)

	if err := w.db.SetDocumentProcessing(ctx, doc.ID, expected); err != nil {
		return 0, expected, w.failDocument(ctx, doc.ID, fmt.Errorf("mark processing: %w", err))
	}

	// Full replace: reprocessing must leave exactly the new chunk set.
	if err := w.db.DeleteChunksByDocument(ctx, doc.ID); err != nil {
		return 0, expected, w.failDocument(ctx, doc.ID, fmt.Errorf("delete existing chunks: %w", err))
	}

	for i, chunk := range chunks {
		if w.storeChunk(ctx, doc.ID, i, chunk) {
			inserted++
		}
	}

	if err := w.db.SetDocumentCompleted(ctx, doc.ID, inserted); err != nil {
		return inserted, expected, fmt.Errorf("mark completed: %w", err)
	}

	log.Printf("worker: document %s: stored %d/%d chunks", doc.ID, inserted, expected)
	return inserted, expected, nil
}

// storeChunk sanitizes, embeds, reconciles the dimension and inserts one
// chunk. Each insert commits on its own, so a failure here is logged and
// skipped without touching sibling chunks.
func (w *Worker) storeChunk(ctx context.Context, documentID string, index int, text string) bool {
	sanitized := ingestion.Sanitize(text)

	vec, err := w.embedder.EmbedText(ctx, sanitized)
	if err != nil {
		log.Printf("worker: document %s chunk %d: embed failed: %v", documentID, index, err)
		return false
	}
	if len(vec) == 0 {
		log.Printf("worker: document %s chunk %d: no embedding produced, skipping", documentID, index)
		return false
	}

	vec, adjusted := llm.ReconcileDimension(vec, w.cfg.EmbedDim)
	if adjusted {
		log.Printf("worker: document %s chunk %d: embedding reconciled to %d dims", documentID, index, w.cfg.EmbedDim)
	}

	err = w.db.InsertChunk(ctx, &models.DocumentChunk{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		ChunkIndex: index,
		ChunkText:  sanitized,
		Embedding:  vec,
	})
	if err != nil {
		log.Printf("worker: document %s chunk %d: insert failed: %v", documentID, index, err)
		return false
	}
	return true
}

// failDocument best-effort marks the document row failed and passes the
// original error through.
func (w *Worker) failDocument(ctx context.Context, documentID string, cause error) error {
	if err := w.db.UpdateDocumentStatus(ctx, documentID, models.DocStatusFailed); err != nil {
		log.Printf("worker: document %s: marking failed: %v", documentID, err)
	}
	return cause
}

// writeStatus flushes a task status record. Status writes are visibility,
// not correctness: a failed write is logged and processing continues.
func (w *Worker) writeStatus(ctx context.Context, task *models.EmbeddingTask, ids []string,
	status string, progress float64, total, processed int) {
	if ids == nil {
		ids = task.DocumentIDs
	}
	err := w.statuses.SetTaskStatus(ctx, &models.TaskStatus{
		TaskID:         task.TaskID,
		Status:         status,
		Progress:       progress,
		DocumentCount:  total,
		ProcessedCount: processed,
		CollectionID:   task.CollectionID,
		DocumentIDs:    ids,
	})
	if err != nil {
		log.Printf("worker: task %s: status write failed: %v", task.TaskID, err)
	}
}
