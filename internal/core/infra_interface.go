package core

import (
	"context"
	"io"
	"time"

	"github.com/corpora-ai/corpora/internal/models"
)

// DbClient defines all persistence operations the handlers and the embedding
// worker need. It abstracts Postgres/pgvector so higher layers never depend
// on a specific DB.
type DbClient interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	CreateCollection(ctx context.Context, col *models.Collection) error
	ListCollectionsByUser(ctx context.Context, userID string) ([]models.Collection, error)
	// GetCollectionOwned returns nil when the collection does not exist or is
	// not owned by userID; callers treat both the same way (not found).
	GetCollectionOwned(ctx context.Context, collectionID, userID string) (*models.Collection, error)

	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	// GetDocumentOwned resolves a document through its collection's owner;
	// nil when missing or owned by someone else.
	GetDocumentOwned(ctx context.Context, documentID, userID string) (*models.Document, error)
	ListDocumentsByCollection(ctx context.Context, collectionID string) ([]models.Document, error)
	ListDocumentIDsByCollection(ctx context.Context, collectionID string) ([]string, error)
	UpdateDocumentStatus(ctx context.Context, id string, status string) error
	// SetDocumentProcessing moves a document to "processing" and stamps
	// metadata with totalChunks / 0 processed.
	SetDocumentProcessing(ctx context.Context, id string, totalChunks int) error
	// SetDocumentCompleted moves a document to "completed" and stamps
	// metadata.processed_chunks.
	SetDocumentCompleted(ctx context.Context, id string, processedChunks int) error

	// DeleteChunksByDocument removes every chunk of the document; the worker
	// calls it before re-inserting so reprocessing fully replaces.
	DeleteChunksByDocument(ctx context.Context, documentID string) error
	// InsertChunk writes a single chunk in its own transaction.
	InsertChunk(ctx context.Context, chunk *models.DocumentChunk) error
	CountChunksByDocument(ctx context.Context, documentID string) (int, error)
	SearchChunks(ctx context.Context, collectionID string, queryVec []float32, limit int) ([]models.DocumentChunk, error)

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage holding the
// raw document uploads.
type ObjectClient interface {
	Upload(ctx context.Context, key string, data io.Reader, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// EmbeddingProvider converts a text chunk into a vector. Empty or
// whitespace-only input yields an empty vector, not an error.
type EmbeddingProvider interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// TextExtractor produces plain text from a raw document. A recognized but
// unsupported format is reported with ingestion.ErrUnprocessable rather than
// a transient error.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, contentType string) (string, error)
}

// LLMProvider answers chat queries over retrieved context.
type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}

// TaskQueue is the durable, at-least-once FIFO of embedding tasks shared
// between the API and worker processes.
type TaskQueue interface {
	Enqueue(ctx context.Context, task *models.EmbeddingTask) error
	// Dequeue blocks up to timeout and removes the head task; (nil, nil) on
	// timeout. The pop is destructive: a worker crash after Dequeue abandons
	// the task (no redelivery).
	Dequeue(ctx context.Context, timeout time.Duration) (*models.EmbeddingTask, error)
}

// TaskStatusStore holds the shared, last-writer-wins task status records.
type TaskStatusStore interface {
	SetTaskStatus(ctx context.Context, status *models.TaskStatus) error
	// GetTaskStatus returns (nil, nil) when no record exists for the id.
	GetTaskStatus(ctx context.Context, taskID string) (*models.TaskStatus, error)
	// LatestTaskStatusByCollection returns the newest record (by updated_at)
	// referencing the collection, or (nil, nil) when none exists.
	LatestTaskStatusByCollection(ctx context.Context, collectionID string) (*models.TaskStatus, error)
}
