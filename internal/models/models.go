package models

import (
	"time"
)

// User represents an authenticated user of the system.
type User struct {
	ID           string    `db:"id" json:"id"`
	FirstName    string    `db:"first_name" json:"first_name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Collection is a named grouping of documents owned by a user.
type Collection struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	Name        string    `db:"name" json:"name"`
	Type        string    `db:"type" json:"type"`
	Description string    `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Document statuses. The documents row is the durable, authoritative progress
// indicator; the task status record in Redis is a transient projection of it.
const (
	DocStatusNotProcessed  = "not_processed"
	DocStatusProcessing    = "processing"
	DocStatusCompleted     = "completed"
	DocStatusUnprocessable = "unprocessable"
	DocStatusFailed        = "failed"
)

// Document represents a user-uploaded file inside a collection.
// FilePath is the object-storage key of the raw upload.
type Document struct {
	ID           string            `db:"id" json:"id"`
	CollectionID string            `db:"collection_id" json:"collection_id"`
	Name         string            `db:"name" json:"name"`
	Type         string            `db:"type" json:"type"` // file extension, e.g. ".pdf"
	Size         int64             `db:"size" json:"size"`
	FilePath     string            `db:"file_path" json:"file_path"`
	ContentType  string            `db:"content_type" json:"content_type"`
	Status       string            `db:"status" json:"status"`
	Metadata     *DocumentMetadata `db:"metadata" json:"metadata,omitempty"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time         `db:"updated_at" json:"updated_at"`
}

// DocumentMetadata is the jsonb progress blob stamped by the worker.
type DocumentMetadata struct {
	TotalChunks     int `json:"total_chunks"`
	ProcessedChunks int `json:"processed_chunks"`
}

// DocumentChunk represents one embedded text window of a document.
// ChunkIndex values are contiguous from 0 and unique per document; a
// reprocessing pass fully replaces them.
type DocumentChunk struct {
	ID         string    `db:"id" json:"id"`
	DocumentID string    `db:"document_id" json:"document_id"`
	ChunkIndex int       `db:"chunk_index" json:"chunk_index"`
	ChunkText  string    `db:"chunk_text" json:"chunk_text"`
	Embedding  []float32 `db:"embedding" json:"embedding"` // pgvector column
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
