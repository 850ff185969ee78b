package models

import "time"

// Task types accepted on the embedding queue.
const (
	TaskTypeDocuments  = "documents"
	TaskTypeCollection = "collection"
)

// Task statuses. A task reaches exactly one terminal state: completed,
// partial or failed.
const (
	TaskStatusQueued     = "queued"
	TaskStatusProcessing = "processing"
	TaskStatusCompleted  = "completed"
	TaskStatusPartial    = "partial"
	TaskStatusFailed     = "failed"
)

// EmbeddingTask is the immutable descriptor pushed onto the queue by the API
// and consumed once by a worker. Ownership transfers on dequeue.
type EmbeddingTask struct {
	TaskID       string    `json:"task_id"`
	TaskType     string    `json:"task_type"`
	CollectionID string    `json:"collection_id,omitempty"`
	DocumentIDs  []string  `json:"document_ids"`
	CreatedAt    time.Time `json:"created_at"`
}

// TaskStatus is the mutable, last-writer-wins status record keyed by task id.
// The submitter creates it at "queued" before the enqueue so a poll right
// after submission never misses; afterwards only the worker that dequeued the
// task writes it.
type TaskStatus struct {
	TaskID         string    `json:"task_id"`
	Status         string    `json:"status"`
	Progress       float64   `json:"progress"`
	DocumentCount  int       `json:"document_count"`
	ProcessedCount int       `json:"processed_count"`
	CollectionID   string    `json:"collection_id,omitempty"`
	DocumentIDs    []string  `json:"document_ids"`
	UpdatedAt      time.Time `json:"updated_at"`
}
