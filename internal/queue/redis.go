package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/corpora-ai/corpora/internal/core"
	"github.com/corpora-ai/corpora/internal/models"
)

var (
	_ core.TaskQueue       = (*RedisQueue)(nil)
	_ core.TaskStatusStore = (*RedisQueue)(nil)
)

// RedisQueue implements the embedding task queue and the task status store on
// a single Redis instance. The queue is a list popped with BRPOP, so delivery
// is at-least-once with destructive, atomic handoff: concurrent workers never
// receive the same task, but a worker crash after the pop abandons the task
// (its status record stays "processing" forever; there is no reconciliation
// sweep).
type RedisQueue struct {
	client *redis.Client
}

// NewRedisQueue creates a RedisQueue from a Redis URL.
func NewRedisQueue(redisURL string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisQueue{client: redis.NewClient(opts)}, nil
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

// Enqueue appends a task descriptor to the shared FIFO.
func (q *RedisQueue) Enqueue(ctx context.Context, task *models.EmbeddingTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task %s: %w", task.TaskID, err)
	}
	if err := q.client.LPush(ctx, taskListKey, payload).Err(); err != nil {
		return fmt.Errorf("lpush task %s: %w", task.TaskID, err)
	}
	return nil
}

// Dequeue blocks up to timeout for the next task and removes it from the
// list. Returns (nil, nil) when the wait times out.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*models.EmbeddingTask, error) {
	res, err := q.client.BRPop(ctx, timeout, taskListKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("brpop: %w", err)
	}
	// BRPOP returns [key, value].
	if len(res) != 2 {
		return nil, fmt.Errorf("brpop: unexpected reply length %d", len(res))
	}

	var task models.EmbeddingTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		// Malformed payloads are dropped, not surfaced: the pop already
		// removed them and an error here would trip the reconnect path.
		log.Printf("queue: dropping malformed task payload: %v", err)
		return nil, nil
	}
	return &task, nil
}

// SetTaskStatus writes the status record, last writer wins. Records carry
// their own updated_at stamp so readers can detect staleness.
func (q *RedisQueue) SetTaskStatus(ctx context.Context, status *models.TaskStatus) error {
	status.UpdatedAt = time.Now().UTC()
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal status %s: %w", status.TaskID, err)
	}
	if err := q.client.Set(ctx, TaskStatusKey(status.TaskID), payload, 0).Err(); err != nil {
		return fmt.Errorf("set status %s: %w", status.TaskID, err)
	}
	return nil
}

// GetTaskStatus returns the status record for a task id, or (nil, nil) when
// none exists.
func (q *RedisQueue) GetTaskStatus(ctx context.Context, taskID string) (*models.TaskStatus, error) {
	payload, err := q.client.Get(ctx, TaskStatusKey(taskID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get status %s: %w", taskID, err)
	}

	var status models.TaskStatus
	if err := json.Unmarshal(payload, &status); err != nil {
		return nil, fmt.Errorf("decode status %s: %w", taskID, err)
	}
	return &status, nil
}

// LatestTaskStatusByCollection scans the status records for the newest one
// referencing the collection, or (nil, nil) when there is none.
func (q *RedisQueue) LatestTaskStatusByCollection(ctx context.Context, collectionID string) (*models.TaskStatus, error) {
	var latest *models.TaskStatus

	iter := q.client.Scan(ctx, 0, TaskStatusKey("*"), 0).Iterator()
	for iter.Next(ctx) {
		payload, err := q.client.Get(ctx, iter.Val()).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get status %s: %w", iter.Val(), err)
		}

		var status models.TaskStatus
		if err := json.Unmarshal(payload, &status); err != nil {
			continue // skip records written by incompatible versions
		}
		if status.CollectionID != collectionID {
			continue
		}
		if latest == nil || status.UpdatedAt.After(latest.UpdatedAt) {
			s := status
			latest = &s
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan statuses: %w", err)
	}
	return latest, nil
}
