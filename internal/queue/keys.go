package queue

// taskListKey is the shared FIFO the API pushes task descriptors onto and
// workers pop from.
const taskListKey = "embedding_tasks"

// TaskStatusKey returns the shared-store key of a task's status record.
func TaskStatusKey(taskID string) string {
	return "embedding_task:" + taskID
}
