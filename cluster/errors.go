package cluster

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrAllocation is returned when a task asks a worker for more device
	// memory than it has left. Tasks failing with it are never retried.
	ErrAllocation = errors.New("cluster: device memory exhausted")

	// ErrTaskFailed matches every error produced by a submitted task.
	ErrTaskFailed = errors.New("cluster: task failed")

	// ErrUnknownWorker is returned when an affinity hint names no worker.
	ErrUnknownWorker = errors.New("cluster: unknown worker")

	// ErrClosed is returned for submissions after Close.
	ErrClosed = errors.New("cluster: client closed")
)

// TaskError wraps the failure of a single task with its key and placement.
// errors.Is(err, ErrTaskFailed) holds for every TaskError; the underlying
// cause stays reachable through Unwrap.
type TaskError struct {
	Key    string
	Worker string
	Err    error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("cluster: task %s on %s: %v", e.Key, e.Worker, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// Is reports ErrTaskFailed as a match.
func (e *TaskError) Is(target error) bool { return target == ErrTaskFailed }
