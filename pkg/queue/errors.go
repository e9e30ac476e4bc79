package queue

import "errors"

// Standard queue error types.
var (
	// ErrNoGroupsDefined indicates a workflow cannot be enqueued because it
	// exposes no input groups.
	ErrNoGroupsDefined = errors.New("workflow has no input groups defined")

	// ErrQueueRunning indicates a structural mutation was attempted while a
	// run is in progress.
	ErrQueueRunning = errors.New("queue is running")

	// ErrQueueEmpty indicates a run was requested with no steps enqueued.
	ErrQueueEmpty = errors.New("queue is empty")

	// ErrStepNotFound indicates the referenced step is not in the queue.
	ErrStepNotFound = errors.New("step not found")

	// ErrStopped indicates a run was interrupted by an explicit stop request.
	ErrStopped = errors.New("run stopped")
)

// IsStopped checks if an error indicates an explicit stop request.
func IsStopped(err error) bool {
	return errors.Is(err, ErrStopped)
}
