package queue

import "errors"

var (
	// ErrQueueFull is returned by Enqueue when the queue is at capacity
	// and the incoming change's priority does not exceed the current
	// minimum resident priority.
	ErrQueueFull = errors.New("queue full: incoming priority does not exceed current minimum")

	// ErrNotFound is returned by Remove when no resident change matches
	// the given path.
	ErrNotFound = errors.New("no queued change for path")
)
