package processing

import "errors"

var (
	// ErrQueueFull is returned when the save queue is at capacity.
	ErrQueueFull = errors.New("processing: queue full")
	// ErrControllerClosed is returned when enqueuing after Quit.
	ErrControllerClosed = errors.New("processing: task controller closed")
	// ErrInvalidRequest wraps save request validation failures.
	ErrInvalidRequest = errors.New("processing: invalid save request")
	// ErrNotStarted is returned by HandleSaveRequest before Start or after Stop.
	ErrNotStarted = errors.New("processing: service not running")
)
