package calltree

import "errors"

var (
	// ErrNoNodes is returned when a trace has to be fetched but no execution
	// node source is configured.
	ErrNoNodes = errors.New("no execution node source configured")

	// ErrQueueDisabled is returned by Enqueue when no task client is configured.
	ErrQueueDisabled = errors.New("task queue not configured")
)
