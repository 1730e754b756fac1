package app

import "time"

// Operation tracks one CLI invocation. Its ID tags every log line the
// invocation writes, and its status is logged when the app closes.
type Operation struct {
	ID        string
	Command   string
	StartedAt time.Time
	Status    string // "success" or "error"
}

// NewOperation creates an operation for command started at now.
func NewOperation(command string, now time.Time) *Operation {
	now = now.UTC()
	return &Operation{
		ID:        now.Format("20060102T150405Z"),
		Command:   command,
		StartedAt: now,
		Status:    "success",
	}
}

// Observe marks the operation failed when err is non-nil and returns err.
func (op *Operation) Observe(err error) error {
	if err != nil {
		op.Status = "error"
	}
	return err
}

// Failed reports whether any observed step failed.
func (op *Operation) Failed() bool {
	return op.Status == "error"
}
