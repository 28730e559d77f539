package utils

import "fmt"

// StoreError wraps a connectivity or query failure against the event store.
// It is fatal for the analysis run; the store client owns transport retries.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError wraps err as a StoreError for operation op.
func NewStoreError(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

// ModelError marks a failed or malformed language-model response. Runs
// continue with a degraded fallback analysis instead of aborting.
type ModelError struct {
	Msg string
	Err error
}

func (e *ModelError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("model: %s", e.Msg)
	}
	return fmt.Sprintf("model: %s: %v", e.Msg, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// RunError reports which pipeline stage aborted an analysis run, with
// enough context for the caller to retry the whole run.
type RunError struct {
	Stage   string
	EventID string
	Err     error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("analysis run failed at %s for event %s: %v", e.Stage, e.EventID, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }
