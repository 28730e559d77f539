package models

import (
	"fmt"
	"time"
)

// Status enumerates the lifecycle states a monitoring event can report.
type Status string

const (
	StatusProblem     Status = "PROBLEM"
	StatusOK          Status = "OK"
	StatusAcknowledge Status = "ACKNOWLEDGE"
)

// Severity bounds for the 0-5 ordinal scale, higher is worse.
const (
	SeverityMin = 0
	SeverityMax = 5
)

// Tag is a single key/value annotation on an event. Events may carry
// several tags with the same key.
type Tag struct {
	Key   string `json:"key" db:"-"`
	Value string `json:"value" db:"-"`
}

// Event is an immutable record of a monitoring alert as delivered by the
// ingestion layer. Once stored it is never mutated.
type Event struct {
	EventID     string    `json:"event_id" db:"event_id"`
	Host        string    `json:"host" db:"host"`
	Item        string    `json:"item" db:"item"`
	Trigger     string    `json:"trigger" db:"trigger_name"`
	Severity    int       `json:"severity" db:"severity"`
	Status      Status    `json:"status" db:"status"`
	Timestamp   time.Time `json:"timestamp" db:"timestamp"`
	Value       string    `json:"value" db:"value"`
	Description string    `json:"description,omitempty" db:"description"`
	Tags        []Tag     `json:"tags,omitempty" db:"-"`
}

// Validate rejects malformed events before any store write.
func (e *Event) Validate() error {
	if e.EventID == "" {
		return &ValidationError{Field: "event_id", Msg: "must not be empty"}
	}
	if e.Host == "" {
		return &ValidationError{Field: "host", Msg: "must not be empty"}
	}
	if e.Trigger == "" {
		return &ValidationError{Field: "trigger", Msg: "must not be empty"}
	}
	if e.Severity < SeverityMin || e.Severity > SeverityMax {
		return &ValidationError{Field: "severity", Msg: fmt.Sprintf("must be in [%d,%d]", SeverityMin, SeverityMax)}
	}
	switch e.Status {
	case StatusProblem, StatusOK, StatusAcknowledge:
	default:
		return &ValidationError{Field: "status", Msg: fmt.Sprintf("unknown status %q", e.Status)}
	}
	if e.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Msg: "must be set"}
	}
	return nil
}

// TagValues returns every value carried under the given tag key, in tag order.
func (e *Event) TagValues(key string) []string {
	var values []string
	for _, tag := range e.Tags {
		if tag.Key == key {
			values = append(values, tag.Value)
		}
	}
	return values
}

// ValidationError marks an event field that failed admission checks.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid event: %s %s", e.Field, e.Msg)
}
