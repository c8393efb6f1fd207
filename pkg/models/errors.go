package models

import (
	"errors"
	"fmt"
)

// ErrLocationUnavailable reports a location capture timeout or refusal.
// Escalation proceeds without location when this is returned.
var ErrLocationUnavailable = errors.New("location unavailable")

// ErrDuplicateEscalation reports that an escalation with the same dedupe
// key has already been processed.
var ErrDuplicateEscalation = errors.New("escalation already processed for dedupe key")

// ErrAlertNotFound reports a lookup for an alert id that was never created.
var ErrAlertNotFound = errors.New("alert not found")

// PersistenceError wraps a store write failure. The ingestion pipeline
// logs and surfaces it but keeps accepting readings.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NotificationFailure records a single contact that could not be reached.
// It never blocks other contacts or the broadcast step.
type NotificationFailure struct {
	Contact string
	Err     error
}

func (e *NotificationFailure) Error() string {
	return fmt.Sprintf("failed to notify contact %s: %v", e.Contact, e.Err)
}

func (e *NotificationFailure) Unwrap() error {
	return e.Err
}
