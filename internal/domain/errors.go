package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrScheduleInUse rejects deleting an interval or crontab that is
	// still referenced by a periodic task.
	ErrScheduleInUse = errors.New("schedule is referenced by a periodic task")

	// ErrDispatchUnavailable means the broker could not accept a message.
	// Transient: the scheduler leaves bookkeeping untouched so the entry
	// is due again on the next cycle.
	ErrDispatchUnavailable = errors.New("dispatch unavailable")

	// ErrNameTaken rejects creating a periodic task with a duplicate name.
	ErrNameTaken = errors.New("task name already exists")
)

// ValidationError describes a malformed schedule or task definition.
// It is surfaced to the admin caller and never reaches the loop.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Invalid builds a ValidationError for the given field.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
