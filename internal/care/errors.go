package care

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrForbidden         = errors.New("forbidden")
)

// ValidationError reports a missing or malformed input field. Nothing is written.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError reports a reference to an entity that does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConflictError reports a failed compare-and-set: the record changed between read and write.
// Callers must re-read before retrying.
type ConflictError struct {
	Kind     string
	ID       string
	Expected string
	Actual   string
}

func (e *ConflictError) Error() string {
	if e.Actual == "" {
		return fmt.Sprintf("%s %q: conflict, expected status %s", e.Kind, e.ID, e.Expected)
	}
	return fmt.Sprintf("%s %q: conflict, expected status %s but found %s", e.Kind, e.ID, e.Expected, e.Actual)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// InvalidTransitionError reports a transition that is never legal from the current state.
type InvalidTransitionError struct {
	Kind string
	ID   string
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s %q: cannot transition from %s to %s", e.Kind, e.ID, e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// ForbiddenError reports an actor whose role may not perform the operation.
type ForbiddenError struct {
	Role   Role
	Action string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("role %q may not %s", e.Role, e.Action)
}

func (e *ForbiddenError) Is(target error) bool { return target == ErrForbidden }

const (
	KindHelpRequest  = "help_request"
	KindSOSAlert     = "sos_alert"
	KindNotification = "notification"
	KindApplication  = "volunteer_application"
	KindVolunteer    = "volunteer"
	KindMoodLog      = "mood_log"
)

func notFound(kind, id string) error { return &NotFoundError{Kind: kind, ID: id} }

func invalid(field, reason string) error { return &ValidationError{Field: field, Reason: reason} }

// ErrNotificationFailed marks a transition that committed but whose notification was not
// recorded. The returned entity is valid; only the fan-out is missing.
var ErrNotificationFailed = errors.New("notification not recorded")

type NotificationError struct {
	Event     EventType
	SubjectID string
	Err       error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("%s for %s committed without notification: %v", e.Event, e.SubjectID, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }

func (e *NotificationError) Is(target error) bool { return target == ErrNotificationFailed }
