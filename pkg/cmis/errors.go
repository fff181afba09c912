package cmis

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigurationError reports a widget misconfiguration detected before any
// network call is attempted.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// AsConfiguration checks if an error is a ConfigurationError and returns it.
func AsConfiguration(err error) (*ConfigurationError, bool) {
	var ce *ConfigurationError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// ConnectionError reports a failed session or repository discovery.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s failed: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// AsConnection checks if an error is a ConnectionError and returns it.
func AsConnection(err error) (*ConnectionError, bool) {
	var ce *ConnectionError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// NotFoundError reports a failed object or path resolution.
type NotFoundError struct {
	Ref string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("object %s not found", e.Ref)
}

// IsNotFound reports whether the error is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// PartialDeleteError reports a subtree delete where some ids could not be
// deleted. Nothing may be removed locally when this is returned.
type PartialDeleteError struct {
	IDs []string
}

func (e *PartialDeleteError) Error() string {
	return "could not delete: " + e.FailedList()
}

// FailedList renders the undeleted ids as "id1; id2".
func (e *PartialDeleteError) FailedList() string {
	return strings.Join(e.IDs, "; ")
}

// AsPartialDelete checks if an error is a PartialDeleteError and returns it.
func AsPartialDelete(err error) (*PartialDeleteError, bool) {
	var pe *PartialDeleteError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// OperationError reports a generic create/update/check-in/check-out failure.
type OperationError struct {
	Op       string
	ObjectID string
	Message  string
	Err      error
}

func (e *OperationError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.ObjectID != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.ObjectID, msg)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *OperationError) Unwrap() error { return e.Err }
