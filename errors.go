package formstage

import (
	"errors"
	"fmt"
)

// ErrorKind classifies engine failures.
type ErrorKind string

const (
	// KindNotFound means a category, stage, field or version identifier does not exist.
	KindNotFound ErrorKind = "not_found"
	// KindValidation means input failed a precondition, such as a blank stage name.
	KindValidation ErrorKind = "validation_failed"
	// KindEmptyForm means a publish was attempted with zero fields.
	KindEmptyForm ErrorKind = "empty_form"
	// KindConflict means the stored value changed since this session last read it.
	KindConflict ErrorKind = "conflict"
	// KindStorageCorrupt means a stored document failed to parse. It is recovered
	// internally and only reported through logs, metrics and Doctor.
	KindStorageCorrupt ErrorKind = "storage_corrupt"
	// KindInvalidState means a Session operation is not allowed in the current state.
	KindInvalidState ErrorKind = "invalid_state"
	// KindReadOnly means a mutating Session operation was attempted outside edit mode.
	KindReadOnly ErrorKind = "read_only"
)

// Error is the typed failure returned by every engine operation.
type Error struct {
	Kind     ErrorKind
	Op       string
	Resource string
	ID       string
	Msg      string
	Err      error
}

func (e *Error) Error() string {
	msg := humanKind(e.Kind)
	switch {
	case e.Msg != "":
		msg = e.Msg
	case e.Resource != "" && e.ID != "":
		msg = fmt.Sprintf("%s %q: %s", e.Resource, e.ID, humanKind(e.Kind))
	case e.Resource != "":
		msg = fmt.Sprintf("%s: %s", e.Resource, humanKind(e.Kind))
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func humanKind(k ErrorKind) string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindValidation:
		return "validation failed"
	case KindEmptyForm:
		return "form has no fields"
	case KindConflict:
		return "changed by another session"
	case KindStorageCorrupt:
		return "stored data is corrupt"
	case KindInvalidState:
		return "not allowed in the current state"
	case KindReadOnly:
		return "edit mode is off"
	default:
		return string(k)
	}
}

// Sentinels for errors.Is.
var (
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrValidation     = &Error{Kind: KindValidation}
	ErrEmptyForm      = &Error{Kind: KindEmptyForm}
	ErrConflict       = &Error{Kind: KindConflict}
	ErrStorageCorrupt = &Error{Kind: KindStorageCorrupt}
	ErrInvalidState   = &Error{Kind: KindInvalidState}
	ErrReadOnly       = &Error{Kind: KindReadOnly}
)

// KindOf returns the kind of the first *Error in err's chain, or "" when there is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func notFound(op, resource, id string) error {
	return &Error{Kind: KindNotFound, Op: op, Resource: resource, ID: id}
}

func validationFailed(op, msg string) error {
	return &Error{Kind: KindValidation, Op: op, Msg: msg}
}
