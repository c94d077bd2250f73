package errors

import (
	"errors"
	"fmt"
	"time"
)

// Error is a layout engine error with enough context for the host to decide
// whether to block or degrade.
type Error struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Context    string    `json:"context,omitempty"`
	FieldID    string    `json:"field_id,omitempty"`
	PageNumber int       `json:"page_number,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Err        error     `json:"-"`
}

// ErrorType categorises layout errors.
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeTransientRender
	ErrorTypeCancelled
	ErrorTypeInvalidGeometry
	ErrorTypeBackendUnavailable
	ErrorTypeUnknownField
	ErrorTypeInvalidPage
	ErrorTypeNoActiveDrag
	ErrorTypePreviewUnavailable
)

// Error implements the error interface
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Type, e.Message)
	if e.Context != "" {
		msg += ": " + e.Context
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors of the same type, so sentinel values work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Type == e.Type && t.Message == ""
}

// String returns a string representation of the ErrorType
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeTransientRender:
		return "TRANSIENT_RENDER_FAILURE"
	case ErrorTypeCancelled:
		return "CANCELLED"
	case ErrorTypeInvalidGeometry:
		return "INVALID_GEOMETRY"
	case ErrorTypeBackendUnavailable:
		return "BACKEND_UNAVAILABLE"
	case ErrorTypeUnknownField:
		return "UNKNOWN_FIELD"
	case ErrorTypeInvalidPage:
		return "INVALID_PAGE"
	case ErrorTypeNoActiveDrag:
		return "NO_ACTIVE_DRAG"
	case ErrorTypePreviewUnavailable:
		return "PREVIEW_UNAVAILABLE"
	default:
		return "UNKNOWN"
	}
}

// IsBlocking reports whether the host should block preview and generation
// until the condition is resolved.
func (et ErrorType) IsBlocking() bool {
	return et == ErrorTypeBackendUnavailable
}

// IsSilent reports whether the error should never be surfaced to the user.
func (et ErrorType) IsSilent() bool {
	switch et {
	case ErrorTypeCancelled, ErrorTypeInvalidGeometry:
		return true
	default:
		return false
	}
}

// New creates an Error of the given type.
func New(errorType ErrorType, message string) *Error {
	return &Error{
		Type:      errorType,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Wrap wraps err as an Error of the given type.
func Wrap(errorType ErrorType, message string, err error) *Error {
	return &Error{
		Type:      errorType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// WithField attaches a field id.
func (e *Error) WithField(id string) *Error {
	e.FieldID = id
	return e
}

// WithPage attaches a page number.
func (e *Error) WithPage(pageNumber int) *Error {
	e.PageNumber = pageNumber
	return e
}

// WithContext adds context to an existing Error
func (e *Error) WithContext(context string) *Error {
	e.Context = context
	return e
}

// TypeOf returns the ErrorType carried by err, or ErrorTypeUnknown.
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// Sentinels for errors.Is checks.
var (
	ErrTransientRender    = &Error{Type: ErrorTypeTransientRender}
	ErrCancelled          = &Error{Type: ErrorTypeCancelled}
	ErrBackendUnavailable = &Error{Type: ErrorTypeBackendUnavailable}
	ErrUnknownField       = &Error{Type: ErrorTypeUnknownField}
	ErrInvalidPage        = &Error{Type: ErrorTypeInvalidPage}
	ErrNoActiveDrag       = &Error{Type: ErrorTypeNoActiveDrag}
	ErrPreviewUnavailable = &Error{Type: ErrorTypePreviewUnavailable}
)
