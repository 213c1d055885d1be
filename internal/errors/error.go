package errors

import (
	"fmt"
)

// Category represents the type of error.
type Category string

const (
	CategoryConfig    Category = "config"
	CategoryStorage   Category = "storage"
	CategoryTransport Category = "transport"
	CategoryCLI       Category = "cli"
)

// Location points at the file (and optionally the key) that produced the
// error, e.g. a config file and the offending setting.
type Location struct {
	File string
	Key  string
}

// String returns the location as a formatted string.
func (l *Location) String() string {
	if l == nil {
		return ""
	}
	if l.Key != "" {
		return fmt.Sprintf("%s (%s)", l.File, l.Key)
	}
	return l.File
}

// TrialError is a coded error with an optional location and fix hint.
type TrialError struct {
	// Code is a unique error identifier (e.g., "E101").
	Code string

	// Category is the subsystem that raised the error.
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Location is the file or setting the error refers to.
	Location *Location

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Example shows a working setting or command line.
	Example string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *TrialError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *TrialError) Unwrap() error {
	return e.Wrapped
}

// WithLocation records the file the error refers to.
func (e *TrialError) WithLocation(file string) *TrialError {
	if e.Location == nil {
		e.Location = &Location{}
	}
	e.Location.File = file
	return e
}

// WithKey records the setting the error refers to.
func (e *TrialError) WithKey(key string) *TrialError {
	if e.Location == nil {
		e.Location = &Location{}
	}
	e.Location.Key = key
	return e
}

// WithSuggestion adds a fix suggestion to the error.
func (e *TrialError) WithSuggestion(s string) *TrialError {
	e.Suggestion = s
	return e
}

// WithExample adds an example to the error.
func (e *TrialError) WithExample(ex string) *TrialError {
	e.Example = ex
	return e
}

// WithDetail replaces the registered explanation.
func (e *TrialError) WithDetail(d string) *TrialError {
	e.Detail = d
	return e
}

// Wrap wraps another error.
func (e *TrialError) Wrap(err error) *TrialError {
	e.Wrapped = err
	return e
}

// New creates a TrialError from a registered error code.
func New(code string) *TrialError {
	template, ok := registry[code]
	if !ok {
		return &TrialError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &TrialError{
		Code:     code,
		Category: template.Category,
		Message:  template.Message,
		Detail:   template.Detail,
	}
}

// Newf creates a new TrialError with a formatted message (no code).
func Newf(category Category, format string, args ...any) *TrialError {
	return &TrialError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error in a TrialError.
func FromError(err error, code string) *TrialError {
	if err == nil {
		return nil
	}
	if te, ok := err.(*TrialError); ok {
		return te
	}
	return New(code).Wrap(err)
}
