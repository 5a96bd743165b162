package clierr

import "errors"

// Type categorizes a refresh or storage failure for consistent messaging,
// result classification, and potential exit codes.
type Type string

const (
	// Configuration means required configuration or credentials were missing
	// or invalid before any browser work started.
	Configuration Type = "configuration"
	// NavigationTimeout means a page load or element wait exceeded its bound.
	NavigationTimeout Type = "navigation_timeout"
	// ManualTimeout means a human did not complete a login or second-factor
	// step within the configured window.
	ManualTimeout Type = "manual_timeout"
	// Validation means the post-login authenticated indicator was not found.
	Validation Type = "validation"
	// Storage means the auth state store failed to read or write.
	Storage Type = "storage"
	// Unexpected is anything uncaught; callers should attach a diagnostic.
	Unexpected Type = "unexpected"
)

// Error is a structured, classified error.
type Error struct {
	Type    Type
	Message string
	Err     error // optional underlying error
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Err }

// New constructs a new classified Error.
func New(t Type, msg string, err error) *Error { return &Error{Type: t, Message: msg, Err: err} }

// TypeOf returns the classification of err, or Unexpected when err carries
// no *Error anywhere in its chain.
func TypeOf(err error) Type {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Type
	}
	return Unexpected
}

// Is reports whether err is classified as t.
func Is(err error, t Type) bool { return TypeOf(err) == t }
