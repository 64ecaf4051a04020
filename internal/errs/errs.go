// Package errs defines the error taxonomy shared across every component.
// Lower layers return these typed errors; only the dispatcher (C9) ever
// converts one into an MCP-facing response or an HTTP status code.
package errs

import "fmt"

// Kind enumerates the error taxonomy from the error handling design.
type Kind string

const (
	KindValidation     Kind = "ValidationError"
	KindConfiguration  Kind = "ConfigurationError"
	KindAuthentication Kind = "AuthenticationError"
	KindNotFound       Kind = "NotFound"
	KindResourceExhaust Kind = "ResourceExhausted"
	KindDatabase       Kind = "DatabaseError"
	KindInitialization Kind = "InitializationError"
	KindCancelled      Kind = "Cancelled"
	KindInternal       Kind = "InternalError"
)

// Error is the common shape for every typed error in the taxonomy. Field
// is set when the error pertains to a single named field or parameter
// (used heavily by C2/C3/C5); it is empty otherwise. Err, when present,
// is wrapped and reachable via errors.Unwrap/errors.Is.
type Error struct {
	Kind    Kind
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a bare *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds a bare *Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Field builds a field-scoped *Error, used by validators that report which
// parameter or config key failed.
func Field(kind Kind, field, message string) *Error {
	return &Error{Kind: kind, Field: field, Message: message}
}

// Wrap attaches kind to an underlying error without losing it.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Validation, Configuration, Authentication, etc. are terse constructors
// for the common case of an unscoped message, mirroring how the teacher's
// ValidationError is constructed inline at each call site.
//
// Validation is field-scoped: every call site names the parameter, config
// key, or request field the failure pertains to (e.g. "arguments.limit",
// "sql"), so field is stored on Error.Field and format/args build Message
// separately, rather than being concatenated into one Sprintf call.
func Validation(field, format string, args ...interface{}) *Error {
	return Field(KindValidation, field, fmt.Sprintf(format, args...))
}

func Configuration(format string, args ...interface{}) *Error {
	return Newf(KindConfiguration, format, args...)
}

func Authentication(format string, args ...interface{}) *Error {
	return Newf(KindAuthentication, format, args...)
}

// NotFound is field-scoped the same way Validation is (its one call site
// names the resource kind that was missing, e.g. "pool").
func NotFound(field, format string, args ...interface{}) *Error {
	return Field(KindNotFound, field, fmt.Sprintf(format, args...))
}

func ResourceExhausted(format string, args ...interface{}) *Error {
	return Newf(KindResourceExhaust, format, args...)
}

func Database(format string, args ...interface{}) *Error {
	return Newf(KindDatabase, format, args...)
}

func Initialization(format string, args ...interface{}) *Error {
	return Newf(KindInitialization, format, args...)
}

func Cancelled(format string, args ...interface{}) *Error {
	return Newf(KindCancelled, format, args...)
}

func Internal(format string, args ...interface{}) *Error {
	return Newf(KindInternal, format, args...)
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, defaulting to KindInternal for anything else.
func KindOf(err error) Kind {
	var e *Error
	if As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// As is a thin indirection over errors.As kept local to avoid importing
// the standard errors package in call sites that only need Kind checks.
func As(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
