// Package joberrors formalizes the error categories the job memory and
// analytics layer is specified to raise: NotInitialized, NotFound, IoError,
// Corrupt, Conflict, and Disabled. Every propagated error carries the jobId
// (when one applies) and the underlying cause, per the spec's error-handling
// design.
package joberrors

import (
	"errors"
	"fmt"
)

// Kind is one of the error categories the spec names.
type Kind string

const (
	NotInitializedKind Kind = "not_initialized"
	NotFoundKind       Kind = "not_found"
	IoErrorKind        Kind = "io_error"
	CorruptKind        Kind = "corrupt"
	ConflictKind       Kind = "conflict"
	DisabledKind       Kind = "disabled"
)

// Error is the concrete error value returned by this module's public
// operations. It wraps an optional cause and always carries a human-readable
// message built from Kind, JobID (if any), and the cause.
type Error struct {
	Kind    Kind
	JobID   string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.JobID != "" {
		msg = fmt.Sprintf("%s (jobId=%s)", msg, e.JobID)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is supports errors.Is(err, joberrors.NotFound("", "")) style comparisons by
// matching on Kind alone; callers typically use the Kind-specific helpers
// below instead (IsNotFound, IsConflict, ...).
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return e.Kind == te.Kind
	}
	return false
}

func newErr(kind Kind, jobID, message string, cause error) *Error {
	return &Error{Kind: kind, JobID: jobID, Message: message, Cause: cause}
}

// NotInitialized reports that a mutating call was made before initialize()
// succeeded.
func NotInitialized(message string) *Error {
	return newErr(NotInitializedKind, "", message, nil)
}

// NotFound reports that a jobId, gotcha/decision/context id, or time range
// had no data.
func NotFound(jobID, message string) *Error {
	return newErr(NotFoundKind, jobID, message, nil)
}

// IoErr wraps a filesystem failure.
func IoErr(jobID, message string, cause error) *Error {
	return newErr(IoErrorKind, jobID, message, cause)
}

// Corrupt reports unparseable JSON encountered at read time.
func Corrupt(jobID, message string, cause error) *Error {
	return newErr(CorruptKind, jobID, message, cause)
}

// Conflict reports a rejected attempt to mutate an immutable field (jobId).
func Conflict(jobID, message string) *Error {
	return newErr(ConflictKind, jobID, message, nil)
}

// Disabled reports that an optional subsystem was invoked while disabled;
// callers that treat disablement as a normal configuration should prefer
// returning the documented no-op value over this error (see spec §7).
func Disabled(message string) *Error {
	return newErr(DisabledKind, "", message, nil)
}

// Of reports whether err is a *Error of the given Kind.
func Of(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsNotFound reports whether err is a NotFound error.
func IsNotFound(err error) bool { return Of(err, NotFoundKind) }

// IsConflict reports whether err is a Conflict error.
func IsConflict(err error) bool { return Of(err, ConflictKind) }

// IsNotInitialized reports whether err is a NotInitialized error.
func IsNotInitialized(err error) bool { return Of(err, NotInitializedKind) }

// IsCorrupt reports whether err is a Corrupt error.
func IsCorrupt(err error) bool { return Of(err, CorruptKind) }

// IsIoError reports whether err is an IoError.
func IsIoError(err error) bool { return Of(err, IoErrorKind) }

// IsDisabled reports whether err is a Disabled error.
func IsDisabled(err error) bool { return Of(err, DisabledKind) }
