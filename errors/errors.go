package errors

import (
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
)

// Phase indicates which operation produced the error
type Phase string

const (
	PhaseAssign   Phase = "assign"   // handle assignment and queries
	PhaseRegister Phase = "register" // registry bookkeeping
	PhaseReclaim  Phase = "reclaim"  // background freeing
	PhaseMotion   Phase = "motion"   // motion-state publish/read
	PhaseHeap     Phase = "heap"     // foreign heap operations
	PhaseConfig   Phase = "config"   // configuration loading
)

// Kind categorizes the error
type Kind string

const (
	KindPrecondition          Kind = "precondition"
	KindRegistryInconsistency Kind = "registry_inconsistency"
	KindForeignFree           Kind = "foreign_free"
	KindOutOfBounds           Kind = "out_of_bounds"
	KindAllocation            Kind = "allocation"
	KindInvalidInput          Kind = "invalid_input"
	KindNotFound              Kind = "not_found"
	KindClosed                Kind = "closed"
)

// Error is the structured error type used throughout physlink
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Object string // object kind, e.g. "MotionState"
	Detail string
	ID     uint64 // foreign id, 0 if not applicable
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Object != "" || e.ID != 0 {
		b.WriteString(": ")
		if e.Object != "" {
			b.WriteString(e.Object)
		}
		if e.ID != 0 {
			b.WriteByte('#')
			b.WriteString(strconv.FormatUint(e.ID, 16))
		}
	}

	if e.Detail != "" {
		if e.Object != "" || e.ID != 0 {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Object sets the object kind name
func (b *Builder) Object(kind string) *Builder {
	b.err.Object = kind
	return b
}

// ID sets the foreign id
func (b *Builder) ID(id uint64) *Builder {
	b.err.ID = id
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// ZeroID reports an attempt to use the reserved id 0
func ZeroID(phase Phase, object string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindPrecondition,
		Object: object,
		Detail: "id must be non-zero",
	}
}

// AlreadyAssigned reports an assign on a handle that already owns an id
func AlreadyAssigned(object string, current, requested uint64) *Error {
	return &Error{
		Phase:  PhaseAssign,
		Kind:   KindPrecondition,
		Object: object,
		ID:     current,
		Detail: fmt.Sprintf("already assigned, cannot assign %#x", requested),
		Value:  requested,
	}
}

// AlreadyTracked reports an assign of an id some other handle already tracks
func AlreadyTracked(object string, id uint64) *Error {
	return &Error{
		Phase:  PhaseAssign,
		Kind:   KindPrecondition,
		Object: object,
		ID:     id,
		Detail: "id is already tracked by another handle",
	}
}

// Unassigned reports a query against a handle with no id
func Unassigned(object string) *Error {
	return &Error{
		Phase:  PhaseAssign,
		Kind:   KindPrecondition,
		Object: object,
		Detail: "no native object assigned",
	}
}

// DuplicateTracker reports a register of an id that is already tracked
func DuplicateTracker(object string, id uint64) *Error {
	return &Error{
		Phase:  PhaseRegister,
		Kind:   KindRegistryInconsistency,
		Object: object,
		ID:     id,
		Detail: "id is already tracked",
	}
}

// MissingTracker reports an unregister of an id that is not tracked
func MissingTracker(id uint64) *Error {
	return &Error{
		Phase:  PhaseRegister,
		Kind:   KindRegistryInconsistency,
		ID:     id,
		Detail: "id is not tracked",
	}
}

// FreeFailed wraps an error returned by a foreign free-function
func FreeFailed(object string, id uint64, cause error) *Error {
	return &Error{
		Phase:  PhaseReclaim,
		Kind:   KindForeignFree,
		Object: object,
		ID:     id,
		Detail: "foreign free failed",
		Cause:  cause,
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(object string, size uint32, cause error) *Error {
	return &Error{
		Phase:  PhaseHeap,
		Kind:   KindAllocation,
		Object: object,
		Detail: fmt.Sprintf("failed to allocate %d bytes", size),
		Cause:  cause,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, id uint64, length, size int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		ID:     id,
		Detail: fmt.Sprintf("access of %d bytes exceeds object size %d", length, size),
		Value:  length,
	}
}

// NotFound creates a not-found error for an unknown or stale foreign id
func NotFound(phase Phase, id uint64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		ID:     id,
		Detail: "no live foreign object",
	}
}

// Closed reports use of a component after Close
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s closed", what),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// IsPrecondition reports whether err is a precondition violation
func IsPrecondition(err error) bool {
	var e *Error
	return stderrors.As(err, &e) && e.Kind == KindPrecondition
}

// IsRegistryInconsistency reports whether err signals a broken registry invariant
func IsRegistryInconsistency(err error) bool {
	var e *Error
	return stderrors.As(err, &e) && e.Kind == KindRegistryInconsistency
}
