// Package errors provides structured error types for physlink.
//
// Errors are categorized by Phase (which operation failed) and Kind (error category).
// The Error type carries the object kind and foreign id involved plus a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseAssign, errors.KindPrecondition).
//		Object("MotionState").
//		ID(0x7f30).
//		Detail("already assigned").
//		Build()
//
// Or use convenience constructors for the common failures:
//
//	err := errors.ZeroID(errors.PhaseAssign, "MotionState")
//	err := errors.FreeFailed("RigidBody", id, cause)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
