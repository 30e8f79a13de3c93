// Package errors provides structured error types for the jsibridge library.
//
// Errors are categorized by Phase (which part of the bridge failed) and Kind
// (error category). The Error type carries the Go and JS type names, a field
// path and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseView, errors.KindTypeMismatch).
//		GoType("goja.ArrayBuffer").
//		JSType("Object").
//		Detail("typed array backing store is not an ArrayBuffer").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.OutOfBounds(errors.PhaseView, offset, length, size)
//	err := errors.Misaligned(errors.PhaseView, "byte offset", 3, 4)
//
// Range errors are always returned before any engine state is touched, so a
// failed construction never leaves a partial view behind.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
