// Package errors provides structured error types for the js-runtime library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: field path, expected/observed type names, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseToNative, errors.KindTypeMismatch).
//		Path("user", "age").
//		GoType("int32").
//		HostType("string").
//		Detail("cannot convert string to integer").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.TypeMismatch(errors.PhaseToNative, path, "int32", "string")
//	err := errors.NativeFailure("disk full")
//
// Every Kind has a host-facing class name (Kind.Name) used when the error is
// thrown into the host as an exception or used to reject a promise.
//
// All errors implement the standard error interface and support errors.Is/As.
// The package-level sentinels (ErrTypeMismatch, ...) match by kind in any phase.
package errors
