// Package errors provides structured error types for gcroot.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the failing path, the expected and actual shapes, the
// offending value and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseCall, errors.KindTypeMismatch).
//		Path("exports", "add").
//		Expected("function").
//		Actual("object").
//		Detail("value is not callable").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.AllocationFailed(errors.PhaseRoot, "root", 4096)
//	err := errors.NotFound(errors.PhaseCall, "export", "_start")
//
// Invariant violations (double deregistration, dangling references, a held
// no-GC token across a collecting call) are never reported through this
// package: they terminate the process.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
