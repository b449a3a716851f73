// Package errors provides structured error types for the Inochi2D bindings.
//
// Errors are categorized by Phase (which lifecycle step failed) and Kind
// (error category). Native load failures map onto three kinds:
//
//	KindNative       the library reported a readable error message
//	KindUnavailable  the library failed without producing an error record
//	KindUndecodable  the library produced a record that is not valid text
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseLoad, errors.KindCallFailed).
//		Entry("inPuppetLoadEx").
//		Name("Aka.inx").
//		Cause(trap).
//		Build()
//
// Or match categories with the sentinels:
//
//	if errors.Is(err, inerrors.ErrUnavailable) { ... }
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
