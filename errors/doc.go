// Package errors provides structured error types for the wasmbind toolchain.
//
// Errors are categorized by Phase (where in the pipeline the error occurred)
// and Kind (error category). The Error type carries an item path and a cause
// chain so diagnostics can point at the exact export or field that failed.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseExtract, errors.KindMetadataParse).
//		Path("greet", "param[0]").
//		Detail("unknown value kind tag 0x%02x", tag).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.MalformedModule("section %d length mismatch", id)
//	err := errors.UseAfterFree(handle)
//
// All errors implement the standard error interface and support errors.Is/As.
// Is matches on Phase and Kind, so callers can test for a category without
// caring about the detail text.
package errors
