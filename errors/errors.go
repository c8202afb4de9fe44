package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in the pipeline the error occurred
type Phase string

const (
	PhaseParse       Phase = "parse"       // binary module decoding
	PhaseExtract     Phase = "extract"     // descriptor section decoding
	PhaseMarshal     Phase = "marshal"     // marshalling rule resolution
	PhaseRewrite     Phase = "rewrite"     // module trimming
	PhaseGenerate    Phase = "generate"    // glue emission
	PhaseInstantiate Phase = "instantiate" // module instantiation
	PhaseRuntime     Phase = "runtime"     // host-side call handling
)

// Kind categorizes the error
type Kind string

const (
	KindMalformedModule      Kind = "malformed_module"
	KindMetadataParse        Kind = "metadata_parse"
	KindUnresolvedStruct     Kind = "unresolved_struct"
	KindUnsupportedValueKind Kind = "unsupported_value_kind"
	KindNotInitialized       Kind = "not_initialized"
	KindUseAfterFree         Kind = "use_after_free"
	KindTypeCoercion         Kind = "type_coercion"
	KindInstantiation        Kind = "instantiation"
	KindOutOfBounds          Kind = "out_of_bounds"
	KindInvalidUTF8          Kind = "invalid_utf8"
	KindInvalidArgument      Kind = "invalid_argument"
	KindAllocation           Kind = "allocation"
	KindNotFound             Kind = "not_found"
	KindIO                   Kind = "io"
	KindTrap                 Kind = "trap"
)

// Error is the structured error type used throughout the toolchain
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
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

// Path sets the item path (export name, field, argument index)
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
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

// MalformedModule creates a structural module error (bad magic/version,
// truncated or misordered sections). Fatal to a pipeline run.
func MalformedModule(detail string, args ...any) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindMalformedModule,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// MalformedModuleCause wraps a lower-level decode error as a structural failure.
func MalformedModuleCause(cause error, detail string, args ...any) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindMalformedModule,
		Detail: fmt.Sprintf(detail, args...),
		Cause:  cause,
	}
}

// MetadataParse creates a corrupt-metadata-section error. Fatal to a run.
func MetadataParse(path []string, detail string, args ...any) *Error {
	return &Error{
		Phase:  PhaseExtract,
		Kind:   KindMetadataParse,
		Path:   path,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// UnresolvedStruct creates a dangling struct reference error.
func UnresolvedStruct(structID uint32, referrer string) *Error {
	return &Error{
		Phase:  PhaseExtract,
		Kind:   KindUnresolvedStruct,
		Path:   []string{referrer},
		Detail: fmt.Sprintf("struct id %d is never declared", structID),
		Value:  structID,
	}
}

// UnsupportedValueKind marks a single export un-generatable. Collected per
// export rather than failing the run at first sight.
func UnsupportedValueKind(export, detail string) *Error {
	return &Error{
		Phase:  PhaseMarshal,
		Kind:   KindUnsupportedValueKind,
		Path:   []string{export},
		Detail: detail,
	}
}

// NotInitialized creates a call-before-ready error.
func NotInitialized(what string) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s is not initialized; call Init first", what),
	}
}

// UseAfterFree creates an error for operations on a disposed handle.
func UseAfterFree(handle uint32) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindUseAfterFree,
		Detail: fmt.Sprintf("handle %d has been freed", handle),
		Value:  handle,
	}
}

// TypeCoercion creates a host-value/descriptor mismatch error at a call boundary.
func TypeCoercion(path []string, got, want string) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindTypeCoercion,
		Path:   path,
		Detail: fmt.Sprintf("got %s, want %s", got, want),
	}
}

// Instantiation wraps a loader failure; the init state machine records it
// and transitions to Failed permanently.
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseInstantiate,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// OutOfBounds creates a linear-memory bounds error.
func OutOfBounds(offset, length uint32) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("memory access out of bounds: offset=%d length=%d", offset, length),
	}
}

// InvalidUTF8 creates an invalid UTF-8 error with a bounded preview.
func InvalidUTF8(phase Phase, path []string, data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidUTF8,
		Path:   path,
		Detail: fmt.Sprintf("invalid UTF-8 sequence: %x", preview),
	}
}

// InvalidArgument creates a configuration or argument validation error.
func InvalidArgument(phase Phase, detail string, args ...any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidArgument,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// AllocationFailed creates a guest allocation failure error.
func AllocationFailed(size uint32, cause error) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes", size),
		Cause:  cause,
	}
}

// Trap wraps a failure raised by the guest while executing an export.
func Trap(symbol string, cause error) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindTrap,
		Path:   []string{symbol},
		Detail: "guest call trapped",
		Cause:  cause,
	}
}

// NotFound creates a not-found error.
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
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

// Is reports whether any error in err's chain matches target.
// Re-exported so callers don't need to import both error packages.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Join wraps the given errors into a single error.
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}
