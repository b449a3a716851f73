package errors

import (
	"fmt"
	"strings"
)

// Phase indicates which lifecycle step produced the error
type Phase string

const (
	PhaseInit    Phase = "init"    // native context setup
	PhaseLoad    Phase = "load"    // puppet construction
	PhaseUpdate  Phase = "update"  // per-frame update
	PhaseDraw    Phase = "draw"    // puppet draw
	PhaseScene   Phase = "scene"   // scene begin/draw/end
	PhaseDispose Phase = "dispose" // handle teardown
	PhaseEngine  Phase = "engine"  // backend compile/instantiate/bind
	PhaseQuery   Phase = "query"   // read-only native queries
)

// Kind categorizes the error
type Kind string

const (
	KindInitialization Kind = "initialization"
	KindNative         Kind = "native"
	KindUnavailable    Kind = "unavailable"
	KindUndecodable    Kind = "undecodable"
	KindClosed         Kind = "closed"
	KindUnsupported    Kind = "unsupported"
	KindInvalidInput   Kind = "invalid_input"
	KindNotFound       Kind = "not_found"
	KindCallFailed     Kind = "call_failed"
)

// Sentinels for errors.Is. They carry no phase, so they match any phase.
var (
	ErrInitialization = &Error{Kind: KindInitialization}
	ErrNative         = &Error{Kind: KindNative}
	ErrUnavailable    = &Error{Kind: KindUnavailable}
	ErrUndecodable    = &Error{Kind: KindUndecodable}
	ErrClosed         = &Error{Kind: KindClosed}
	ErrUnsupported    = &Error{Kind: KindUnsupported}
)

// Error is the structured error type used throughout the bindings
type Error struct {
	Cause  error
	Phase  Phase
	Kind   Kind
	Entry  string // native entry point, e.g. inPuppetLoadEx
	Name   string // display name of the resource involved
	Detail string
	// Message is the text reported by the native library, set for KindNative.
	Message string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	if e.Phase != "" {
		b.WriteByte('[')
		b.WriteString(string(e.Phase))
		b.WriteString("] ")
	}
	b.WriteString(string(e.Kind))

	if e.Name != "" {
		b.WriteString(" for ")
		b.WriteString(e.Name)
	}

	if e.Entry != "" {
		b.WriteString(" in ")
		b.WriteString(e.Entry)
	}

	switch {
	case e.Message != "":
		b.WriteString(": ")
		b.WriteString(e.Message)
	case e.Detail != "":
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

// Is reports whether target matches this error.
// Kind must match; Phase must match only when the target sets one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Kind != t.Kind {
		return false
	}
	return t.Phase == "" || e.Phase == t.Phase
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

// Entry sets the native entry point name
func (b *Builder) Entry(name string) *Builder {
	b.err.Entry = name
	return b
}

// Name sets the resource display name
func (b *Builder) Name(name string) *Builder {
	b.err.Name = name
	return b
}

// Message sets the native message
func (b *Builder) Message(msg string) *Builder {
	b.err.Message = msg
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

// Convenience constructors for the native failure taxonomy

// Initialization creates a native context setup error
func Initialization(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseInit,
		Kind:   KindInitialization,
		Detail: detail,
		Cause:  cause,
	}
}

// Native creates an error carrying the text the native library reported
func Native(phase Phase, name, message string) *Error {
	return &Error{
		Phase:   phase,
		Kind:    KindNative,
		Name:    name,
		Message: message,
	}
}

// Unavailable creates an error for a native failure with no error record
func Unavailable(phase Phase, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnavailable,
		Name:   name,
		Detail: "unknown error, native binding inconsistency",
	}
}

// Undecodable creates an error for a native error record that is not text
func Undecodable(phase Phase, name string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUndecodable,
		Name:   name,
		Detail: "unknown error, text decoding failed",
		Cause:  cause,
	}
}

// InvalidUTF8 creates a decoding error for a native string
func InvalidUTF8(phase Phase, data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Phase:  phase,
		Kind:   KindUndecodable,
		Detail: fmt.Sprintf("invalid UTF-8 sequence: %x", preview),
	}
}

// OutOfBounds creates a decoding error for a record pointing outside memory
func OutOfBounds(phase Phase, offset, length uint32, size uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUndecodable,
		Detail: fmt.Sprintf("range [%d, %d) out of bounds (memory size %d)", offset, uint64(offset)+uint64(length), size),
	}
}

// Closed creates a use-after-close error
func Closed(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Name:   name,
		Detail: fmt.Sprintf("%s is closed", what),
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
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

// CallFailed wraps a failure to execute a native entry point
func CallFailed(phase Phase, entry string, cause error) *Error {
	return &Error{
		Phase: phase,
		Kind:  KindCallFailed,
		Entry: entry,
		Cause: cause,
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

// MissingExportsError is returned when a native build lacks required entry points
type MissingExportsError struct {
	Exports []string
}

// NewMissingExportsError creates an error from a list of export names
func NewMissingExportsError(exports []string) *MissingExportsError {
	return &MissingExportsError{
		Exports: append([]string(nil), exports...),
	}
}

func (e *MissingExportsError) Error() string {
	if len(e.Exports) == 0 {
		return "[engine] not_found: no exports specified"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("native library is missing %d required export(s):", len(e.Exports)))
	for _, name := range e.Exports {
		b.WriteString("\n  - ")
		b.WriteString(name)
	}
	return b.String()
}

// Is reports whether target matches this error type
func (e *MissingExportsError) Is(target error) bool {
	_, ok := target.(*MissingExportsError)
	return ok
}
