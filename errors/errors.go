package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseCompile  Phase = "compile"   // type registration
	PhaseToNative Phase = "to_native" // host to Go
	PhaseToHost   Phase = "to_host"   // Go to host
	PhaseCall     Phase = "call"      // native call boundary
	PhaseClass    Phase = "class"     // class binding
	PhaseAsync    Phase = "async"     // async work scheduling
	PhaseChannel  Phase = "channel"   // thread-safe invocation
	PhaseBuffer   Phase = "buffer"    // buffer bridging
	PhaseHost     Phase = "host"      // export registration
	PhaseLoad     Phase = "load"      // module loading
	PhaseConfig   Phase = "config"    // configuration
	PhaseRuntime  Phase = "runtime"   // engine lifecycle
)

// Kind categorizes the error
type Kind string

const (
	KindTypeMismatch          Kind = "type_mismatch"
	KindFieldMissing          Kind = "field_missing"
	KindRangeOverflow         Kind = "range_overflow"
	KindConstructionForbidden Kind = "construction_forbidden"
	KindChannelSaturated      Kind = "channel_saturated"
	KindNativeFailure         Kind = "native_failure"
	KindAsyncTaskFailure      Kind = "async_task_failure"
	KindUnsupported           Kind = "unsupported"
	KindInvalidInput          Kind = "invalid_input"
	KindNotFound              Kind = "not_found"
	KindRegistration          Kind = "registration"
	KindReleased              Kind = "released"
	KindClosed                Kind = "closed"
	KindWrongThread           Kind = "wrong_thread"
)

var hostNames = map[Kind]string{
	KindTypeMismatch:          "TypeMismatchError",
	KindFieldMissing:          "MissingRequiredFieldError",
	KindRangeOverflow:         "RangeOverflowError",
	KindConstructionForbidden: "ConstructionForbiddenError",
	KindChannelSaturated:      "ChannelSaturatedError",
	KindNativeFailure:         "NativeFailureError",
	KindAsyncTaskFailure:      "AsyncTaskFailureError",
}

// Name returns the error class name the host sees for this kind.
func (k Kind) Name() string {
	if n, ok := hostNames[k]; ok {
		return n
	}
	return "Error"
}

// Sentinels for errors.Is; they match on Kind regardless of Phase.
var (
	ErrTypeMismatch          = &Error{Kind: KindTypeMismatch}
	ErrFieldMissing          = &Error{Kind: KindFieldMissing}
	ErrRangeOverflow         = &Error{Kind: KindRangeOverflow}
	ErrConstructionForbidden = &Error{Kind: KindConstructionForbidden}
	ErrChannelSaturated      = &Error{Kind: KindChannelSaturated}
	ErrNativeFailure         = &Error{Kind: KindNativeFailure}
	ErrAsyncTaskFailure      = &Error{Kind: KindAsyncTaskFailure}
	ErrReleased              = &Error{Kind: KindReleased}
	ErrClosed                = &Error{Kind: KindClosed}
	ErrWrongThread           = &Error{Kind: KindWrongThread}
	ErrUnsupported           = &Error{Kind: KindUnsupported}
	ErrInvalidInput          = &Error{Kind: KindInvalidInput}
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrRegistration          = &Error{Kind: KindRegistration}
)

// Error is the structured error type used throughout the runtime
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	GoType   string
	HostType string
	Detail   string
	Path     []string
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
		b.WriteString(FormatPath(e.Path))
	}

	if e.GoType != "" || e.HostType != "" {
		b.WriteString(": ")
		switch {
		case e.GoType != "" && e.HostType != "":
			b.WriteString("expected ")
			b.WriteString(e.GoType)
			b.WriteString(", got ")
			b.WriteString(e.HostType)
		case e.GoType != "":
			b.WriteString("expected ")
			b.WriteString(e.GoType)
		default:
			b.WriteString("got ")
			b.WriteString(e.HostType)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.HostType != "" {
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

// Reason returns the human-readable reason carried to the host.
// Native failures surface their detail verbatim; async failures surface
// the reason of the wrapped cause.
func (e *Error) Reason() string {
	switch e.Kind {
	case KindNativeFailure:
		return e.Detail
	case KindAsyncTaskFailure:
		if e.Cause != nil {
			return Reason(e.Cause)
		}
		return e.Detail
	}
	return e.Error()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// An empty Phase on the target matches any phase.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase != "" && e.Phase != t.Phase {
		return false
	}
	return e.Kind == t.Kind
}

// FormatPath joins a field path, attaching index segments to their parent.
func FormatPath(path []string) string {
	var b strings.Builder
	for i, p := range path {
		if i > 0 && !strings.HasPrefix(p, "[") {
			b.WriteByte('.')
		}
		b.WriteString(p)
	}
	return b.String()
}

// Index formats a slot or element index as a path segment.
func Index(i int) string {
	return fmt.Sprintf("[%d]", i)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As returns the structured error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of the first structured error in err's chain.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return ""
}

// Reason returns the host-facing reason for any error.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := As(err); ok {
		return e.Reason()
	}
	return err.Error()
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

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the expected native type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// HostType sets the observed host type name
func (b *Builder) HostType(t string) *Builder {
	b.err.HostType = t
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

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, expected, got string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindTypeMismatch,
		Path:     clonePath(path),
		GoType:   expected,
		HostType: got,
	}
}

// ArityMismatch creates a type mismatch for a tuple or argument list of the wrong length
func ArityMismatch(phase Phase, path []string, want, got int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Path:   clonePath(path),
		Detail: fmt.Sprintf("expected %d slots, got %d", want, got),
		Value:  got,
	}
}

// FieldMissing creates a missing required field error
func FieldMissing(phase Phase, path []string, fieldName string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindFieldMissing,
		Path:   clonePath(path),
		Detail: fmt.Sprintf("required field %q not provided", fieldName),
	}
}

// RangeOverflow creates a strict-range conversion error
func RangeOverflow(phase Phase, path []string, value any, target string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindRangeOverflow,
		Path:   clonePath(path),
		GoType: target,
		Detail: fmt.Sprintf("value %v out of range", value),
		Value:  value,
	}
}

// ConstructionForbidden creates an error for direct construction of a factory-only class
func ConstructionForbidden(class string) *Error {
	return &Error{
		Phase:  PhaseClass,
		Kind:   KindConstructionForbidden,
		Detail: fmt.Sprintf("class %s can only be created by its native factory", class),
	}
}

// ChannelSaturated creates a full-queue error
func ChannelSaturated(capacity int) *Error {
	return &Error{
		Phase:  PhaseChannel,
		Kind:   KindChannelSaturated,
		Detail: fmt.Sprintf("invocation queue full (capacity %d)", capacity),
		Value:  capacity,
	}
}

// NativeFailure creates an explicit native-raised failure with a reason
func NativeFailure(reason string) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindNativeFailure,
		Detail: reason,
	}
}

// NativeFailuref creates a native failure with a formatted reason
func NativeFailuref(format string, args ...any) *Error {
	return NativeFailure(fmt.Sprintf(format, args...))
}

// AsyncTaskFailure wraps the failure of an awaited task
func AsyncTaskFailure(task uint64, cause error) *Error {
	return &Error{
		Phase:  PhaseAsync,
		Kind:   KindAsyncTaskFailure,
		Detail: fmt.Sprintf("task %d failed", task),
		Cause:  cause,
		Value:  task,
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

// Released creates a use-after-release error
func Released(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindReleased,
		Detail: fmt.Sprintf("%s already released", what),
	}
}

// Closed creates an error for operations on a closed component
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s is closed", what),
	}
}

// WrongThread creates an error for host heap access off the host thread
func WrongThread(phase Phase, op string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindWrongThread,
		Detail: fmt.Sprintf("%s must run on the host thread", op),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
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

// Registration creates a registration error
func Registration(phase Phase, module, name string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindRegistration,
		Detail: fmt.Sprintf("register %s.%s", module, name),
		Cause:  cause,
	}
}

// Load creates a module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidInput,
		Detail: detail,
		Cause:  cause,
	}
}

func clonePath(path []string) []string {
	if len(path) == 0 {
		return nil
	}
	out := make([]string, len(path))
	copy(out, path)
	return out
}
