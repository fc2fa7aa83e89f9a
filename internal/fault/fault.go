package fault

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// Fault is a runtime fault raised while processing a request. It carries
// the Kind used for handler resolution, an HTTP status, an optional wrapped
// cause, and a quiet flag that suppresses default-path logging.
type Fault struct {
	kind    *Kind
	message string
	status  int
	quiet   bool
	cause   error
	stack   []byte
}

// New creates a fault of the given kind.
func New(kind *Kind, message string) *Fault {
	if kind == nil {
		kind = Base
	}
	return &Fault{
		kind:    kind,
		message: message,
		status:  kind.status,
	}
}

// Newf creates a fault with a formatted message.
func Newf(kind *Kind, format string, args ...any) *Fault {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap creates a fault of the given kind wrapping an underlying cause.
func Wrap(kind *Kind, message string, cause error) *Fault {
	f := New(kind, message)
	f.cause = cause
	return f
}

// From adapts an arbitrary error into a Fault. Faults pass through
// unchanged, wrapped faults are unwrapped via errors.As, and anything else
// becomes a ServerError fault with the error as its cause.
func From(err error) *Fault {
	if err == nil {
		return nil
	}
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	return Wrap(ServerError, err.Error(), err)
}

// FromPanic converts a recovered panic value into a ServerError fault,
// capturing the stack at the point of recovery.
func FromPanic(rec any) *Fault {
	var f *Fault
	switch v := rec.(type) {
	case *Fault:
		f = v
	case error:
		f = Wrap(ServerError, fmt.Sprintf("panic: %v", v), v)
	default:
		f = Newf(ServerError, "panic: %v", v)
	}
	if f.stack == nil {
		f.stack = debug.Stack()
	}
	return f
}

// WithStatus overrides the HTTP status inherited from the kind.
func (f *Fault) WithStatus(status int) *Fault {
	f.status = status
	return f
}

// WithQuiet marks the fault as quiet; the guard's default path will not log
// it unless the noisy-exceptions override is set.
func (f *Fault) WithQuiet() *Fault {
	f.quiet = true
	return f
}

// WithCause attaches an underlying cause.
func (f *Fault) WithCause(cause error) *Fault {
	f.cause = cause
	return f
}

// Kind returns the fault's kind.
func (f *Fault) Kind() *Kind {
	return f.kind
}

// Status returns the HTTP status for the fault.
func (f *Fault) Status() int {
	return f.status
}

// Quiet reports whether default-path logging is suppressed for this fault.
func (f *Fault) Quiet() bool {
	return f.quiet
}

// Stack returns the captured stack trace, or nil if none was captured.
func (f *Fault) Stack() []byte {
	return f.stack
}

// Message returns the fault message without kind decoration.
func (f *Fault) Message() string {
	return f.message
}

// Error implements the error interface.
func (f *Fault) Error() string {
	if f.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", f.kind.name, f.message, f.cause)
	}
	return fmt.Sprintf("[%s] %s", f.kind.name, f.message)
}

// Unwrap allows errors.Is and errors.As to reach the cause.
func (f *Fault) Unwrap() error {
	return f.cause
}
