// Package knitjerr defines the structural error kinds shared across the
// module, so that every package (parser, jupyter, document, kernel,
// transport) can produce and the coordinator can dispatch on the same
// sentinels.
package knitjerr

import "github.com/pkg/errors"

// Kind classifies a structural error for the coordinator's shutdown policy.
type Kind string

const (
	// KindParsing: unclosed fence or comment. In server mode, logged and
	// the document is left unchanged; in batch mode, terminates non-zero.
	KindParsing Kind = "parsing"
	// KindProtocol: unknown Jupyter message type or malformed envelope, or
	// an unknown websocket frame "kind". Treated as a programmer/
	// environment bug. The kernel adapter, the coordinator and the
	// transport layer log such an error and keep running; it does not end
	// the session.
	KindProtocol Kind = "protocol"
	// KindKernelLifecycle: failure to start, restart or shut down the
	// kernel. A start failure is returned from RunServer/RunBatch, which
	// ends the process; the output file is not flushed first. An
	// unexpected exit of a running kernel is not detected.
	KindKernelLifecycle Kind = "kernel_lifecycle"
	// KindBind: port exhaustion in the configured range. Terminates.
	KindBind Kind = "bind"
)

// Error wraps an underlying cause with its structural Kind.
type Error struct {
	Kind  Kind
	cause error
}

func (e *Error) Error() string { return string(e.Kind) + ": " + e.cause.Error() }
func (e *Error) Unwrap() error { return e.cause }

// New builds a Kind-tagged Error from a message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, cause: errors.New(msg)}
}

// Wrap builds a Kind-tagged Error around an existing error, or returns nil
// if err is nil.
func Wrap(kind Kind, err error, msg string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, cause: errors.Wrap(err, msg)}
}

// Is reports whether err (or something it wraps) is a knitjerr.Error of the
// given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
