// Package h264err defines the error taxonomy shared by the decoder session,
// the movie and the host bridge.
package h264err

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

// Code classifies a failure.
type Code int

const (
	None Code = iota
	InvalidParam
	DecoderInitFailed
	DecodeFailed
	FileNotFound
	FileOpenFailed
	UnsupportedFormat
	OutOfMemory
	ThreadError
	NotInitialized
	SessionClosed
	LibraryNotLoaded
)

// String returns a human readable description of the code.
func (c Code) String() string {
	switch c {
	case None:
		return "No error"
	case InvalidParam:
		return "Invalid parameter"
	case DecoderInitFailed:
		return "Decoder initialization failed"
	case DecodeFailed:
		return "Decode operation failed"
	case FileNotFound:
		return "File not found"
	case FileOpenFailed:
		return "File open failed"
	case UnsupportedFormat:
		return "Unsupported format"
	case OutOfMemory:
		return "Out of memory"
	case ThreadError:
		return "Thread error"
	case NotInitialized:
		return "Decoder not initialized"
	case SessionClosed:
		return "Decoder session closed"
	case LibraryNotLoaded:
		return "Native library not loaded"
	default:
		return fmt.Sprintf("Unknown error (%d)", int(c))
	}
}

// Error is a classified failure of an operation.
type Error struct {
	Code Code
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same code, so callers can write
// errors.Is(err, &h264err.Error{Code: h264err.SessionClosed}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Op == "" || t.Op == e.Op)
}

// New returns a classified error with a message and a stack trace.
func New(code Code, op, msg string) error {
	return &Error{Code: code, Op: op, Err: errors.New(msg)}
}

// Newf is New with a format string.
func Newf(code Code, op, format string, args ...interface{}) error {
	return &Error{Code: code, Op: op, Err: errors.Errorf(format, args...)}
}

// Wrap classifies err. A nil err returns nil.
func Wrap(code Code, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Op: op, Err: errors.WithStack(err)}
}

// CodeOf extracts the code of the outermost *Error in err's chain.
// Unclassified errors report DecodeFailed; nil reports None.
func CodeOf(err error) Code {
	if err == nil {
		return None
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return DecodeFailed
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// Tracker remembers the last failure of a long-lived object so hosts that
// poll for errors can read it after a boolean-style call.
type Tracker struct {
	mu      sync.Mutex
	code    Code
	message string
}

// Record stores err; a nil err clears the tracker.
func (t *Tracker) Record(err error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err == nil {
		t.code = None
		t.message = ""
		return nil
	}
	t.code = CodeOf(err)
	t.message = err.Error()
	return err
}

// Clear resets the tracker.
func (t *Tracker) Clear() {
	t.Record(nil)
}

// Last returns the last recorded code and message.
func (t *Tracker) Last() (Code, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.code, t.message
}

// HasError reports whether a failure is recorded.
func (t *Tracker) HasError() bool {
	code, _ := t.Last()
	return code != None
}
