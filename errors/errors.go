package errors

import (
	stderrors "errors"
	"fmt"
	"path/filepath"
	"runtime"
)

// Sentinel causes for the two unrecoverable error classes. A protocol error
// means the host and the compiler process have desynchronized and the
// session's correlation state can no longer be trusted. A host error means
// the process failed to spawn, exited unexpectedly, or its pipes broke.
// Both are terminal for the session that raised them.
var (
	ErrProtocol = stderrors.New("protocol error")
	ErrHost     = stderrors.New("host error")
)

// New creates a new error with file and line number information.
func New(format string, a ...interface{}) error {
	_, file, line, ok := runtime.Caller(1)
	if !ok {
		file = "???"
		line = 0
	} else {
		file = filepath.Base(file)
	}
	return fmt.Errorf("[%s:%d] %s", file, line, fmt.Sprintf(format, a...))
}

// Wrapf adds context (including file and line number) to an existing error.
// If the provided error is nil, Wrapf returns nil.
func Wrapf(err error, format string, a ...interface{}) error {
	if err == nil {
		return nil
	}
	_, file, line, ok := runtime.Caller(1)
	if !ok {
		file = "???"
		line = 0
	} else {
		file = filepath.Base(file)
	}
	return fmt.Errorf("[%s:%d] %s: %w", file, line, fmt.Sprintf(format, a...), err)
}

// Protocol creates a session-fatal protocol error.
func Protocol(format string, a ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrProtocol, fmt.Sprintf(format, a...))
}

// Host creates a session-fatal host error.
func Host(format string, a ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrHost, fmt.Sprintf(format, a...))
}

// IsProtocol reports whether err is (or wraps) a protocol error.
func IsProtocol(err error) bool { return stderrors.Is(err, ErrProtocol) }

// IsHost reports whether err is (or wraps) a host error.
func IsHost(err error) bool { return stderrors.Is(err, ErrHost) }
