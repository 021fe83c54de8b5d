package process

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotRunning is returned when writing to a handle that is not Running.
	ErrNotRunning = errors.New("process is not running")
	// ErrExecutableNotFound is returned when the command cannot be located.
	ErrExecutableNotFound = errors.New("executable not found")
	// ErrInvalidWorkDir is returned when the working directory is missing or
	// not a directory.
	ErrInvalidWorkDir = errors.New("invalid working directory")
	// ErrEmptyCommand is returned when a Spec has no argv.
	ErrEmptyCommand = errors.New("empty command")
)

// SpawnError reports that a child could not be started.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %q: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// WriteError reports a failed write to a child's stdin. It is never fatal.
type WriteError struct {
	HandleID string
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write to %s: %v", e.HandleID, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// ReadError reports an I/O error on an output stream. Readers swallow it
// after logging; it ends that stream only.
type ReadError struct {
	HandleID string
	Stream   string
	Err      error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %s of %s: %v", e.Stream, e.HandleID, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// TerminationTimeout reports that a child ignored the graceful request and
// was force-killed.
type TerminationTimeout struct {
	HandleID string
	Timeout  time.Duration
}

func (e *TerminationTimeout) Error() string {
	return fmt.Sprintf("%s did not exit within %s; killed", e.HandleID, e.Timeout)
}
