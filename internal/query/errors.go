package query

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// ConnectionError reports a failure to reach or authenticate with a database.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	if e == nil || e.Err == nil {
		return "connection failed"
	}
	return e.Err.Error()
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ExecutionError reports a statement the database rejected or failed to run.
type ExecutionError struct {
	Err error
}

func (e *ExecutionError) Error() string {
	if e == nil || e.Err == nil {
		return "query execution failed"
	}
	return e.Err.Error()
}

func (e *ExecutionError) Unwrap() error { return e.Err }

func NewConnectionError(err error) error {
	if err == nil {
		return nil
	}
	var existing *ConnectionError
	if errors.As(err, &existing) {
		return err
	}
	return &ConnectionError{Err: err}
}

func NewExecutionError(err error) error {
	if err == nil {
		return nil
	}
	var existing *ExecutionError
	if errors.As(err, &existing) {
		return err
	}
	return &ExecutionError{Err: err}
}

// NewRunError classifies a failure raised while a statement was running. A
// connection that dropped or was reset mid-statement stays a ConnectionError;
// everything else is an ExecutionError.
func NewRunError(err error) error {
	switch {
	case err == nil:
		return nil
	case IsConnectionError(err), IsExecutionError(err):
		return err
	case BrokenConnection(err):
		return &ConnectionError{Err: err}
	default:
		return &ExecutionError{Err: err}
	}
}

// BrokenConnection reports whether err means the link to the server is gone.
// Caller cancellations and deadlines do not count.
func BrokenConnection(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	for _, target := range []error{driver.ErrBadConn, io.EOF, io.ErrUnexpectedEOF, net.ErrClosed, syscall.ECONNRESET, syscall.EPIPE} {
		if errors.Is(err, target) {
			return true
		}
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func ConnectionErrorf(format string, args ...any) error {
	return &ConnectionError{Err: fmt.Errorf(format, args...)}
}

func ExecutionErrorf(format string, args ...any) error {
	return &ExecutionError{Err: fmt.Errorf(format, args...)}
}

func IsConnectionError(err error) bool {
	var target *ConnectionError
	return errors.As(err, &target)
}

func IsExecutionError(err error) bool {
	var target *ExecutionError
	return errors.As(err, &target)
}
