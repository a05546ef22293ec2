package rosbridge

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrTimeout is returned when no matching frame arrived before the deadline.
	ErrTimeout = errors.New("rosbridge: timeout waiting for response")

	// ErrNotConnected is returned when the connection dropped mid-operation.
	ErrNotConnected = errors.New("rosbridge: not connected")

	// ErrInvalidArgument is returned for requests rejected before any frame is sent.
	ErrInvalidArgument = errors.New("rosbridge: invalid argument")
)

// TransportError is a connect, encode, send, or receive failure. The
// connection has already been closed when one of these is returned.
type TransportError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("rosbridge %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// DecodeError carries an inbound frame that was not valid JSON.
type DecodeError struct {
	Raw []byte
	Err error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("rosbridge: invalid_json: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// BridgeError is a protocol-level failure reported by the bridge itself,
// either a status frame at error level or a service result=false.
type BridgeError struct {
	Op  Op
	Msg string
}

// Error implements the error interface.
func (e *BridgeError) Error() string {
	return fmt.Sprintf("rosbridge %s: %s", e.Op, e.Msg)
}

func invalidArg(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
