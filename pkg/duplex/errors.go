package duplex

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionClosed reports an operation on a closed direction.
	ErrConnectionClosed = errors.New("duplex: connection closed")
	// ErrDeallocated reports an operation cut short by Release.
	ErrDeallocated = errors.New("duplex: connection released")

	ErrAlreadyOpen     = errors.New("duplex: connection already opened")
	ErrMessageTooLarge = errors.New("duplex: message exceeds max frame size")
)

// FramingError reports malformed frame data from the peer. It is fatal.
type FramingError struct {
	Err error
}

func (e *FramingError) Error() string {
	return "duplex: framing: " + e.Err.Error()
}

func (e *FramingError) Unwrap() error {
	return e.Err
}

// TransportError reports a channel failure during Op ("open", "read" or
// "write"). It is fatal.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("duplex: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func failureKind(err error) string {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Op
	}
	var fe *FramingError
	if errors.As(err, &fe) {
		return "framing"
	}
	return "other"
}
