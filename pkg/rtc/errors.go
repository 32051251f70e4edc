package rtc

import (
	"github.com/pkg/errors"
)

var (
	// ErrNotConnected is returned when sending through a peer whose
	// negotiation has not completed or which has already closed.
	ErrNotConnected = errors.New("peer is not connected")

	// ErrDuplicateIdentity means the side channel handed out an identity
	// that is still registered. It points at a broken transport.
	ErrDuplicateIdentity = errors.New("duplicate peer identity")

	ErrSendTimeout = errors.New("send timed out")

	// ErrPeerClosed is the cause carried by a NegotiationError when the
	// negotiation engine closed the connection on its own.
	ErrPeerClosed = errors.New("peer connection closed")
)

// NegotiationError is carried by the error lifecycle event when the
// negotiation engine of a peer fails. The peer is closed.
type NegotiationError struct {
	ID  string
	Err error
}

func (e *NegotiationError) Error() string {
	return "negotiation with " + e.ID + ": " + e.Err.Error()
}

func (e *NegotiationError) Cause() error { return e.Err }

func (e *NegotiationError) Unwrap() error { return e.Err }

// TransportError is carried by the error lifecycle event when the side
// channel of a peer fails. An already negotiated peer stays up.
type TransportError struct {
	ID  string
	Err error
}

func (e *TransportError) Error() string {
	return "signaling with " + e.ID + ": " + e.Err.Error()
}

func (e *TransportError) Cause() error { return e.Err }

func (e *TransportError) Unwrap() error { return e.Err }

// SendError is one failed target of a multi-target send.
type SendError struct {
	ID  string
	Err error
}

func (e *SendError) Error() string {
	return "send to " + e.ID + ": " + e.Err.Error()
}

func (e *SendError) Cause() error { return e.Err }

func (e *SendError) Unwrap() error { return e.Err }
