package peer

import (
	"github.com/pion/webrtc/v3"
	"github.com/pkg/errors"
)

const (
	SignalOffer     = "offer"
	SignalAnswer    = "answer"
	SignalCandidate = "candidate"
)

// ErrNotConnected is returned by Send before the data channel is open or
// after the connection went away.
var ErrNotConnected = errors.New("peer is not connected")

// ErrMessageTooLarge is returned by Send for payloads the remote read loop
// could not take in one read.
var ErrMessageTooLarge = errors.New("message too large")

// Signal is one negotiation payload exchanged over the side channel: an SDP
// offer or answer, or a single trickled ICE candidate. Relays forward it
// without looking inside.
type Signal struct {
	Type      string                   `json:"type"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

// Conn is a negotiation engine connection: it produces signals that must
// reach the remote side, accepts the remote side's signals, and once
// negotiated carries opaque application messages.
//
// Callbacks must be registered before Start. Each of connect and close fires
// at most once; error may fire several times, and is normally followed by
// close.
type Conn interface {
	OnSignal(func(Signal))
	OnConnect(func())
	OnData(func([]byte))
	OnClose(func())
	OnError(func(error))

	// Start begins negotiation. An initiator produces its offer here; a
	// non-initiator waits for one.
	Start() error

	// Signal feeds a payload received from the remote side.
	Signal(Signal) error

	Send([]byte) error
	Connected() bool

	// Close releases the connection. It is idempotent and fires close if it
	// has not fired yet.
	Close() error
}

// Factory creates a connection for one remote party.
type Factory func(initiator bool) (Conn, error)
