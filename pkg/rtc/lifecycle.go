package rtc

import (
	"socket-rtc/pkg/events"
)

// Lifecycle events.
const (
	// EventConnect fires when negotiation with a peer completes. A Server
	// passes the *Handle, a Client passes its own side-channel identity.
	EventConnect = "connect"

	// EventDisconnect passes a Disconnect. It reports peers that went away
	// through the side channel or were closed locally.
	EventDisconnect = "disconnect"

	// EventError passes a *NegotiationError or a *TransportError. A
	// NegotiationError means the peer is gone; an engine that closed on its
	// own reports one caused by ErrPeerClosed.
	EventError = "error"
)

// EventSignal is the side-channel event carrying peer.Signal payloads.
const EventSignal = "signal"

// ReasonClosed is the disconnect reason of a peer closed locally.
// Side-channel reasons come from the signal package.
const ReasonClosed = "closed"

// Lifecycle is the listener surface shared by Server and Client.
type Lifecycle interface {
	On(event string, listener events.Listener)
	Listen(event string, listener events.Listener) (cancel func())
}

var (
	_ Lifecycle = (*Server)(nil)
	_ Lifecycle = (*Client)(nil)
)

type Disconnect struct {
	ID     string
	Reason string
}
