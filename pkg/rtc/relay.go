package rtc

import (
	"encoding/json"

	"socket-rtc/pkg/envelope"
	"socket-rtc/pkg/events"
	"socket-rtc/pkg/log"
	"socket-rtc/pkg/peer"
	"socket-rtc/pkg/signal"

	"github.com/pkg/errors"
)

// relay bridges one side-channel participant and the negotiation engine
// connection of its Handle, and drives the Handle's state from both.
type relay struct {
	handle      *Handle
	participant signal.Participant

	lifecycle *events.Bus

	// inbound receives application events: the handle's own bus on a
	// server, the lifecycle bus on a client.
	inbound *events.Bus

	// connected emits the connect lifecycle event.
	connected func(h *Handle)

	// forget unregisters the handle; it runs before any lifecycle event of
	// the close.
	forget func(h *Handle)
}

// wire registers every callback. The handle must be reachable by its owner
// before start is called.
func (r *relay) wire() {
	h := r.handle

	h.closer = func(reason string) {
		r.teardown(EventDisconnect, Disconnect{ID: h.id, Reason: reason})
	}

	h.conn.OnSignal(r.onEngineSignal)
	h.conn.OnConnect(r.onEngineConnect)
	h.conn.OnData(r.onEngineData)
	h.conn.OnClose(func() {
		r.teardown(EventError, &NegotiationError{ID: h.id, Err: ErrPeerClosed})
	})
	h.conn.OnError(func(err error) {
		r.teardown(EventError, &NegotiationError{ID: h.id, Err: err})
	})

	r.participant.On(EventSignal, r.onTransportSignal)
	r.participant.OnDisconnect(func(reason string) {
		r.teardown(EventDisconnect, Disconnect{ID: h.id, Reason: reason})
	})
	r.participant.OnError(func(err error) {
		r.lifecycle.Emit(EventError, &TransportError{ID: h.id, Err: err})
	})
}

// start is a no-op for a handle already torn down, such as one closed by a
// concurrent server shutdown.
func (r *relay) start() {
	if r.handle.State() != Negotiating {
		return
	}

	if err := r.handle.conn.Start(); err != nil {
		r.teardown(EventError, &NegotiationError{ID: r.handle.id, Err: errors.Wrap(err, "start")})
	}
}

func (r *relay) onEngineSignal(s peer.Signal) {
	if err := r.participant.Emit(EventSignal, s); err != nil {
		r.lifecycle.Emit(EventError, &TransportError{ID: r.handle.id, Err: errors.Wrap(err, "forward signal")})
	}
}

func (r *relay) onTransportSignal(payload json.RawMessage) {
	h := r.handle

	if h.State() >= Closing {
		log.WithPeer(h.id).Debugf("dropping signal for %s peer", h.State())

		return
	}

	var s peer.Signal

	if err := json.Unmarshal(payload, &s); err != nil {
		r.lifecycle.Emit(EventError, &TransportError{ID: h.id, Err: errors.Wrap(err, "decode signal")})

		return
	}

	if err := h.conn.Signal(s); err != nil {
		r.teardown(EventError, &NegotiationError{ID: h.id, Err: err})
	}
}

func (r *relay) onEngineConnect() {
	if !r.handle.connect() {
		return
	}

	log.WithPeer(r.handle.id).Debugf("peer connected")

	r.connected(r.handle)
}

func (r *relay) onEngineData(data []byte) {
	env, err := envelope.Decode(data)
	if err != nil {
		log.WithPeer(r.handle.id).Warnf("dropping message: %s", err)

		return
	}

	args, err := env.Values()
	if err != nil {
		log.WithPeer(r.handle.id).Warnf("dropping %q message: %s", env.Event, err)

		return
	}

	r.inbound.Emit(env.Event, args...)
}

// discard releases a handle that never got registered, without any
// lifecycle event.
func (r *relay) discard() {
	h := r.handle

	if !h.beginClose() {
		return
	}

	if err := h.conn.Close(); err != nil {
		log.WithPeer(h.id).Debugf("engine close: %s", err)
	}

	h.finishClose()
}

// teardown runs the close side effects once, whichever trigger comes first,
// then emits event with payload. Later triggers do nothing.
func (r *relay) teardown(event string, payload any) {
	h := r.handle

	if !h.beginClose() {
		return
	}

	r.forget(h)

	if err := h.conn.Close(); err != nil {
		log.WithPeer(h.id).Debugf("engine close: %s", err)
	}

	h.finishClose()

	log.WithPeer(h.id).Debugf("peer closed: %s", event)

	r.lifecycle.Emit(event, payload)
}
