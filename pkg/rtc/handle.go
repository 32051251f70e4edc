package rtc

import (
	"sync"
	"sync/atomic"

	"socket-rtc/pkg/envelope"
	"socket-rtc/pkg/events"
	"socket-rtc/pkg/peer"
)

// Handle is one remote peer: its identity, its negotiation engine
// connection and the bus its application events are emitted on.
type Handle struct {
	id   string
	conn peer.Conn
	bus  *events.Bus

	state atomic.Int32

	// mu orders state transitions against send admission: once a transition
	// out of Connected holds it, no further send is admitted. It is never held
	// across conn.Send.
	mu sync.RWMutex

	// sendMx keeps writes to conn in call order.
	sendMx sync.Mutex

	closer func(reason string)
}

func newHandle(id string, conn peer.Conn) *Handle {
	return &Handle{
		id:     id,
		conn:   conn,
		bus:    events.New(),
		closer: func(string) {},
	}
}

func (h *Handle) ID() string {
	return h.id
}

func (h *Handle) State() State {
	return State(h.state.Load())
}

// On registers listener for application events received from this peer.
func (h *Handle) On(event string, listener events.Listener) {
	h.bus.On(event, listener)
}

func (h *Handle) Listen(event string, listener events.Listener) (cancel func()) {
	return h.bus.Listen(event, listener)
}

// Send delivers one application event to this peer only.
func (h *Handle) Send(event string, args ...any) error {
	env, err := envelope.New(event, args...)
	if err != nil {
		return err
	}

	data, err := env.Encode()
	if err != nil {
		return err
	}

	return h.send(data)
}

// Close tears the peer down as if its connection had closed, with reason
// ReasonClosed. It is a no-op on a handle that is already closing.
func (h *Handle) Close() error {
	h.closer(ReasonClosed)

	return nil
}

// send admits data while the handle is Connected. An admitted send may
// still reach conn after the handle closed; closing does not cancel it.
func (h *Handle) send(data []byte) error {
	if !h.admit() {
		return ErrNotConnected
	}

	h.sendMx.Lock()
	defer h.sendMx.Unlock()

	return h.conn.Send(data)
}

func (h *Handle) admit() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.State() == Connected
}

// connect moves a negotiating handle to Connected.
func (h *Handle) connect() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.state.CompareAndSwap(int32(Negotiating), int32(Connected))
}

// beginClose moves the handle to Closing. Only the first caller gets true
// and must finish with finishClose.
func (h *Handle) beginClose() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.State() {
	case Closing, Closed:
		return false
	}

	h.state.Store(int32(Closing))

	return true
}

func (h *Handle) finishClose() {
	h.mu.Lock()
	h.state.Store(int32(Closed))
	h.mu.Unlock()

	h.bus.Clear()
}
