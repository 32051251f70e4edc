package rtc

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"socket-rtc/pkg/peer"
	"socket-rtc/pkg/signal"
)

// fakeConn is an in-process negotiation engine connection driven by tests.
type fakeConn struct {
	mu sync.Mutex

	signalHandler  func(peer.Signal)
	connectHandler func()
	dataHandler    func([]byte)
	closeHandler   func()
	errorHandler   func(error)

	started  bool
	signals  []peer.Signal
	sent     [][]byte
	closes   int
	late     int
	sendErr  error
	signErr  error
	sendGate chan struct{}

	closed atomic.Bool
}

var _ peer.Conn = (*fakeConn)(nil)

func newFakeConn() *fakeConn {
	return &fakeConn{
		signalHandler:  func(peer.Signal) {},
		connectHandler: func() {},
		dataHandler:    func([]byte) {},
		closeHandler:   func() {},
		errorHandler:   func(error) {},
	}
}

func (c *fakeConn) OnSignal(h func(peer.Signal)) { c.signalHandler = h }
func (c *fakeConn) OnConnect(h func())           { c.connectHandler = h }
func (c *fakeConn) OnData(h func([]byte))        { c.dataHandler = h }
func (c *fakeConn) OnClose(h func())             { c.closeHandler = h }
func (c *fakeConn) OnError(h func(error))        { c.errorHandler = h }

func (c *fakeConn) setSendGate(gate chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sendGate = gate
}

func (c *fakeConn) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.started = true

	return nil
}

func (c *fakeConn) Signal(s peer.Signal) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.signErr != nil {
		return c.signErr
	}

	c.signals = append(c.signals, s)

	return nil
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	gate := c.sendGate
	c.mu.Unlock()

	if gate != nil {
		<-gate
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sendErr != nil {
		return c.sendErr
	}

	if c.closes > 0 {
		c.late++
	}

	c.sent = append(c.sent, data)

	return nil
}

func (c *fakeConn) Connected() bool {
	return false
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()

	c.fireClose()

	return nil
}

func (c *fakeConn) fireClose() {
	if !c.closed.Swap(true) {
		c.closeHandler()
	}
}

func (c *fakeConn) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.sent)
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closes
}

func (c *fakeConn) lateCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.late
}

func (c *fakeConn) receivedSignals() []peer.Signal {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]peer.Signal(nil), c.signals...)
}

type emitted struct {
	event   string
	payload any
}

// fakeParticipant is a side-channel participant driven by tests.
type fakeParticipant struct {
	id string

	mu                 sync.Mutex
	handlers           map[string][]func(json.RawMessage)
	disconnectHandlers []func(string)
	errorHandlers      []func(error)
	emitted            []emitted
	emitErr            error
	started            bool
	closed             bool
}

var _ ClientTransport = (*fakeParticipant)(nil)

func newFakeParticipant(id string) *fakeParticipant {
	return &fakeParticipant{
		id:       id,
		handlers: make(map[string][]func(json.RawMessage)),
	}
}

func (p *fakeParticipant) ID() string { return p.id }

func (p *fakeParticipant) On(event string, fn func(json.RawMessage)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.handlers[event] = append(p.handlers[event], fn)
}

func (p *fakeParticipant) Emit(event string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.emitErr != nil {
		return p.emitErr
	}

	p.emitted = append(p.emitted, emitted{event: event, payload: payload})

	return nil
}

func (p *fakeParticipant) OnDisconnect(fn func(string)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.disconnectHandlers = append(p.disconnectHandlers, fn)
}

func (p *fakeParticipant) OnError(fn func(error)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.errorHandlers = append(p.errorHandlers, fn)
}

func (p *fakeParticipant) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.started = true
}

func (p *fakeParticipant) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.disconnect(signal.ReasonClientDisconnect)

	return nil
}

func (p *fakeParticipant) deliver(event string, payload json.RawMessage) {
	p.mu.Lock()
	handlers := append(([]func(json.RawMessage))(nil), p.handlers[event]...)
	p.mu.Unlock()

	for _, h := range handlers {
		h(payload)
	}
}

func (p *fakeParticipant) disconnect(reason string) {
	p.mu.Lock()
	handlers := append(([]func(string))(nil), p.disconnectHandlers...)
	p.mu.Unlock()

	for _, h := range handlers {
		h(reason)
	}
}

func (p *fakeParticipant) fail(err error) {
	p.mu.Lock()
	handlers := append(([]func(error))(nil), p.errorHandlers...)
	p.mu.Unlock()

	for _, h := range handlers {
		h(err)
	}
}

func (p *fakeParticipant) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.closed
}

func (p *fakeParticipant) emittedEvents() []emitted {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]emitted(nil), p.emitted...)
}

// fakeSource hands fake participants to a Server.
type fakeSource struct {
	accept func(signal.Participant)
}

func (s *fakeSource) OnConnection(fn func(signal.Participant)) {
	s.accept = fn
}

// factoryOf returns a factory handing out conns in order.
func factoryOf(conns ...*fakeConn) peer.Factory {
	var mu sync.Mutex

	return func(bool) (peer.Conn, error) {
		mu.Lock()
		defer mu.Unlock()

		conn := conns[0]
		conns = conns[1:]

		return conn, nil
	}
}
