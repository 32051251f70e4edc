package rtc

import (
	"iter"
	"sync/atomic"
	"time"

	"socket-rtc/pkg/events"
	"socket-rtc/pkg/log"
	"socket-rtc/pkg/peer"
	"socket-rtc/pkg/signal"
)

// ConnectionSource hands over every side-channel participant that joins.
// signal.Server is one.
type ConnectionSource interface {
	OnConnection(fn func(signal.Participant))
}

var _ ConnectionSource = (*signal.Server)(nil)

// Server is the coordinating role: it answers the negotiation of every
// participant of its side channel and routes application events to the
// resulting peers.
type Server struct {
	*Router

	cfg ServerConfig

	factory   peer.Factory
	registry  *Registry
	lifecycle *events.Bus

	closed atomic.Bool
}

type ServerConfig struct {
	// SendTimeout bounds the send to each target of a Router operation.
	SendTimeout time.Duration
}

func NewServer(cfg ServerConfig, transport ConnectionSource, factory peer.Factory) *Server {
	registry := NewRegistry()

	s := &Server{
		Router:    NewRouter(registry, cfg.SendTimeout),
		cfg:       cfg,
		factory:   factory,
		registry:  registry,
		lifecycle: events.New(),
	}

	transport.OnConnection(s.accept)

	return s
}

func (s *Server) On(event string, listener events.Listener) {
	s.lifecycle.On(event, listener)
}

func (s *Server) Listen(event string, listener events.Listener) (cancel func()) {
	return s.lifecycle.Listen(event, listener)
}

// Peer returns the registered handle of id, connected or not.
func (s *Server) Peer(id string) (*Handle, bool) {
	return s.registry.Get(id)
}

// Peers returns every registered handle.
func (s *Server) Peers() []*Handle {
	return s.registry.snapshot()
}

// AllConnected yields the Connected peers.
func (s *Server) AllConnected() iter.Seq[*Handle] {
	return s.registry.AllConnected()
}

// Close tears down every peer and stops accepting new ones.
func (s *Server) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	for _, h := range s.registry.snapshot() {
		h.Close()
	}

	s.registry.clear()

	return nil
}

func (s *Server) accept(p signal.Participant) {
	logger := log.WithPeer(p.ID())

	if s.closed.Load() {
		logger.Debugf("refusing participant, server closed")
		p.Close()

		return
	}

	conn, err := s.factory(false)
	if err != nil {
		s.lifecycle.Emit(EventError, &NegotiationError{ID: p.ID(), Err: err})
		p.Close()

		return
	}

	h := newHandle(p.ID(), conn)

	r := &relay{
		handle:      h,
		participant: p,
		lifecycle:   s.lifecycle,
		inbound:     h.bus,
		connected: func(h *Handle) {
			s.lifecycle.Emit(EventConnect, h)
		},
		forget: s.registry.removeHandle,
	}

	r.wire()

	if err := s.registry.Add(h.id, h); err != nil {
		logger.Errorf("%s", err)
		r.discard()
		p.Close()

		return
	}

	// Close may have taken its snapshot before Add.
	if s.closed.Load() {
		logger.Debugf("refusing participant, server closed")
		h.Close()
		p.Close()

		return
	}

	logger.Debugf("negotiating")

	r.start()
}
