package signal

import (
	"net/http"
	"sync"

	"socket-rtc/pkg/log"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var _ http.Handler = (*Server)(nil)

// Server accepts side-channel websocket connections and hands each one to
// the connection handlers as a Participant with a fresh uuid identity.
type Server struct {
	cfg ServerConfig

	upgrader websocket.Upgrader

	mu          sync.RWMutex
	sockets     map[string]*Socket
	connections []func(Participant)
	closed      bool
}

type ServerConfig struct {
	// Sealer, when set, seals every frame except hello. Clients must use the
	// same key.
	Sealer Sealer

	// CheckOrigin defaults to allowing every origin.
	CheckOrigin func(r *http.Request) bool
}

func NewServer(cfg ServerConfig) *Server {
	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool {
			return true
		}
	}

	return &Server{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  maxMessageSize,
			WriteBufferSize: maxMessageSize,
			CheckOrigin:     checkOrigin,
		},
		sockets: make(map[string]*Socket),
	}
}

// OnConnection registers fn for every accepted connection. fn runs before the
// connection's pumps start, so handlers it registers see every frame.
func (s *Server) OnConnection(fn func(Participant)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connections = append(s.connections, fn)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()

	if closed {
		http.Error(w, "server closed", http.StatusServiceUnavailable)

		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("websocket upgrade failed: %s", err)

		return
	}

	socket := newSocket(uuid.New().String(), conn, s.cfg.Sealer)
	socket.accepted = true
	socket.finished = s.forget

	if err := socket.Emit(EventHello, hello{ID: socket.id}); err != nil {
		log.Errorf("hello to %s: %s", socket.id, err)
		conn.Close()

		return
	}

	s.mu.Lock()
	s.sockets[socket.id] = socket
	handlers := append(([]func(Participant))(nil), s.connections...)
	s.mu.Unlock()

	log.WithPeer(socket.id).Debugf("signaling connected from %s", conn.RemoteAddr())

	for _, handler := range handlers {
		handler(socket)
	}

	socket.Start()
}

// Count returns the number of open connections.
func (s *Server) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.sockets)
}

// Close disconnects every connection and refuses new ones.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	sockets := make([]*Socket, 0, len(s.sockets))
	for _, socket := range s.sockets {
		sockets = append(sockets, socket)
	}
	s.mu.Unlock()

	for _, socket := range sockets {
		socket.Close()
	}
}

func (s *Server) forget(socket *Socket) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sockets, socket.id)
}
