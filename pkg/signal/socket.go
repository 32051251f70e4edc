package signal

import (
	"encoding/json"
	"net"
	"sync"
	"time"

	"socket-rtc/pkg/log"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// Participant is one end of the side channel as seen by the other end: an
// identity plus named events in both directions.
type Participant interface {
	ID() string

	// On registers fn for frames of event. Handlers run in delivery order
	// on the connection's read goroutine.
	On(event string, fn func(payload json.RawMessage))

	// Emit queues payload, marshalled to JSON, as a frame of event.
	Emit(event string, payload any) error

	// OnDisconnect handlers run once, with the reason, when the connection
	// goes away for any cause.
	OnDisconnect(fn func(reason string))

	OnError(fn func(err error))

	Close() error
}

var _ Participant = (*Socket)(nil)

// Socket is a Participant over a gorilla websocket connection. The server
// creates one per accepted connection; a Client wraps one.
type Socket struct {
	id     string
	conn   *websocket.Conn
	sealer Sealer

	// accepted is set on the server end of a connection.
	accepted bool

	send chan []byte
	done chan struct{}

	handlersMx         sync.Mutex
	handlers           map[string][]func(json.RawMessage)
	disconnectHandlers []func(string)
	errorHandlers      []func(error)

	startOnce      sync.Once
	started        bool
	shutdownOnce   sync.Once
	disconnectOnce sync.Once
	reason         string

	// finished is called after disconnect handlers; the server uses it to
	// forget the socket.
	finished func(*Socket)
}

func newSocket(id string, conn *websocket.Conn, sealer Sealer) *Socket {
	return &Socket{
		id:       id,
		conn:     conn,
		sealer:   sealer,
		send:     make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
		handlers: make(map[string][]func(json.RawMessage)),
		finished: func(*Socket) {},
	}
}

func (s *Socket) ID() string {
	return s.id
}

func (s *Socket) On(event string, fn func(payload json.RawMessage)) {
	s.handlersMx.Lock()
	defer s.handlersMx.Unlock()

	s.handlers[event] = append(s.handlers[event], fn)
}

func (s *Socket) OnDisconnect(fn func(reason string)) {
	s.handlersMx.Lock()
	defer s.handlersMx.Unlock()

	s.disconnectHandlers = append(s.disconnectHandlers, fn)
}

func (s *Socket) OnError(fn func(err error)) {
	s.handlersMx.Lock()
	defer s.handlersMx.Unlock()

	s.errorHandlers = append(s.errorHandlers, fn)
}

func (s *Socket) Emit(event string, payload any) error {
	frame, err := s.frame(event, payload)
	if err != nil {
		return err
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	select {
	case s.send <- data:
		return nil
	case <-s.done:
		return ErrClosed
	default:
		return ErrBufferFull
	}
}

// Close ends the connection with a close frame. Disconnect handlers observe
// ReasonServerDisconnect on the server side and ReasonClientDisconnect on a
// client.
func (s *Socket) Close() error {
	s.shutdown(s.localReason())

	s.handlersMx.Lock()
	started := s.started
	s.handlersMx.Unlock()

	if !started {
		s.conn.Close()
		s.disconnect()
	}

	return nil
}

// Start runs the read and write pumps. Handlers registered before Start see
// every frame.
func (s *Socket) Start() {
	s.startOnce.Do(func() {
		s.handlersMx.Lock()
		s.started = true
		s.handlersMx.Unlock()

		go s.writePump()
		go s.readPump()
	})
}

// Done is closed once the connection starts shutting down.
func (s *Socket) Done() <-chan struct{} {
	return s.done
}

func (s *Socket) localReason() string {
	if s.accepted {
		return ReasonServerDisconnect
	}

	return ReasonClientDisconnect
}

func (s *Socket) frame(event string, payload any) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, errors.Wrapf(err, "payload of %q", event)
	}

	if s.sealer == nil || event == EventHello {
		return Frame{Event: event, Payload: raw}, nil
	}

	sealed, err := s.sealer.Encrypt(raw)
	if err != nil {
		return Frame{}, errors.Wrapf(err, "seal %q", event)
	}

	// []byte marshals as a base64 JSON string.
	raw, err = json.Marshal(sealed)
	if err != nil {
		return Frame{}, err
	}

	return Frame{Event: event, Payload: raw, Sealed: true}, nil
}

func (s *Socket) open(frame Frame) (json.RawMessage, error) {
	if frame.Sealed != (s.sealer != nil) {
		return nil, errors.Wrapf(ErrNotSealed, "frame %q", frame.Event)
	}

	if !frame.Sealed {
		return frame.Payload, nil
	}

	var sealed []byte

	if err := json.Unmarshal(frame.Payload, &sealed); err != nil {
		return nil, errors.Wrapf(err, "sealed payload of %q", frame.Event)
	}

	opened, err := s.sealer.Decrypt(sealed)
	if err != nil {
		return nil, errors.Wrapf(err, "open %q", frame.Event)
	}

	return opened, nil
}

// readPump dispatches frames to handlers.
//
// There is at most one reader per connection, so frames of one event reach
// handlers in the order the peer sent them.
func (s *Socket) readPump() {
	defer s.disconnect()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var frame Frame

		if err := s.conn.ReadJSON(&frame); err != nil {
			s.shutdown(closeReason(err))

			return
		}

		payload, err := s.open(frame)
		if err != nil {
			s.reportError(err)

			continue
		}

		s.handlersMx.Lock()
		handlers := append(([]func(json.RawMessage))(nil), s.handlers[frame.Event]...)
		s.handlersMx.Unlock()

		for _, handler := range handlers {
			handler(payload)
		}
	}
}

// writePump is the single writer of the connection; it also keeps the
// connection alive with pings.
func (s *Socket) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.reportError(errors.Wrap(err, "write"))
				s.shutdown(ReasonTransportError)

				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.shutdown(ReasonTransportError)

				return
			}

		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, s.closeReason()))

			return
		}
	}
}

func (s *Socket) shutdown(reason string) {
	s.shutdownOnce.Do(func() {
		s.handlersMx.Lock()
		s.reason = reason
		s.handlersMx.Unlock()

		close(s.done)
	})
}

func (s *Socket) closeReason() string {
	s.handlersMx.Lock()
	defer s.handlersMx.Unlock()

	return s.reason
}

func (s *Socket) disconnect() {
	s.disconnectOnce.Do(func() {
		s.shutdown(ReasonTransportClose)

		s.handlersMx.Lock()
		handlers := append(([]func(string))(nil), s.disconnectHandlers...)
		reason := s.reason
		s.handlersMx.Unlock()

		log.WithPeer(s.id).Debugf("signaling disconnected: %s", reason)

		for _, handler := range handlers {
			handler(reason)
		}

		s.finished(s)
	})
}

func (s *Socket) reportError(err error) {
	s.handlersMx.Lock()
	handlers := append(([]func(error))(nil), s.errorHandlers...)
	s.handlersMx.Unlock()

	if len(handlers) == 0 {
		log.WithPeer(s.id).Warnf("signaling: %s", err)

		return
	}

	for _, handler := range handlers {
		handler(err)
	}
}

func closeReason(err error) string {
	var closeErr *websocket.CloseError

	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway:
			if closeErr.Text == ReasonServerDisconnect || closeErr.Text == ReasonClientDisconnect {
				return closeErr.Text
			}

			return ReasonTransportClose
		}

		return ReasonTransportError
	}

	var netErr net.Error

	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonPingTimeout
	}

	return ReasonTransportClose
}
