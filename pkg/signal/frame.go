package signal

import (
	"encoding/json"
	"time"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// Send pings with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Enough for SDP offers with embedded candidates.
	maxMessageSize = 64 * 1024

	sendBufferSize = 256
)

// EventHello is sent by the server as the first frame of every connection and
// carries the identity assigned to it.
const EventHello = "hello"

// Disconnect reasons, named the way socket.io names them.
const (
	ReasonServerDisconnect = "server disconnect"
	ReasonClientDisconnect = "client disconnect"
	ReasonTransportClose   = "transport close"
	ReasonTransportError   = "transport error"
	ReasonPingTimeout      = "ping timeout"
)

// Frame is one websocket text message.
type Frame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// Sealed marks Payload as a JSON string holding base64 ciphertext.
	Sealed bool `json:"sealed,omitempty"`
}

type hello struct {
	ID string `json:"id"`
}

// Sealer encrypts payloads before they leave the process and decrypts them on
// arrival, for deployments that relay signaling through untrusted hops.
type Sealer interface {
	Encrypt([]byte) ([]byte, error)
	Decrypt([]byte) ([]byte, error)
}
