package rtc

import (
	"socket-rtc/pkg/events"
	"socket-rtc/pkg/log"
	"socket-rtc/pkg/peer"
	"socket-rtc/pkg/signal"

	"github.com/pkg/errors"
)

// ClientTransport is the persistent side-channel connection of a client.
// signal.Client is one.
type ClientTransport interface {
	signal.Participant

	// Start begins delivering frames to the registered handlers.
	Start()
}

var _ ClientTransport = (*signal.Client)(nil)

// Client is the role with exactly one peer, the server. Application events
// received from it are emitted on the lifecycle bus.
type Client struct {
	transport ClientTransport

	handle    *Handle
	relay     *relay
	lifecycle *events.Bus
}

// NewClient creates the initiating engine connection and wires it to
// transport. Negotiation begins with Start.
func NewClient(transport ClientTransport, factory peer.Factory) (*Client, error) {
	conn, err := factory(true)
	if err != nil {
		return nil, errors.Wrap(err, "create engine connection")
	}

	c := &Client{
		transport: transport,
		handle:    newHandle(transport.ID(), conn),
		lifecycle: events.New(),
	}

	c.relay = &relay{
		handle:      c.handle,
		participant: transport,
		lifecycle:   c.lifecycle,
		inbound:     c.lifecycle,
		connected: func(h *Handle) {
			c.lifecycle.Emit(EventConnect, h.id)
		},
		forget: func(*Handle) {},
	}

	c.relay.wire()

	return c, nil
}

// Start opens the side channel and sends the offer. Listeners registered
// before Start observe every lifecycle event.
func (c *Client) Start() {
	c.transport.Start()
	c.relay.start()
}

func (c *Client) On(event string, listener events.Listener) {
	c.lifecycle.On(event, listener)
}

func (c *Client) Listen(event string, listener events.Listener) (cancel func()) {
	return c.lifecycle.Listen(event, listener)
}

// ID is the identity the side channel assigned to this client.
func (c *Client) ID() string {
	return c.handle.id
}

func (c *Client) Connected() bool {
	return c.handle.State() == Connected
}

func (c *Client) State() State {
	return c.handle.State()
}

// Send delivers one application event to the server.
func (c *Client) Send(event string, args ...any) error {
	err := c.handle.Send(event, args...)
	if errors.Is(err, ErrNotConnected) {
		log.Error("peer is not connected")
	}

	return err
}

// Close destroys the engine connection and leaves the side channel.
func (c *Client) Close() error {
	c.handle.Close()

	return c.transport.Close()
}
