package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// Client is the single persistent side-channel connection of a client role.
// Dial returns once the server has assigned the identity; frames flow after
// Start.
type Client struct {
	*Socket
}

type ClientConfig struct {
	URL    string
	Header http.Header
	Sealer Sealer
}

func Dial(ctx context.Context, cfg ClientConfig) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, cfg.Header)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", cfg.URL)
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	conn.SetReadDeadline(deadline)

	var frame Frame

	if err := conn.ReadJSON(&frame); err != nil {
		conn.Close()

		return nil, errors.Wrap(err, "read hello")
	}

	if frame.Event != EventHello {
		conn.Close()

		return nil, errors.Errorf("expected %q frame, got %q", EventHello, frame.Event)
	}

	var h hello

	if err := json.Unmarshal(frame.Payload, &h); err != nil || h.ID == "" {
		conn.Close()

		return nil, errors.New("hello without identity")
	}

	return &Client{
		Socket: newSocket(h.ID, conn, cfg.Sealer),
	}, nil
}
