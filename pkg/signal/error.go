package signal

import (
	"github.com/pkg/errors"
)

// ErrClosed is returned by Emit once the connection has gone away.
var ErrClosed = errors.New("signaling connection closed")

// ErrBufferFull is returned by Emit when the outbound queue of a slow
// connection is full.
var ErrBufferFull = errors.New("signaling send buffer full")

// ErrNotSealed is reported when a sealed frame arrives on a connection that
// has no Sealer, or the other way round.
var ErrNotSealed = errors.New("sealed frame mismatch")
