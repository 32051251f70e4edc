package peer

import (
	"testing"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoopbackPair(t *testing.T) (offerer, answerer *WebRTC) {
	t.Helper()

	cfg := WebRTCConfig{IncludeLoopback: true}

	offerer, err := NewWebRTC(cfg, true)
	require.NoError(t, err)
	t.Cleanup(func() { offerer.Close() })

	answerer, err = NewWebRTC(cfg, false)
	require.NoError(t, err)
	t.Cleanup(func() { answerer.Close() })

	return offerer, answerer
}

// relay delivers signals from one side to the other in emission order on a
// separate goroutine, the way a side channel would.
func relay(t *testing.T, to Conn) func(Signal) {
	signals := make(chan Signal, 64)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case s := <-signals:
				_ = to.Signal(s)
			case <-done:
				return
			}
		}
	}()

	t.Cleanup(func() { close(done) })

	return func(s Signal) {
		select {
		case signals <- s:
		case <-done:
		}
	}
}

func candidateInit(candidate string) *webrtc.ICECandidateInit {
	return &webrtc.ICECandidateInit{Candidate: candidate}
}

func TestWebRTC_NegotiateAndExchange(t *testing.T) {
	offerer, answerer := newLoopbackPair(t)

	offererUp := make(chan struct{})
	answererUp := make(chan struct{})
	received := make(chan []byte, 1)

	offerer.OnSignal(relay(t, answerer))
	offerer.OnConnect(func() { close(offererUp) })

	answererErrs := make(chan error, 4)

	answerer.readSize = 1024

	answerer.OnSignal(relay(t, offerer))
	answerer.OnConnect(func() { close(answererUp) })
	answerer.OnData(func(payload []byte) { received <- payload })
	answerer.OnError(func(err error) { answererErrs <- err })

	require.NoError(t, answerer.Start())
	require.NoError(t, offerer.Start())

	for _, up := range []chan struct{}{offererUp, answererUp} {
		select {
		case <-up:
		case <-time.After(20 * time.Second):
			t.Fatal("negotiation did not complete")
		}
	}

	assert.True(t, offerer.Connected())
	require.NoError(t, offerer.Send([]byte(`["greet","hi"]`)))

	select {
	case payload := <-received:
		assert.Equal(t, `["greet","hi"]`, string(payload))
	case <-time.After(10 * time.Second):
		t.Fatal("message not delivered")
	}

	// A message longer than the receiver's read buffer is dropped and the
	// receiver stays up.
	require.NoError(t, offerer.Send(make([]byte, 2048)))

	require.NoError(t, offerer.Send([]byte(`["after"]`)))

	select {
	case payload := <-received:
		assert.Equal(t, `["after"]`, string(payload))
	case <-time.After(10 * time.Second):
		t.Fatal("message after an oversized one not delivered")
	}

	assert.True(t, answerer.Connected())
	assert.Empty(t, answererErrs)
}

func TestWebRTC_SendBeforeConnect(t *testing.T) {
	conn, err := NewWebRTC(WebRTCConfig{}, true)
	require.NoError(t, err)
	defer conn.Close()

	assert.ErrorIs(t, conn.Send([]byte("x")), ErrNotConnected)
	assert.ErrorIs(t, conn.Send(make([]byte, maxMessageSize+1)), ErrMessageTooLarge)
	assert.False(t, conn.Connected())
}

func TestWebRTC_CloseIsIdempotent(t *testing.T) {
	conn, err := NewWebRTC(WebRTCConfig{}, false)
	require.NoError(t, err)

	closes := 0
	conn.OnClose(func() { closes++ })
	require.NoError(t, conn.Start())

	assert.NoError(t, conn.Close())
	assert.NoError(t, conn.Close())
	assert.Equal(t, 1, closes)
}

func TestWebRTC_UnknownSignal(t *testing.T) {
	conn, err := NewWebRTC(WebRTCConfig{}, false)
	require.NoError(t, err)
	defer conn.Close()

	assert.Error(t, conn.Signal(Signal{Type: "bogus"}))
}

func TestWebRTC_CandidateBeforeDescriptionIsQueued(t *testing.T) {
	conn, err := NewWebRTC(WebRTCConfig{}, false)
	require.NoError(t, err)
	defer conn.Close()

	candidate := "candidate:1 1 udp 2130706431 127.0.0.1 50000 typ host"

	err = conn.Signal(Signal{
		Type:      SignalCandidate,
		Candidate: candidateInit(candidate),
	})
	require.NoError(t, err)

	conn.candidatesMx.Lock()
	defer conn.candidatesMx.Unlock()
	assert.Len(t, conn.candidates, 1)
}
