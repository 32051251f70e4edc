package peer

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"socket-rtc/pkg/log"

	"github.com/pion/datachannel"
	"github.com/pion/webrtc/v3"
	"github.com/pkg/errors"
)

// maxMessageSize bounds a single data channel message, both ways.
const maxMessageSize = 64 * 1024

const dataChannelLabel = "data"

var _ Conn = (*WebRTC)(nil)

type WebRTC struct {
	initiator bool

	conn *webrtc.PeerConnection

	// readSize is the read buffer of the data channel; longer messages are
	// dropped.
	readSize int

	channel   datachannel.ReadWriteCloser
	channelMx sync.Mutex

	// Remote candidates received before the remote description.
	candidates   []webrtc.ICECandidateInit
	candidatesMx sync.Mutex

	signalHandler  func(Signal)
	connectHandler func()
	dataHandler    func([]byte)
	closeHandler   func()
	errorHandler   func(error)

	connected   atomic.Bool
	closed      atomic.Bool
	connectOnce sync.Once
	destroyOnce sync.Once
}

type WebRTCConfig struct {
	STUN []string

	DisconnectedTimeout time.Duration
	FailedTimeout       time.Duration
	KeepAliveInterval   time.Duration

	// IncludeLoopback gathers 127.0.0.1 host candidates, which same-machine
	// peers need when no other interface is up.
	IncludeLoopback bool
}

func (cfg WebRTCConfig) withDefaults() WebRTCConfig {
	if cfg.DisconnectedTimeout == 0 {
		cfg.DisconnectedTimeout = 5 * time.Second
	}

	if cfg.FailedTimeout == 0 {
		cfg.FailedTimeout = 25 * time.Second
	}

	if cfg.KeepAliveInterval == 0 {
		cfg.KeepAliveInterval = 2 * time.Second
	}

	return cfg
}

func NewWebRTCFactory(cfg WebRTCConfig) Factory {
	return func(initiator bool) (Conn, error) {
		return NewWebRTC(cfg, initiator)
	}
}

func NewWebRTC(cfg WebRTCConfig, initiator bool) (*WebRTC, error) {
	cfg = cfg.withDefaults()

	ice := make([]webrtc.ICEServer, len(cfg.STUN))

	for i, stun := range cfg.STUN {
		ice[i] = webrtc.ICEServer{
			URLs: []string{"stun:" + stun},
		}
	}

	settings := webrtc.SettingEngine{}

	settings.DetachDataChannels()
	settings.SetICETimeouts(cfg.DisconnectedTimeout, cfg.FailedTimeout, cfg.KeepAliveInterval)
	settings.SetIncludeLoopbackCandidate(cfg.IncludeLoopback)

	api := webrtc.NewAPI(webrtc.WithSettingEngine(settings))

	conn, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: ice,
	})
	if err != nil {
		return nil, err
	}

	p := &WebRTC{
		initiator:      initiator,
		conn:           conn,
		readSize:       maxMessageSize,
		signalHandler:  func(Signal) {},
		connectHandler: func() {},
		dataHandler:    func([]byte) {},
		closeHandler:   func() {},
		errorHandler:   func(error) {},
	}

	p.conn.OnICECandidate(p.onConnICECandidate)
	p.conn.OnConnectionStateChange(p.onConnStateChange)

	return p, nil
}

func (p *WebRTC) OnSignal(h func(Signal)) {
	p.signalHandler = h
}

func (p *WebRTC) OnConnect(h func()) {
	p.connectHandler = h
}

func (p *WebRTC) OnData(h func([]byte)) {
	p.dataHandler = h
}

func (p *WebRTC) OnClose(h func()) {
	p.closeHandler = h
}

func (p *WebRTC) OnError(h func(error)) {
	p.errorHandler = h
}

func (p *WebRTC) Start() error {
	if !p.initiator {
		p.conn.OnDataChannel(p.registerDataChannel)

		return nil
	}

	return p.offer()
}

func (p *WebRTC) Signal(s Signal) error {
	switch s.Type {
	case SignalOffer, SignalAnswer:
		return p.onSignalSDP(s)
	case SignalCandidate:
		return p.onSignalCandidate(s)
	default:
		return errors.Errorf("unknown signal type %q", s.Type)
	}
}

func (p *WebRTC) Send(payload []byte) error {
	if len(payload) > maxMessageSize {
		return errors.Wrapf(ErrMessageTooLarge, "%d bytes", len(payload))
	}

	p.channelMx.Lock()
	channel := p.channel
	p.channelMx.Unlock()

	if channel == nil || !p.connected.Load() {
		return ErrNotConnected
	}

	_, err := channel.WriteDataChannel(payload, true)

	return err
}

func (p *WebRTC) Connected() bool {
	return p.connected.Load()
}

func (p *WebRTC) Close() error {
	var err error

	p.destroyOnce.Do(func() {
		p.connected.Store(false)

		p.channelMx.Lock()
		if p.channel != nil {
			if cerr := p.channel.Close(); cerr != nil {
				log.Debugf("data channel close: %s", cerr)
			}
		}
		p.channelMx.Unlock()

		err = p.conn.Close()
	})

	p.fireClose()

	return err
}

func (p *WebRTC) offer() error {
	dataChannel, err := p.conn.CreateDataChannel(dataChannelLabel, nil)
	if err != nil {
		return err
	}

	p.registerDataChannel(dataChannel)

	offer, err := p.conn.CreateOffer(nil)
	if err != nil {
		return err
	}

	if err := p.conn.SetLocalDescription(offer); err != nil {
		return err
	}

	p.signalHandler(Signal{Type: SignalOffer, SDP: offer.SDP})

	return nil
}

func (p *WebRTC) onSignalSDP(s Signal) error {
	sdp := webrtc.SessionDescription{
		Type: webrtc.NewSDPType(s.Type),
		SDP:  s.SDP,
	}

	p.candidatesMx.Lock()
	defer p.candidatesMx.Unlock()

	if err := p.conn.SetRemoteDescription(sdp); err != nil {
		return errors.Wrap(err, "set remote description")
	}

	if sdp.Type == webrtc.SDPTypeOffer {
		if err := p.onSignalSDPOffer(); err != nil {
			return err
		}
	}

	for _, candidate := range p.candidates {
		if err := p.conn.AddICECandidate(candidate); err != nil {
			return errors.Wrap(err, "add queued candidate")
		}
	}

	p.candidates = nil

	return nil
}

func (p *WebRTC) onSignalSDPOffer() error {
	answer, err := p.conn.CreateAnswer(nil)
	if err != nil {
		return errors.Wrap(err, "create answer")
	}

	if err := p.conn.SetLocalDescription(answer); err != nil {
		return errors.Wrap(err, "set local description")
	}

	p.signalHandler(Signal{Type: SignalAnswer, SDP: answer.SDP})

	return nil
}

func (p *WebRTC) onSignalCandidate(s Signal) error {
	if s.Candidate == nil {
		return nil
	}

	p.candidatesMx.Lock()
	defer p.candidatesMx.Unlock()

	if p.conn.RemoteDescription() == nil {
		p.candidates = append(p.candidates, *s.Candidate)

		return nil
	}

	return errors.Wrap(p.conn.AddICECandidate(*s.Candidate), "add candidate")
}

func (p *WebRTC) onConnICECandidate(candidate *webrtc.ICECandidate) {
	if candidate == nil {
		return
	}

	if p.conn.ConnectionState() == webrtc.PeerConnectionStateClosed {
		return
	}

	init := candidate.ToJSON()

	p.signalHandler(Signal{Type: SignalCandidate, Candidate: &init})
}

func (p *WebRTC) onConnStateChange(state webrtc.PeerConnectionState) {
	log.Debugf("connection state changed: %s", state)

	switch state {
	case webrtc.PeerConnectionStateFailed:
		p.errorHandler(errors.New("ice connection failed"))
		p.fireClose()
	case webrtc.PeerConnectionStateDisconnected,
		webrtc.PeerConnectionStateClosed:
		p.fireClose()
	}
}

func (p *WebRTC) registerDataChannel(channel *webrtc.DataChannel) {
	channel.OnOpen(func() {
		detached, err := channel.Detach()
		if err != nil {
			p.errorHandler(errors.Wrap(err, "detach data channel"))

			return
		}

		p.channelMx.Lock()
		p.channel = detached
		p.channelMx.Unlock()

		p.connectOnce.Do(func() {
			p.connected.Store(true)
			p.connectHandler()
		})

		go p.readLoop(detached)
	})
}

func (p *WebRTC) readLoop(channel datachannel.ReadWriteCloser) {
	buf := make([]byte, p.readSize)

	for {
		n, _, err := channel.ReadDataChannel(buf)
		if errors.Is(err, io.ErrShortBuffer) {
			// The message is consumed by the failed read.
			log.Warnf("dropping data channel message over %d bytes", p.readSize)

			continue
		}

		if err != nil {
			if !errors.Is(err, io.EOF) && p.connected.Load() {
				p.errorHandler(errors.Wrap(err, "read data channel"))
			}

			p.fireClose()

			return
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])

		p.dataHandler(payload)
	}
}

// fireClose runs the close handler once. The handler may call Close.
func (p *WebRTC) fireClose() {
	if p.closed.Swap(true) {
		return
	}

	p.connected.Store(false)
	p.closeHandler()
}
