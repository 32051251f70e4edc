package internal

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	ossignal "os/signal"
	"sync"
	"syscall"
	"time"

	"socket-rtc/pkg/crypto"
	"socket-rtc/pkg/keystore"
	"socket-rtc/pkg/log"
	"socket-rtc/pkg/peer"
	"socket-rtc/pkg/rtc"
	"socket-rtc/pkg/signal"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

const (
	modeServer = "server"
	modeClient = "client"
	modeGenKey = "genkey"
)

// EventMessage is the application event of the demo chat.
const EventMessage = "message"

type App struct {
	mode        string
	listenAddr  string
	socketPath  string
	serverURL   string
	stunServers []string
	keyFile     string
	logLevel    string
	sendTimeout time.Duration

	stdin io.Reader

	keyStore *keystore.LocalSaver
	crypto   *crypto.AesCbc
	factory  peer.Factory

	signalServer *signal.Server
	server       *rtc.Server
	httpServer   *http.Server

	client *rtc.Client
}

func NewApp() *App {
	return &App{
		stdin: os.Stdin,
	}
}

func (a *App) Setup() (err error) {
	a.parseCmdline()

	if err := log.SetLevel(a.logLevel); err != nil {
		return errors.Wrap(err, "log level")
	}

	if len(a.keyFile) != 0 {
		a.keyStore = keystore.NewLocalSaver(keystore.LocalSaverConfig{
			KeyFile: a.keyFile,
		})
	}

	switch a.mode {
	case modeGenKey:
		if a.keyStore == nil {
			return errors.New("genkey mode requires --keyfile")
		}

		return nil
	case modeServer, modeClient:
	default:
		return errors.Errorf("unknown mode %q", a.mode)
	}

	if a.keyStore != nil {
		if err := a.setupCrypto(); err != nil {
			return err
		}
	}

	a.factory = peer.NewWebRTCFactory(peer.WebRTCConfig{
		STUN: a.stunServers,
	})

	if a.mode == modeServer {
		return a.setupServerMode()
	}

	if len(a.serverURL) == 0 {
		return errors.New("client mode requires --url")
	}

	return nil
}

func (a *App) Run(ctx context.Context, cancel context.CancelFunc) error {
	switch a.mode {
	case modeGenKey:
		return a.runGenKeyMode()
	case modeServer:
		return a.runServerMode(ctx, cancel)
	}

	return a.runClientMode(ctx, cancel)
}

func (a *App) parseCmdline() {
	pflag.StringVarP(&a.mode, "mode", "m", modeServer, "Run mode: server, client, or genkey to write a new signaling key to --keyfile")

	// Server mode options.
	pflag.StringVarP(&a.listenAddr, "listen", "l", ":8001", "Address the signaling server listens on")
	pflag.StringVar(&a.socketPath, "path", "/socket", "HTTP path of the signaling websocket")
	pflag.DurationVar(&a.sendTimeout, "send-timeout", 5*time.Second, "Upper bound of a single peer send during broadcast")

	// Client mode options.
	pflag.StringVarP(&a.serverURL, "url", "u", "", "Signaling websocket URL, e.g. ws://localhost:8001/socket")

	// Common options.
	pflag.StringSliceVarP(&a.stunServers, "stun", "S", []string{"stun.l.google.com:19302"}, "List of used STUN servers")
	pflag.StringVarP(&a.keyFile, "keyfile", "k", "", "Path to a pre-shared key sealing signaling payloads (see: --mode genkey)")
	pflag.StringVar(&a.logLevel, "loglevel", "info", "Log level: debug, info, warn or error")

	pflag.Parse()
}

func (a *App) setupCrypto() (err error) {
	key, err := a.keyStore.GetKey()
	if err != nil {
		return errors.Wrap(err, "key store")
	}

	a.crypto, err = crypto.NewAesCbc(crypto.AesCbcConfig{
		Key: key,
	})
	if err != nil {
		return errors.Wrap(err, "signaling crypto")
	}

	return nil
}

// sealer keeps a nil *AesCbc from becoming a non-nil signal.Sealer.
func (a *App) sealer() signal.Sealer {
	if a.crypto == nil {
		return nil
	}

	return a.crypto
}

func (a *App) setupServerMode() error {
	a.signalServer = signal.NewServer(signal.ServerConfig{
		Sealer: a.sealer(),
	})

	a.server = rtc.NewServer(rtc.ServerConfig{
		SendTimeout: a.sendTimeout,
	}, a.signalServer, a.factory)

	a.server.On(rtc.EventConnect, a.onServerConnect)
	a.server.On(rtc.EventDisconnect, func(args ...any) {
		d := args[0].(rtc.Disconnect)
		log.Infof("Peer %s disconnected: %s", d.ID, d.Reason)
	})
	a.server.On(rtc.EventError, func(args ...any) {
		log.Errorf("%s", args[0])
	})

	mux := http.NewServeMux()
	mux.Handle(a.socketPath, a.signalServer)
	mux.HandleFunc("/health", a.serveHealth)

	a.httpServer = &http.Server{
		Addr:    a.listenAddr,
		Handler: mux,
	}

	return nil
}

// onServerConnect relays every chat message of the new peer to all peers.
func (a *App) onServerConnect(args ...any) {
	h := args[0].(*rtc.Handle)

	log.Infof("Peer %s connected", h.ID())

	h.On(EventMessage, func(args ...any) {
		log.WithPeer(h.ID()).Infof("message: %v", args)

		if err := a.server.Broadcast(EventMessage, args...); err != nil {
			log.Errorf("broadcast: %s", err)
		}
	})
}

func (a *App) serveHealth(w http.ResponseWriter, r *http.Request) {
	connected := 0
	for range a.server.AllConnected() {
		connected++
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(map[string]int{
		"peers":     len(a.server.Peers()),
		"connected": connected,
		"signaling": a.signalServer.Count(),
	})
}

func (a *App) runGenKeyMode() error {
	key, err := keystore.GenerateKey()
	if err != nil {
		return errors.Wrap(err, "generate key")
	}

	if err := a.keyStore.SaveKey(key); err != nil {
		return errors.Wrap(err, "key store")
	}

	log.Infof("Signaling key written to %s", a.keyFile)

	return nil
}

func (a *App) runServerMode(ctx context.Context, cancel context.CancelFunc) error {
	log.Infof("Starting signaling server on %s%s", a.listenAddr, a.socketPath)
	defer log.Info("Ending signaling server")

	a.listenOS(cancel)

	listenErr := make(chan error, 1)

	go func() {
		if err := a.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}

		close(listenErr)
	}()

	var err error

	select {
	case <-ctx.Done():
	case err = <-listenErr:
	}

	a.server.Close()
	a.signalServer.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if serr := a.httpServer.Shutdown(shutdownCtx); serr != nil {
		log.Errorf("http shutdown: %s", serr)
	}

	cancel()

	return errors.Wrap(err, "http server")
}

func (a *App) runClientMode(ctx context.Context, cancel context.CancelFunc) error {
	dialCtx, dialCancel := context.WithTimeout(ctx, 10*time.Second)
	defer dialCancel()

	side, err := signal.Dial(dialCtx, signal.ClientConfig{
		URL:    a.serverURL,
		Sealer: a.sealer(),
	})
	if err != nil {
		return errors.Wrap(err, "signaling")
	}

	a.client, err = rtc.NewClient(side, a.factory)
	if err != nil {
		side.Close()

		return errors.Wrap(err, "peer connection")
	}

	log.Infof("Starting client %s", a.client.ID())
	defer log.Info("Ending client")

	a.listenOS(cancel)

	done := make(chan struct{})
	var doneOnce sync.Once

	stop := func() {
		doneOnce.Do(func() { close(done) })
	}

	a.client.On(rtc.EventConnect, func(args ...any) {
		log.Infof("Connected as %s", args[0])
	})
	a.client.On(rtc.EventDisconnect, func(args ...any) {
		log.Infof("Disconnected: %s", args[0].(rtc.Disconnect).Reason)
		stop()
	})
	a.client.On(rtc.EventError, func(args ...any) {
		err, _ := args[0].(error)
		log.Errorf("%s", err)

		if peerLost(err) {
			stop()
		}
	})
	a.client.On(EventMessage, func(args ...any) {
		log.Infof("message: %v", args)
	})

	a.client.Start()

	var wg sync.WaitGroup
	defer wg.Wait()

	wg.Add(1)
	go func() {
		defer wg.Done()

		a.readInput(ctx)
	}()

	select {
	case <-ctx.Done():
	case <-done:
	}

	a.client.Close()
	cancel()

	return nil
}

// readInput sends every line of stdin as a chat message. It returns at end
// of input; a blocked read is abandoned when ctx ends.
func (a *App) readInput(ctx context.Context) {
	lines := make(chan string)

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(a.stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}

			if len(line) == 0 {
				continue
			}

			// Not connected yet is logged by Send.
			a.client.Send(EventMessage, line)
		}
	}
}

// peerLost reports whether an error lifecycle payload ended the peer. Side
// channel errors leave it up.
func peerLost(err error) bool {
	var negotiationErr *rtc.NegotiationError

	return errors.As(err, &negotiationErr)
}

func (a *App) listenOS(cancel context.CancelFunc) {
	sigchan := make(chan os.Signal, 1)
	ossignal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigchan
		cancel()
	}()
}
