package irc

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/ergochat/irc-go/ircevent"
	"github.com/ergochat/irc-go/ircmsg"
	"github.com/matt0x6f/twitch-session/internal/logger"
)

// ErrConnectionLost is reported when an open connection drops
var ErrConnectionLost = errors.New("connection lost")

// Transport is one raw chat connection. Callbacks must be registered before Open.
// A transport never redials on its own; once it is lost it stays closed.
type Transport interface {
	Open() error
	Close() error
	SendRaw(line string) error
	OnMessage(func(ircmsg.Message))
	OnPrivateMessage(func(ircmsg.Message))
	// OnDisconnect is called once if the link drops after a successful Open.
	// It is not called for drops caused by Close.
	OnDisconnect(func(err error))
	RequestCapabilities(caps ...string)
}

// TransportConfig is what the supervisor knows about a connection before dialing
type TransportConfig struct {
	Server   string
	UseTLS   bool
	Nick     string
	Password string
}

// Dialer builds an unopened transport
type Dialer func(cfg TransportConfig) Transport

// twitchCommands are the non-PRIVMSG commands forwarded to OnMessage
var twitchCommands = []string{
	"CLEARCHAT", "CLEARMSG", "ROOMSTATE", "USERSTATE", "GLOBALUSERSTATE",
	"USERNOTICE", "WHISPER", "NOTICE", "HOSTTARGET", "RECONNECT", "JOIN", "PART",
}

var errTransportClosed = errors.New("transport closed")

// eventTransport is a Transport backed by an ircevent connection
type eventTransport struct {
	conn *ircevent.Connection

	// closing aborts a dial in progress
	closing     context.Context
	stopClosing context.CancelFunc

	mu           sync.Mutex
	socket       net.Conn
	opened       bool
	closed       bool
	lost         bool
	onDisconnect func(err error)
}

// NewTransport is the default Dialer
func NewTransport(cfg TransportConfig) Transport {
	ircLog := logger.Component("ircevent")
	closing, stop := context.WithCancel(context.Background())

	t := &eventTransport{
		closing:     closing,
		stopClosing: stop,
	}
	t.conn = &ircevent.Connection{
		Server:      cfg.Server,
		Nick:        cfg.Nick,
		User:        cfg.Nick,
		RealName:    cfg.Nick,
		Password:    cfg.Password,
		UseTLS:      cfg.UseTLS,
		Log:         log.New(ircLog, "", 0),
		DialContext: t.dial,
	}
	t.conn.AddDisconnectCallback(func(ircmsg.Message) {
		t.disconnected()
	})
	return t
}

// dial wraps the default dialer so Close can abort a pending handshake
func (t *eventTransport) dial(ctx context.Context, network, addr string) (net.Conn, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(t.closing, cancel)
	defer stop()

	socket, err := (&net.Dialer{}).DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		socket.Close()
		return nil, errTransportClosed
	}
	t.socket = socket
	return socket, nil
}

// disconnected runs on the ircevent read loop when a registered link ends.
// Quit keeps Loop from redialing.
func (t *eventTransport) disconnected() {
	t.conn.Quit()

	t.mu.Lock()
	if t.closed || t.lost {
		t.mu.Unlock()
		return
	}
	t.lost = true
	opened := t.opened
	fn := t.onDisconnect
	t.mu.Unlock()

	logger.Log.Warn().Str("server", t.conn.Server).Msg("Connection lost")
	if opened && fn != nil {
		fn(ErrConnectionLost)
	}
}

func (t *eventTransport) OnMessage(fn func(ircmsg.Message)) {
	for _, command := range twitchCommands {
		t.conn.AddCallback(command, fn)
	}
}

func (t *eventTransport) OnPrivateMessage(fn func(ircmsg.Message)) {
	t.conn.AddCallback("PRIVMSG", fn)
}

func (t *eventTransport) OnDisconnect(fn func(err error)) {
	t.mu.Lock()
	t.onDisconnect = fn
	t.mu.Unlock()
}

// RequestCapabilities queues CAP REQs that ircevent negotiates during Connect
func (t *eventTransport) RequestCapabilities(caps ...string) {
	t.conn.RequestCaps = append(t.conn.RequestCaps, caps...)
}

func (t *eventTransport) Open() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return errTransportClosed
	}
	t.mu.Unlock()

	if err := t.conn.Connect(); err != nil {
		t.mu.Lock()
		closed := t.closed
		t.mu.Unlock()
		if closed {
			return errTransportClosed
		}
		return fmt.Errorf("failed to connect to %s: %w", t.conn.Server, err)
	}

	t.mu.Lock()
	t.opened = true
	closed, lost := t.closed, t.lost
	t.mu.Unlock()

	go t.conn.Loop()

	switch {
	case closed:
		// Close raced with the handshake
		t.conn.Quit()
		return errTransportClosed
	case lost:
		return ErrConnectionLost
	}
	return nil
}

// Close quits an open connection or aborts a pending handshake
func (t *eventTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.stopClosing()

	if t.opened {
		t.conn.Quit()
	} else if t.socket != nil {
		// unblocks Connect, which waits on the socket for the welcome
		t.socket.Close()
	}
	return nil
}

func (t *eventTransport) SendRaw(line string) error {
	t.mu.Lock()
	ready := t.opened && !t.closed && !t.lost
	t.mu.Unlock()
	if !ready {
		return errTransportClosed
	}
	return t.conn.SendRaw(line)
}
