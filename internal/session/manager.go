// Package session composes the connection supervisor, the blocklist and the
// channel registry into the chat session used by the rest of the application.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ergochat/irc-go/ircmsg"
	"github.com/matt0x6f/twitch-session/internal/account"
	"github.com/matt0x6f/twitch-session/internal/blocklist"
	"github.com/matt0x6f/twitch-session/internal/channel"
	"github.com/matt0x6f/twitch-session/internal/constants"
	"github.com/matt0x6f/twitch-session/internal/emotes"
	"github.com/matt0x6f/twitch-session/internal/events"
	"github.com/matt0x6f/twitch-session/internal/irc"
	"github.com/matt0x6f/twitch-session/internal/logger"
	"github.com/matt0x6f/twitch-session/internal/message"
	"github.com/matt0x6f/twitch-session/internal/notify"
	"github.com/matt0x6f/twitch-session/internal/validation"
)

// Events emitted by the session
const (
	EventUserIgnored   = "user.ignored"
	EventUserUnignored = "user.unignored"
)

// ErrAnonymous is returned for operations that need a logged-in identity
var ErrAnonymous = errors.New("anonymous identity")

// IgnoreService is the backend the session talks to
type IgnoreService interface {
	irc.RemoteService
	BlockUser(ctx context.Context, id account.Identity, target string) error
	UnblockUser(ctx context.Context, id account.Identity, target string) error
}

// Options configures a Manager. Zero values fall back to defaults.
type Options struct {
	Server            string
	UseTLS            bool
	RemoteCallTimeout time.Duration
	FetchTimeout      time.Duration

	Identity account.Identity
	Remote   IgnoreService
	Channels *channel.Manager
	Builder  message.Builder
	Dialer   irc.Dialer
	Bus      *events.EventBus
	Notifier notify.Notifier
}

// Manager is one chat session for one identity at a time
type Manager struct {
	remote   IgnoreService
	channels *channel.Manager
	builder  message.Builder
	bus      *events.EventBus
	notifier notify.Notifier
	timeout  time.Duration

	blocked    *blocklist.Cache
	emotes     *emotes.Store
	supervisor *irc.Supervisor

	mu          sync.RWMutex
	identity    account.Identity
	lastErr     error
	unsubscribe []func()
}

// New creates a session. Nothing is dialed until Connect.
func New(opts Options) *Manager {
	if opts.Identity.Username == "" {
		opts.Identity = account.Anonymous("")
	}
	if opts.RemoteCallTimeout <= 0 {
		opts.RemoteCallTimeout = constants.RemoteCallTimeout
	}
	if opts.Channels == nil {
		opts.Channels = channel.NewManager(nil, nil, constants.MessageHistory)
	}
	if opts.Builder == nil {
		opts.Builder = message.NewTwitchBuilder()
	}
	if opts.Bus == nil {
		opts.Bus = events.NewEventBus()
	}

	m := &Manager{
		remote:   opts.Remote,
		channels: opts.Channels,
		builder:  opts.Builder,
		bus:      opts.Bus,
		notifier: opts.Notifier,
		timeout:  opts.RemoteCallTimeout,
		blocked:  blocklist.New(),
		emotes:   emotes.NewStore(),
		identity: opts.Identity,
	}

	cfg := irc.SupervisorConfig{
		Server:       opts.Server,
		UseTLS:       opts.UseTLS,
		FetchTimeout: opts.FetchTimeout,
		Dialer:       opts.Dialer,
		Remote:       opts.Remote,
		Channels:     opts.Channels,
		Blocked:      m.blocked,
		Emotes:       m.emotes,
		Bus:          opts.Bus,
		Handlers: irc.Handlers{
			Message:        m.messageReceived,
			PrivateMessage: m.privateMessageReceived,
		},
	}
	m.supervisor = irc.NewSupervisor(cfg)
	m.unsubscribe = []func(){
		m.bus.Subscribe(irc.EventConnectionFailed, m),
		m.bus.Subscribe(irc.EventConnectionClosed, m),
	}

	return m
}

// Bus returns the event bus the session emits on
func (m *Manager) Bus() *events.EventBus {
	return m.bus
}

// Channels returns the channel registry
func (m *Manager) Channels() *channel.Manager {
	return m.channels
}

// Identity returns the identity used by the next Connect
func (m *Manager) Identity() account.Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.identity
}

// SetIdentity swaps the identity. The current connection is kept until the
// next Connect.
func (m *Manager) SetIdentity(id account.Identity) {
	m.mu.Lock()
	m.identity = id
	m.mu.Unlock()
	logger.Log.Info().Str("user", id.Login()).Bool("anonymous", id.Anonymous).Msg("Identity changed")
}

// Connect starts a new connection for the current identity
func (m *Manager) Connect() (uint64, error) {
	m.mu.Lock()
	m.lastErr = nil
	id := m.identity
	m.mu.Unlock()

	return m.supervisor.Connect(id)
}

// Disconnect drops the current connection
func (m *Manager) Disconnect() {
	m.supervisor.Disconnect()
}

// IsConnected reports whether a connection is current
func (m *Manager) IsConnected() bool {
	return m.supervisor.IsConnected()
}

// Send writes a raw line to the current connection
func (m *Manager) Send(raw string) error {
	return m.supervisor.Send(raw)
}

// SendMessage sends text to a channel
func (m *Manager) SendMessage(channelName, text string) error {
	name := validation.NormalizeChannel(channelName)
	if err := validation.ValidateChannelName(name); err != nil {
		return err
	}
	return m.supervisor.SendMessage(name, text)
}

// JoinChannel adds a channel to the registry and joins it when connected
func (m *Manager) JoinChannel(name string) error {
	ch, err := m.channels.Add(name)
	if err != nil {
		return err
	}
	if err := m.supervisor.JoinChannel(ch.Name()); err != nil && !errors.Is(err, irc.ErrNotConnected) {
		return err
	}
	return nil
}

// PartChannel removes a channel from the registry and leaves it when connected
func (m *Manager) PartChannel(name string) error {
	name = validation.NormalizeChannel(name)
	if _, err := m.channels.Remove(name); err != nil {
		return err
	}
	if err := m.supervisor.PartChannel(name); err != nil && !errors.Is(err, irc.ErrNotConnected) {
		return err
	}
	return nil
}

// IsBlockedUser reports whether username is on the local blocklist
func (m *Manager) IsBlockedUser(username string) bool {
	return m.blocked.Contains(username)
}

// BlockedUsers returns the blocklist, sorted
func (m *Manager) BlockedUsers() []string {
	return m.blocked.Snapshot()
}

// Emotes returns the emote sets of the current identity
func (m *Manager) Emotes() *emotes.Store {
	return m.emotes
}

// AddIgnoredUser blocks username on the backend and, on success, in the local cache
func (m *Manager) AddIgnoredUser(ctx context.Context, username string) error {
	return m.changeIgnore(ctx, "ignoring", username, true)
}

// RemoveIgnoredUser unblocks username on the backend and, on success, in the local cache
func (m *Manager) RemoveIgnoredUser(ctx context.Context, username string) error {
	return m.changeIgnore(ctx, "unignoring", username, false)
}

func (m *Manager) changeIgnore(ctx context.Context, op, username string, block bool) error {
	if err := validation.ValidateUsername(username); err != nil {
		return err
	}
	target := strings.ToLower(username)

	id := m.Identity()
	if id.Anonymous {
		return &IgnoreError{Op: op, Username: target, Kind: ErrRemoteCallFailed, Err: ErrAnonymous}
	}
	if m.remote == nil {
		return &IgnoreError{Op: op, Username: target, Kind: ErrRemoteCallFailed, Err: errors.New("no backend configured")}
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var err error
	if block {
		err = m.remote.BlockUser(ctx, id, target)
	} else {
		err = m.remote.UnblockUser(ctx, id, target)
	}
	if err != nil {
		ignoreErr := newIgnoreError(op, target, err)
		logger.Log.Warn().Err(err).Str("user", target).Str("op", op).Msg("Ignore request failed")
		return ignoreErr
	}

	eventType := EventUserIgnored
	if block {
		m.blocked.Insert(target)
	} else {
		m.blocked.Remove(target)
		eventType = EventUserUnignored
	}
	logger.Log.Info().Str("user", target).Str("op", op).Msg("Ignore list changed")
	m.bus.Emit(events.New(eventType, events.EventSourceSession, map[string]interface{}{
		"user": target,
	}))
	return nil
}

// OnEvent records connection failures and lost connections and surfaces them
// to the user. A Disconnect closes without an error and is not recorded.
func (m *Manager) OnEvent(event events.Event) {
	err, _ := event.Data["error"].(error)

	title := "Connection failed"
	switch event.Type {
	case irc.EventConnectionFailed:
		if err == nil {
			err = irc.ErrConnectFailed
		}
	case irc.EventConnectionClosed:
		if err == nil {
			return
		}
		title = "Connection lost"
	default:
		return
	}

	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()

	m.notifyUser(title, err.Error())
}

// LastError returns the last connection failure or loss since Connect
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// Close disconnects and stops background work
func (m *Manager) Close() {
	for _, unsubscribe := range m.unsubscribe {
		unsubscribe()
	}
	m.supervisor.Close()
}

func (m *Manager) notifyUser(title, body string) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Notify(title, body); err != nil {
		logger.Log.Debug().Err(err).Msg("Notification failed")
	}
}

// messageReceived forwards non-PRIVMSG commands to the bus
func (m *Manager) messageReceived(msg ircmsg.Message) {
	m.bus.Emit(events.New(irc.EventCommandReceived, events.EventSourceIRC, map[string]interface{}{
		"command": msg.Command,
		"params":  msg.Params,
		"nick":    msg.Nick(),
	}))

	if msg.Command == "RECONNECT" {
		logger.Log.Info().Msg("Server requested reconnect")
		go func() {
			if _, err := m.Connect(); err != nil {
				logger.Log.Warn().Err(err).Msg("Reconnect failed")
			}
		}()
	}
}

// privateMessageReceived routes a PRIVMSG to its channel
func (m *Manager) privateMessageReceived(msg ircmsg.Message) {
	if len(msg.Params) < 2 {
		return
	}
	ch, ok := m.channels.Channel(msg.Params[0])
	if !ok {
		logger.Log.Debug().Str("target", msg.Params[0]).Msg("Message for unknown channel")
		return
	}

	id := m.Identity()
	built, err := m.builder.Build(msg, ch.Name(), message.ParseArgs{
		IsBlocked: m.blocked.Contains,
		Self:      id.Login(),
	})
	if err != nil {
		logger.Log.Debug().Err(err).Str("channel", ch.Name()).Msg("Could not build message")
		return
	}
	if built.Blocked {
		logger.Log.Trace().Str("channel", ch.Name()).Str("user", built.Sender).Msg("Dropped message from blocked user")
		return
	}

	ch.Append(built)
	m.bus.Emit(events.New(irc.EventMessageReceived, events.EventSourceIRC, map[string]interface{}{
		"channel": ch.Name(),
		"message": built,
	}))

	if built.Highlighted {
		m.notifyUser(fmt.Sprintf("#%s", ch.Name()), fmt.Sprintf("%s: %s", built.DisplayName, built.Text))
	}
}
