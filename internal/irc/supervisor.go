package irc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ergochat/irc-go/ircmsg"
	"github.com/matt0x6f/twitch-session/internal/account"
	"github.com/matt0x6f/twitch-session/internal/blocklist"
	"github.com/matt0x6f/twitch-session/internal/constants"
	"github.com/matt0x6f/twitch-session/internal/emotes"
	"github.com/matt0x6f/twitch-session/internal/events"
	"github.com/matt0x6f/twitch-session/internal/logger"
)

var (
	// ErrNotConnected is returned when there is no current connection
	ErrNotConnected = errors.New("not connected")
	// ErrConnectFailed wraps transport open errors
	ErrConnectFailed = errors.New("connect failed")
	// ErrClosed is returned by Connect after Close
	ErrClosed = errors.New("supervisor closed")
)

// RemoteService fetches per-identity state in the background of a connect
type RemoteService interface {
	FetchBlockedUsers(ctx context.Context, id account.Identity) ([]string, error)
	FetchEmotes(ctx context.Context, id account.Identity) (emotes.Sets, error)
}

// ChannelLister enumerates the channels to join when a connection is published
type ChannelLister interface {
	Names() []string
}

// Handlers receive inbound events from the current connection
type Handlers struct {
	Message        func(msg ircmsg.Message)
	PrivateMessage func(msg ircmsg.Message)
}

// SupervisorConfig configures a Supervisor
type SupervisorConfig struct {
	Server       string
	UseTLS       bool
	FetchTimeout time.Duration
	Dialer       Dialer
	Remote       RemoteService
	Channels     ChannelLister
	Blocked      *blocklist.Cache
	Emotes       *emotes.Store
	Bus          *events.EventBus
	Handlers     Handlers
}

type fetchKind string

const (
	fetchBlocklist fetchKind = "blocklist"
	fetchEmotes    fetchKind = "emotes"
)

// fetchResult is posted by a background fetch to the apply loop
type fetchResult struct {
	kind       fetchKind
	generation uint64
	username   string
	blocked    []string
	emotes     emotes.Sets
	err        error
}

// handle is a published connection
type handle struct {
	transport  Transport
	identity   account.Identity
	generation uint64
}

// Supervisor owns the single current connection and the generation counter.
// Both are guarded by mu. The blocklist and emote store have their own locks
// and are only touched from the apply loop and by callers outside mu.
type Supervisor struct {
	cfg SupervisorConfig

	mu         sync.RWMutex
	current    *handle
	generation uint64
	// generations <= cancelled will not be published
	cancelled uint64
	closed    bool
	// unpublished transports, closed by Close so pending Opens return
	pending map[uint64]Transport

	results chan fetchResult
	ctx     context.Context
	cancel  context.CancelFunc
	applyWg sync.WaitGroup
	wg      sync.WaitGroup
}

// NewSupervisor creates a supervisor and starts its apply loop
func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	if cfg.Server == "" {
		cfg.Server = constants.DefaultServer
	}
	if cfg.Dialer == nil {
		cfg.Dialer = NewTransport
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = constants.FetchTimeout
	}
	if cfg.Blocked == nil {
		cfg.Blocked = blocklist.New()
	}
	if cfg.Emotes == nil {
		cfg.Emotes = emotes.NewStore()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		cfg:     cfg,
		pending: make(map[uint64]Transport),
		results: make(chan fetchResult),
		ctx:     ctx,
		cancel:  cancel,
	}

	s.applyWg.Add(1)
	go s.applyLoop()

	return s
}

// Connect tears down the current connection and starts a new connect sequence
// for id. It returns the generation of the new attempt and never blocks on I/O.
func (s *Supervisor) Connect(id account.Identity) (uint64, error) {
	s.Disconnect()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrClosed
	}
	s.generation++
	gen := s.generation
	s.wg.Add(1)
	s.mu.Unlock()

	logger.Log.Info().Uint64("generation", gen).Str("user", id.Login()).Msg("Connecting")

	go s.runConnectSequence(id, gen)
	return gen, nil
}

// Disconnect clears the current connection. In-flight connect sequences will
// discard themselves when they reach the publish step.
func (s *Supervisor) Disconnect() {
	s.mu.Lock()
	h := s.current
	s.current = nil
	s.cancelled = s.generation
	s.mu.Unlock()

	if h == nil {
		return
	}

	if err := h.transport.Close(); err != nil {
		logger.Log.Warn().Err(err).Uint64("generation", h.generation).Msg("Failed to close connection")
	}
	logger.Log.Info().Uint64("generation", h.generation).Str("user", h.identity.Login()).Msg("Disconnected")
	s.emit(EventConnectionClosed, map[string]interface{}{
		"generation": h.generation,
		"user":       h.identity.Login(),
	})
}

// Close disconnects, cancels background fetches and waits for every goroutine
func (s *Supervisor) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	pending := make([]Transport, 0, len(s.pending))
	for _, t := range s.pending {
		pending = append(pending, t)
	}
	s.mu.Unlock()

	for _, t := range pending {
		_ = t.Close()
	}
	s.Disconnect()
	s.cancel()
	s.wg.Wait()
	s.applyWg.Wait()
}

// Send forwards a raw line to the current connection. The lock covers only
// the lookup of the handle, not the write.
func (s *Supervisor) Send(raw string) error {
	s.mu.RLock()
	h := s.current
	s.mu.RUnlock()

	if h == nil {
		return ErrNotConnected
	}
	if err := h.transport.SendRaw(raw); err != nil {
		return fmt.Errorf("failed to send: %w", err)
	}
	return nil
}

// JoinChannel sends JOIN #name
func (s *Supervisor) JoinChannel(name string) error {
	return s.Send("JOIN #" + name)
}

// PartChannel sends PART #name
func (s *Supervisor) PartChannel(name string) error {
	return s.Send("PART #" + name)
}

// SendMessage sends PRIVMSG #channel :text
func (s *Supervisor) SendMessage(channel, text string) error {
	logger.Log.Debug().Str("channel", channel).Str("message", text).Msg("Sending message")
	return s.Send("PRIVMSG #" + channel + " :" + text)
}

// IsConnected reports whether a connection is current
func (s *Supervisor) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current != nil
}

// Generation returns the latest issued generation
func (s *Supervisor) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// CurrentGeneration returns the generation of the current connection
func (s *Supervisor) CurrentGeneration() (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return 0, false
	}
	return s.current.generation, true
}

// Blocked returns the blocklist the supervisor refreshes on connect
func (s *Supervisor) Blocked() *blocklist.Cache {
	return s.cfg.Blocked
}

// Emotes returns the emote store the supervisor refreshes on connect
func (s *Supervisor) Emotes() *emotes.Store {
	return s.cfg.Emotes
}

// isLatest reports whether gen is the newest attempt and has not been cancelled
func (s *Supervisor) isLatest(gen uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return gen == s.generation && gen > s.cancelled
}

func (s *Supervisor) runConnectSequence(id account.Identity, gen uint64) {
	defer s.wg.Done()

	log := logger.Component("supervisor").With().Uint64("generation", gen).Str("user", id.Login()).Logger()

	t := s.cfg.Dialer(TransportConfig{
		Server:   s.cfg.Server,
		UseTLS:   s.cfg.UseTLS,
		Nick:     id.Login(),
		Password: id.Password(),
	})

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = t.Close()
		return
	}
	s.pending[gen] = t
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, gen)
		s.mu.Unlock()
	}()

	// Callbacks go in before Open so nothing sent during registration is lost.
	// Events of superseded attempts are dropped.
	t.OnMessage(func(msg ircmsg.Message) {
		if s.cfg.Handlers.Message != nil && s.isLatest(gen) {
			s.cfg.Handlers.Message(msg)
		}
	})
	t.OnPrivateMessage(func(msg ircmsg.Message) {
		if s.cfg.Handlers.PrivateMessage != nil && s.isLatest(gen) {
			s.cfg.Handlers.PrivateMessage(msg)
		}
	})

	// set before the lock is taken, so either publish or connectionLost sees it
	var lost atomic.Bool
	t.OnDisconnect(func(err error) {
		lost.Store(true)
		s.connectionLost(gen, err)
	})

	if s.cfg.Remote != nil {
		if !id.Anonymous {
			s.startFetch(fetchBlocklist, id, gen)
		}
		s.startFetch(fetchEmotes, id, gen)
	}

	t.RequestCapabilities(CapCommands, CapTags)

	if err := t.Open(); err != nil {
		_ = t.Close()
		connErr := fmt.Errorf("%w: %w", ErrConnectFailed, err)
		if !s.isLatest(gen) {
			log.Debug().Err(err).Msg("Superseded connection attempt failed")
			return
		}
		log.Error().Err(err).Msg("Connection failed")
		s.emit(EventConnectionFailed, map[string]interface{}{
			"generation": gen,
			"user":       id.Login(),
			"error":      connErr,
		})
		return
	}

	s.mu.Lock()
	if lost.Load() {
		s.mu.Unlock()
		_ = t.Close()
		if s.isLatest(gen) {
			log.Error().Msg("Connection dropped during registration")
			s.emit(EventConnectionFailed, map[string]interface{}{
				"generation": gen,
				"user":       id.Login(),
				"error":      fmt.Errorf("%w: %w", ErrConnectFailed, ErrConnectionLost),
			})
		}
		return
	}
	if s.closed || gen != s.generation || gen <= s.cancelled {
		latest := s.generation
		s.mu.Unlock()

		log.Info().Uint64("latest", latest).Msg("Discarding superseded connection")
		_ = t.Close()
		s.emit(EventConnectionDiscarded, map[string]interface{}{
			"generation": gen,
			"latest":     latest,
		})
		return
	}

	s.current = &handle{transport: t, identity: id, generation: gen}

	var channels []string
	if s.cfg.Channels != nil {
		channels = s.cfg.Channels.Names()
	}
	for _, name := range channels {
		if err := t.SendRaw("JOIN #" + name); err != nil {
			log.Warn().Err(err).Str("channel", name).Msg("Failed to join channel")
		}
	}
	s.mu.Unlock()

	log.Info().Int("channels", len(channels)).Msg("Connection established")
	s.emit(EventConnectionEstablished, map[string]interface{}{
		"generation": gen,
		"user":       id.Login(),
		"channels":   channels,
	})
}

// connectionLost clears the current connection if it is still generation gen.
// There is no retry; the caller decides whether to Connect again.
func (s *Supervisor) connectionLost(gen uint64, cause error) {
	s.mu.Lock()
	h := s.current
	if h == nil || h.generation != gen {
		s.mu.Unlock()
		return
	}
	s.current = nil
	s.mu.Unlock()

	_ = h.transport.Close()
	logger.Log.Warn().Err(cause).Uint64("generation", gen).Str("user", h.identity.Login()).Msg("Connection lost")
	s.emit(EventConnectionClosed, map[string]interface{}{
		"generation": gen,
		"user":       h.identity.Login(),
		"error":      cause,
	})
}

// startFetch runs one background fetch. Its result is posted to the apply loop.
func (s *Supervisor) startFetch(kind fetchKind, id account.Identity, gen uint64) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(s.ctx, s.cfg.FetchTimeout)
		defer cancel()

		res := fetchResult{kind: kind, generation: gen, username: id.Login()}
		switch kind {
		case fetchBlocklist:
			res.blocked, res.err = s.cfg.Remote.FetchBlockedUsers(ctx, id)
		case fetchEmotes:
			res.emotes, res.err = s.cfg.Remote.FetchEmotes(ctx, id)
		}

		select {
		case s.results <- res:
		case <-s.ctx.Done():
		}
	}()
}

func (s *Supervisor) applyLoop() {
	defer s.applyWg.Done()
	for {
		select {
		case res := <-s.results:
			s.apply(res)
		case <-s.ctx.Done():
			return
		}
	}
}

// apply updates the caches from a fetch result. Results are applied even when
// their generation was superseded; the caches follow the identity, not the
// connection.
func (s *Supervisor) apply(res fetchResult) {
	log := logger.Component("supervisor").With().
		Str("fetch", string(res.kind)).
		Uint64("generation", res.generation).
		Str("user", res.username).
		Logger()

	if !s.isLatest(res.generation) {
		log.Debug().Msg("Applying fetch result from a superseded connection")
	}

	if res.err != nil {
		log.Warn().Err(res.err).Msg("Background fetch failed")
		s.emit(EventFetchFailed, map[string]interface{}{
			"fetch":      string(res.kind),
			"generation": res.generation,
			"error":      res.err,
		})
		return
	}

	switch res.kind {
	case fetchBlocklist:
		s.cfg.Blocked.ReplaceAll(res.blocked)
		log.Info().Int("count", len(res.blocked)).Msg("Blocklist updated")
		s.emit(EventBlocklistUpdated, map[string]interface{}{
			"generation": res.generation,
			"count":      len(res.blocked),
		})
	case fetchEmotes:
		s.cfg.Emotes.Replace(res.emotes)
		log.Info().Int("sets", len(res.emotes)).Msg("Emotes updated")
		s.emit(EventEmotesUpdated, map[string]interface{}{
			"generation": res.generation,
			"sets":       len(res.emotes),
		})
	}
}

func (s *Supervisor) emit(eventType string, data map[string]interface{}) {
	s.cfg.Bus.Emit(events.New(eventType, events.EventSourceIRC, data))
}
