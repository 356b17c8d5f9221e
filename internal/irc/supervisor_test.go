package irc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ergochat/irc-go/ircmsg"
	"github.com/matt0x6f/twitch-session/internal/account"
	"github.com/matt0x6f/twitch-session/internal/blocklist"
	"github.com/matt0x6f/twitch-session/internal/emotes"
	"github.com/matt0x6f/twitch-session/internal/events"
)

type fakeTransport struct {
	cfg     TransportConfig
	release chan struct{}
	openErr error

	mu        sync.Mutex
	sent      []string
	caps      []string
	closed    bool
	onMessage func(ircmsg.Message)
	onPrivate func(ircmsg.Message)
	onLost    func(error)
}

func (t *fakeTransport) Open() error {
	<-t.release
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errTransportClosed
	}
	return t.openErr
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		// unblock a pending Open
		select {
		case <-t.release:
		default:
			close(t.release)
		}
	}
	return nil
}

func (t *fakeTransport) SendRaw(line string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errTransportClosed
	}
	t.sent = append(t.sent, line)
	return nil
}

func (t *fakeTransport) OnMessage(fn func(ircmsg.Message)) {
	t.mu.Lock()
	t.onMessage = fn
	t.mu.Unlock()
}

func (t *fakeTransport) OnDisconnect(fn func(error)) {
	t.mu.Lock()
	t.onLost = fn
	t.mu.Unlock()
}

// drop simulates the server closing an open link
func (t *fakeTransport) drop() {
	t.mu.Lock()
	fn := t.onLost
	t.mu.Unlock()
	fn(ErrConnectionLost)
}

func (t *fakeTransport) OnPrivateMessage(fn func(ircmsg.Message)) {
	t.mu.Lock()
	t.onPrivate = fn
	t.mu.Unlock()
}

func (t *fakeTransport) RequestCapabilities(caps ...string) {
	t.mu.Lock()
	t.caps = append(t.caps, caps...)
	t.mu.Unlock()
}

func (t *fakeTransport) Sent() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.sent...)
}

func (t *fakeTransport) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *fakeTransport) deliverPrivate(line string) {
	msg, err := ircmsg.ParseLine(line)
	if err != nil {
		panic(err)
	}
	t.mu.Lock()
	fn := t.onPrivate
	t.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
}

// ready lets Open return
func (t *fakeTransport) ready() {
	t.mu.Lock()
	defer t.mu.Unlock()
	select {
	case <-t.release:
	default:
		close(t.release)
	}
}

// fakeDialer hands out transports in dial order
type fakeDialer struct {
	mu         sync.Mutex
	transports []*fakeTransport
	dialed     chan *fakeTransport
	autoOpen   bool
	openErr    error
}

func newFakeDialer(autoOpen bool) *fakeDialer {
	return &fakeDialer{dialed: make(chan *fakeTransport, 64), autoOpen: autoOpen}
}

func (d *fakeDialer) Dial(cfg TransportConfig) Transport {
	t := &fakeTransport{cfg: cfg, release: make(chan struct{}), openErr: d.openErr}
	if d.autoOpen {
		close(t.release)
	}
	d.mu.Lock()
	d.transports = append(d.transports, t)
	d.mu.Unlock()
	d.dialed <- t
	return t
}

func (d *fakeDialer) next(t *testing.T) *fakeTransport {
	t.Helper()
	select {
	case tr := <-d.dialed:
		return tr
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dial")
		return nil
	}
}

type fakeRemote struct {
	mu           sync.Mutex
	blockCalls   int
	emoteCalls   int
	blocked      []string
	blockErr     error
	sets         emotes.Sets
	blockRelease chan struct{}
}

func (r *fakeRemote) FetchBlockedUsers(ctx context.Context, id account.Identity) ([]string, error) {
	r.mu.Lock()
	r.blockCalls++
	release := r.blockRelease
	r.mu.Unlock()
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return r.blocked, r.blockErr
}

func (r *fakeRemote) FetchEmotes(ctx context.Context, id account.Identity) (emotes.Sets, error) {
	r.mu.Lock()
	r.emoteCalls++
	r.mu.Unlock()
	return r.sets, nil
}

func (r *fakeRemote) calls() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.blockCalls, r.emoteCalls
}

type staticChannels []string

func (c staticChannels) Names() []string { return c }

// eventRecorder keeps every bus event so tests can wait on them in any order
type eventRecorder struct {
	mu       sync.Mutex
	seen     []events.Event
	consumed map[int]bool
}

func newEventRecorder(bus *events.EventBus) *eventRecorder {
	r := &eventRecorder{consumed: make(map[int]bool)}
	bus.Subscribe(events.Wildcard, events.SubscriberFunc(func(e events.Event) {
		r.mu.Lock()
		r.seen = append(r.seen, e)
		r.mu.Unlock()
	}))
	return r
}

func (r *eventRecorder) take(eventType string) (events.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.seen {
		if e.Type == eventType && !r.consumed[i] {
			r.consumed[i] = true
			return e, true
		}
	}
	return events.Event{}, false
}

func (r *eventRecorder) mustEvent(t *testing.T, eventType string) events.Event {
	t.Helper()
	var got events.Event
	waitFor(t, eventType, func() bool {
		e, ok := r.take(eventType)
		got = e
		return ok
	})
	return got
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func user(name string) account.Identity {
	return account.Identity{Username: name, ClientID: "cid", OAuthToken: "tok"}
}

func newTestSupervisor(t *testing.T, d *fakeDialer, remote RemoteService, channels ChannelLister) (*Supervisor, *events.EventBus) {
	t.Helper()
	bus := events.NewEventBus()
	s := NewSupervisor(SupervisorConfig{
		Dialer:   d.Dial,
		Remote:   remote,
		Channels: channels,
		Bus:      bus,
	})
	t.Cleanup(s.Close)
	return s, bus
}

func TestConnectPublishesAndJoinsChannels(t *testing.T) {
	d := newFakeDialer(true)
	s, bus := newTestSupervisor(t, d, nil, staticChannels{"foo", "bar"})
	rec := newEventRecorder(bus)

	gen, err := s.Connect(user("Alice"))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if gen != 1 {
		t.Fatalf("generation = %d, want 1", gen)
	}

	rec.mustEvent(t, EventConnectionEstablished)
	tr := d.next(t)

	if cur, ok := s.CurrentGeneration(); !ok || cur != 1 {
		t.Fatalf("current generation = %d, %v", cur, ok)
	}
	sent := tr.Sent()
	if len(sent) != 2 || sent[0] != "JOIN #foo" || sent[1] != "JOIN #bar" {
		t.Fatalf("sent = %q", sent)
	}
	if tr.cfg.Nick != "alice" || tr.cfg.Password != "oauth:tok" {
		t.Fatalf("transport config = %+v", tr.cfg)
	}
	if len(tr.caps) != 2 || tr.caps[0] != CapCommands || tr.caps[1] != CapTags {
		t.Fatalf("caps = %q", tr.caps)
	}
}

func TestSupersededConnectIsDiscarded(t *testing.T) {
	d := newFakeDialer(false)
	s, bus := newTestSupervisor(t, d, nil, staticChannels{"foo"})
	rec := newEventRecorder(bus)

	if _, err := s.Connect(user("alice")); err != nil {
		t.Fatal(err)
	}
	first := d.next(t)

	if _, err := s.Connect(user("bob")); err != nil {
		t.Fatal(err)
	}
	second := d.next(t)

	// second finishes first and becomes current
	second.ready()
	e := rec.mustEvent(t, EventConnectionEstablished)
	if e.Data["generation"] != uint64(2) {
		t.Fatalf("established generation = %v", e.Data["generation"])
	}

	// first finishes late and must be thrown away
	first.ready()
	e = rec.mustEvent(t, EventConnectionDiscarded)
	if e.Data["generation"] != uint64(1) {
		t.Fatalf("discarded generation = %v", e.Data["generation"])
	}
	waitFor(t, "first transport closed", first.IsClosed)

	if cur, _ := s.CurrentGeneration(); cur != 2 {
		t.Fatalf("current generation = %d, want 2", cur)
	}
	if len(first.Sent()) != 0 {
		t.Fatalf("discarded connection sent %q", first.Sent())
	}

	if err := s.SendMessage("foo", "hi"); err != nil {
		t.Fatal(err)
	}
	sent := second.Sent()
	if sent[len(sent)-1] != "PRIVMSG #foo :hi" {
		t.Fatalf("sent = %q", sent)
	}
}

func TestRapidConnectsSettleOnLast(t *testing.T) {
	d := newFakeDialer(false)
	s, bus := newTestSupervisor(t, d, nil, nil)
	rec := newEventRecorder(bus)

	const n = 5
	var transports []*fakeTransport
	for i := 0; i < n; i++ {
		if _, err := s.Connect(user("alice")); err != nil {
			t.Fatal(err)
		}
		transports = append(transports, d.next(t))
	}
	if got := s.Generation(); got != n {
		t.Fatalf("generation = %d, want %d", got, n)
	}

	// release in reverse order
	for i := n - 1; i >= 0; i-- {
		transports[i].ready()
	}

	rec.mustEvent(t, EventConnectionEstablished)
	waitFor(t, "older attempts closed", func() bool {
		for _, tr := range transports[:n-1] {
			if !tr.IsClosed() {
				return false
			}
		}
		return true
	})

	if cur, ok := s.CurrentGeneration(); !ok || cur != n {
		t.Fatalf("current generation = %d, %v", cur, ok)
	}
	if transports[n-1].IsClosed() {
		t.Fatal("latest transport was closed")
	}
}

func TestDisconnectCancelsInFlightConnect(t *testing.T) {
	d := newFakeDialer(false)
	s, bus := newTestSupervisor(t, d, nil, nil)
	rec := newEventRecorder(bus)

	if _, err := s.Connect(user("alice")); err != nil {
		t.Fatal(err)
	}
	tr := d.next(t)

	s.Disconnect()
	if err := s.Send("PING"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Send err = %v, want ErrNotConnected", err)
	}

	tr.ready()
	rec.mustEvent(t, EventConnectionDiscarded)

	if s.IsConnected() {
		t.Fatal("in-flight connect was published after Disconnect")
	}
	if err := s.JoinChannel("foo"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("JoinChannel err = %v, want ErrNotConnected", err)
	}
}

func TestDisconnectClosesCurrent(t *testing.T) {
	d := newFakeDialer(true)
	s, bus := newTestSupervisor(t, d, nil, nil)
	rec := newEventRecorder(bus)

	if _, err := s.Connect(user("alice")); err != nil {
		t.Fatal(err)
	}
	tr := d.next(t)
	rec.mustEvent(t, EventConnectionEstablished)

	s.Disconnect()
	rec.mustEvent(t, EventConnectionClosed)
	if !tr.IsClosed() {
		t.Fatal("transport not closed")
	}
	if s.IsConnected() {
		t.Fatal("still connected")
	}
}

func TestOpenFailureEmitsFailed(t *testing.T) {
	d := newFakeDialer(true)
	d.openErr = errors.New("connection refused")
	s, bus := newTestSupervisor(t, d, nil, nil)
	rec := newEventRecorder(bus)

	if _, err := s.Connect(user("alice")); err != nil {
		t.Fatal(err)
	}
	e := rec.mustEvent(t, EventConnectionFailed)
	err, _ := e.Data["error"].(error)
	if !errors.Is(err, ErrConnectFailed) {
		t.Fatalf("error = %v, want ErrConnectFailed", err)
	}
	if s.IsConnected() {
		t.Fatal("failed connection became current")
	}
}

func TestAnonymousSkipsBlocklistFetch(t *testing.T) {
	d := newFakeDialer(true)
	remote := &fakeRemote{sets: emotes.Sets{"0": {{ID: 25, Code: "Kappa"}}}}
	s, bus := newTestSupervisor(t, d, remote, nil)
	rec := newEventRecorder(bus)

	if _, err := s.Connect(account.Anonymous("")); err != nil {
		t.Fatal(err)
	}
	rec.mustEvent(t, EventEmotesUpdated)
	rec.mustEvent(t, EventConnectionEstablished)

	blocks, emoteCalls := remote.calls()
	if blocks != 0 {
		t.Fatalf("blocklist fetched %d times for anonymous identity", blocks)
	}
	if emoteCalls != 1 {
		t.Fatalf("emote fetches = %d, want 1", emoteCalls)
	}
	if tr := d.next(t); tr.cfg.Password != "" {
		t.Fatalf("anonymous password = %q", tr.cfg.Password)
	}
	if _, ok := s.Emotes().Lookup("Kappa"); !ok {
		t.Fatal("emote not stored")
	}
}

func TestBlocklistFetchReplacesCache(t *testing.T) {
	d := newFakeDialer(true)
	remote := &fakeRemote{blocked: []string{"troll", "spammer"}}
	bus := events.NewEventBus()
	cache := blocklist.New()
	cache.Insert("stale")
	s := NewSupervisor(SupervisorConfig{Dialer: d.Dial, Remote: remote, Blocked: cache, Bus: bus})
	t.Cleanup(s.Close)
	rec := newEventRecorder(bus)

	if _, err := s.Connect(user("alice")); err != nil {
		t.Fatal(err)
	}
	rec.mustEvent(t, EventBlocklistUpdated)

	if cache.Contains("stale") {
		t.Fatal("old entry survived ReplaceAll")
	}
	if !cache.Contains("TROLL") || !cache.Contains("spammer") {
		t.Fatalf("cache = %v", cache.Snapshot())
	}
}

func TestBlocklistFetchFailureKeepsCache(t *testing.T) {
	d := newFakeDialer(true)
	remote := &fakeRemote{blockErr: errors.New("500 Internal Server Error")}
	bus := events.NewEventBus()
	cache := blocklist.New()
	cache.Insert("kept")
	s := NewSupervisor(SupervisorConfig{Dialer: d.Dial, Remote: remote, Blocked: cache, Bus: bus})
	t.Cleanup(s.Close)
	rec := newEventRecorder(bus)

	if _, err := s.Connect(user("alice")); err != nil {
		t.Fatal(err)
	}
	e := rec.mustEvent(t, EventFetchFailed)
	if e.Data["fetch"] != "blocklist" {
		t.Fatalf("fetch = %v", e.Data["fetch"])
	}
	if !cache.Contains("kept") || cache.Len() != 1 {
		t.Fatalf("cache = %v", cache.Snapshot())
	}
}

func TestStaleBlocklistResultIsApplied(t *testing.T) {
	d := newFakeDialer(true)
	remote := &fakeRemote{blocked: []string{"troll"}, blockRelease: make(chan struct{})}
	s, bus := newTestSupervisor(t, d, remote, nil)
	rec := newEventRecorder(bus)

	if _, err := s.Connect(user("alice")); err != nil {
		t.Fatal(err)
	}
	rec.mustEvent(t, EventConnectionEstablished)
	s.Disconnect()

	close(remote.blockRelease)
	rec.mustEvent(t, EventBlocklistUpdated)
	if !s.Blocked().Contains("troll") {
		t.Fatal("stale fetch result was not applied")
	}
}

func TestInboundFromSupersededGenerationDropped(t *testing.T) {
	d := newFakeDialer(false)
	var mu sync.Mutex
	var got []string
	bus := events.NewEventBus()
	s := NewSupervisor(SupervisorConfig{
		Dialer: d.Dial,
		Bus:    bus,
		Handlers: Handlers{PrivateMessage: func(msg ircmsg.Message) {
			mu.Lock()
			got = append(got, msg.Params[1])
			mu.Unlock()
		}},
	})
	t.Cleanup(s.Close)
	rec := newEventRecorder(bus)

	if _, err := s.Connect(user("alice")); err != nil {
		t.Fatal(err)
	}
	first := d.next(t)
	if _, err := s.Connect(user("alice")); err != nil {
		t.Fatal(err)
	}
	second := d.next(t)
	second.ready()
	rec.mustEvent(t, EventConnectionEstablished)

	first.deliverPrivate(":x!x@x PRIVMSG #foo :old")
	second.deliverPrivate(":x!x@x PRIVMSG #foo :new")

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "new" {
		t.Fatalf("delivered = %q", got)
	}
}

func TestConnectAfterClose(t *testing.T) {
	d := newFakeDialer(false)
	s := NewSupervisor(SupervisorConfig{Dialer: d.Dial})

	if _, err := s.Connect(user("alice")); err != nil {
		t.Fatal(err)
	}
	d.next(t)

	// Close must not hang on the pending Open
	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}

	if _, err := s.Connect(user("alice")); !errors.Is(err, ErrClosed) {
		t.Fatalf("Connect err = %v, want ErrClosed", err)
	}
}

func TestDroppedConnectionIsNotRedialed(t *testing.T) {
	d := newFakeDialer(true)
	s, bus := newTestSupervisor(t, d, nil, staticChannels{"foo"})
	rec := newEventRecorder(bus)

	if _, err := s.Connect(user("alice")); err != nil {
		t.Fatal(err)
	}
	rec.mustEvent(t, EventConnectionEstablished)
	tr := d.next(t)

	tr.drop()

	e := rec.mustEvent(t, EventConnectionClosed)
	if err, _ := e.Data["error"].(error); !errors.Is(err, ErrConnectionLost) {
		t.Fatalf("closed error = %v", e.Data["error"])
	}
	if s.IsConnected() {
		t.Fatal("lost connection still current")
	}
	if !tr.IsClosed() {
		t.Fatal("lost transport not closed")
	}
	if err := s.Send("PING"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Send err = %v, want ErrNotConnected", err)
	}

	time.Sleep(50 * time.Millisecond)
	d.mu.Lock()
	dials := len(d.transports)
	d.mu.Unlock()
	if dials != 1 {
		t.Fatalf("dials = %d, want 1", dials)
	}
}

func TestDropDuringRegistrationFails(t *testing.T) {
	d := newFakeDialer(false)
	s, bus := newTestSupervisor(t, d, nil, nil)
	rec := newEventRecorder(bus)

	if _, err := s.Connect(user("alice")); err != nil {
		t.Fatal(err)
	}
	tr := d.next(t)
	waitFor(t, "disconnect callback", func() bool {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		return tr.onLost != nil
	})
	tr.drop()
	tr.ready()

	e := rec.mustEvent(t, EventConnectionFailed)
	err, _ := e.Data["error"].(error)
	if !errors.Is(err, ErrConnectFailed) || !errors.Is(err, ErrConnectionLost) {
		t.Fatalf("failed error = %v", err)
	}
	if s.IsConnected() {
		t.Fatal("dropped connection was published")
	}
	if _, ok := rec.take(EventConnectionEstablished); ok {
		t.Fatal("established emitted for dropped connection")
	}
}

func TestDropOfSupersededConnectionIsIgnored(t *testing.T) {
	d := newFakeDialer(true)
	s, bus := newTestSupervisor(t, d, nil, nil)
	rec := newEventRecorder(bus)

	if _, err := s.Connect(user("alice")); err != nil {
		t.Fatal(err)
	}
	rec.mustEvent(t, EventConnectionEstablished)
	first := d.next(t)

	if _, err := s.Connect(user("bob")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "second connection", func() bool {
		gen, ok := s.CurrentGeneration()
		return ok && gen == 2
	})
	d.next(t)

	first.drop()
	if gen, ok := s.CurrentGeneration(); !ok || gen != 2 {
		t.Fatalf("current generation = %d, %v", gen, ok)
	}
}
