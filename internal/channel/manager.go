package channel

import (
	"fmt"
	"sort"
	"sync"

	"github.com/matt0x6f/twitch-session/internal/logger"
	"github.com/matt0x6f/twitch-session/internal/validation"
)

// Store persists the channel list between runs
type Store interface {
	ListChannels() ([]string, error)
	SaveChannel(name string) error
	RemoveChannel(name string) error
}

// Manager is the set of channels joined on every connect
type Manager struct {
	store    Store
	recorder Recorder
	history  int

	mu       sync.RWMutex
	channels map[string]*Channel
}

// NewManager creates a registry. store and recorder may be nil.
func NewManager(store Store, recorder Recorder, history int) *Manager {
	return &Manager{
		store:    store,
		recorder: recorder,
		history:  history,
		channels: make(map[string]*Channel),
	}
}

// Load populates the registry from the store
func (m *Manager) Load() error {
	if m.store == nil {
		return nil
	}
	names, err := m.store.ListChannels()
	if err != nil {
		return fmt.Errorf("failed to load channels: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, name := range names {
		name = validation.NormalizeChannel(name)
		if validation.ValidateChannelName(name) != nil {
			logger.Log.Warn().Str("channel", name).Msg("Skipping invalid stored channel")
			continue
		}
		if _, ok := m.channels[name]; !ok {
			m.channels[name] = New(name, m.history, m.recorder)
		}
	}
	logger.Log.Debug().Int("count", len(m.channels)).Msg("Loaded channels")
	return nil
}

// Add registers a channel, persisting it when a store is configured.
// Adding a known channel returns the existing one.
func (m *Manager) Add(name string) (*Channel, error) {
	name = validation.NormalizeChannel(name)
	if err := validation.ValidateChannelName(name); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.channels[name]; ok {
		return ch, nil
	}
	if m.store != nil {
		if err := m.store.SaveChannel(name); err != nil {
			return nil, fmt.Errorf("failed to save channel %s: %w", name, err)
		}
	}
	ch := New(name, m.history, m.recorder)
	m.channels[name] = ch
	return ch, nil
}

// Remove drops a channel. It reports whether the channel was registered.
func (m *Manager) Remove(name string) (bool, error) {
	name = validation.NormalizeChannel(name)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.channels[name]; !ok {
		return false, nil
	}
	if m.store != nil {
		if err := m.store.RemoveChannel(name); err != nil {
			return false, fmt.Errorf("failed to remove channel %s: %w", name, err)
		}
	}
	delete(m.channels, name)
	return true, nil
}

// Channel looks up a channel by name, with or without the leading '#'
func (m *Manager) Channel(name string) (*Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[validation.NormalizeChannel(name)]
	return ch, ok
}

// Items returns the registered channels sorted by name
func (m *Manager) Items() []*Channel {
	m.mu.RLock()
	items := make([]*Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		items = append(items, ch)
	}
	m.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool { return items[i].name < items[j].name })
	return items
}

// Names returns the registered channel names, sorted
func (m *Manager) Names() []string {
	m.mu.RLock()
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	m.mu.RUnlock()

	sort.Strings(names)
	return names
}
