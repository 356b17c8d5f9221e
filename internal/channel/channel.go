// Package channel is the registry of chat channels a session belongs to.
package channel

import (
	"sync"

	"github.com/matt0x6f/twitch-session/internal/constants"
	"github.com/matt0x6f/twitch-session/internal/logger"
	"github.com/matt0x6f/twitch-session/internal/message"
)

// Recorder persists messages appended to a channel
type Recorder interface {
	RecordMessage(m *message.Message) error
}

// Channel holds the recent history of one chat channel
type Channel struct {
	name     string
	limit    int
	recorder Recorder

	mu      sync.RWMutex
	history []*message.Message
}

// New creates a channel keeping at most limit messages in memory
func New(name string, limit int, recorder Recorder) *Channel {
	if limit <= 0 {
		limit = constants.MessageHistory
	}
	return &Channel{name: name, limit: limit, recorder: recorder}
}

// Name returns the normalised channel name
func (c *Channel) Name() string {
	return c.name
}

// Append adds a message, evicting the oldest once the history is full
func (c *Channel) Append(m *message.Message) {
	c.mu.Lock()
	c.history = append(c.history, m)
	if over := len(c.history) - c.limit; over > 0 {
		copy(c.history, c.history[over:])
		for i := len(c.history) - over; i < len(c.history); i++ {
			c.history[i] = nil
		}
		c.history = c.history[:len(c.history)-over]
	}
	c.mu.Unlock()

	if c.recorder != nil {
		if err := c.recorder.RecordMessage(m); err != nil {
			logger.Log.Warn().Err(err).Str("channel", c.name).Msg("Failed to record message")
		}
	}
}

// Messages returns a copy of the history, oldest first
func (c *Channel) Messages() []*message.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*message.Message(nil), c.history...)
}

// Len returns the number of messages in memory
func (c *Channel) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.history)
}
