package storage

import (
	"strings"

	"github.com/matt0x6f/twitch-session/internal/message"
)

// ListChannels returns the names of channels that should be joined on connect
func (s *Storage) ListChannels() ([]string, error) {
	channels, err := s.GetChannels()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(channels))
	for _, ch := range channels {
		if ch.AutoJoin {
			names = append(names, ch.Name)
		}
	}
	return names, nil
}

// SaveChannel persists a channel with auto-join enabled
func (s *Storage) SaveChannel(name string) error {
	return s.CreateChannel(&Channel{Name: name, AutoJoin: true})
}

// SetAutoJoin turns auto-join on or off for a registered channel
func (s *Storage) SetAutoJoin(name string, autoJoin bool) error {
	name = strings.ToLower(name)
	if _, err := s.GetChannelByName(name); err != nil {
		return err
	}
	return s.UpdateChannelAutoJoin(name, autoJoin)
}

// RemoveChannel deletes a channel from the registry
func (s *Storage) RemoveChannel(name string) error {
	return s.DeleteChannel(strings.ToLower(name))
}

// RecordMessage queues a built chat message for persistence.
// Highlighted messages are written immediately.
func (s *Storage) RecordMessage(m *message.Message) error {
	messageType := "privmsg"
	if m.Action {
		messageType = "action"
	}
	write := s.WriteMessage
	if m.Highlighted {
		write = s.WriteMessageSync
	}
	return write(Message{
		Channel:     strings.ToLower(m.Channel),
		User:        m.Sender,
		DisplayName: m.DisplayName,
		Message:     m.Text,
		MessageType: messageType,
		Timestamp:   m.Timestamp,
		RawLine:     m.Raw,
	})
}
