// Package message turns inbound chat lines into display messages.
package message

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ergochat/irc-go/ircmsg"
)

// ErrNotPrivmsg is returned when the builder is handed a non-PRIVMSG line
var ErrNotPrivmsg = errors.New("not a PRIVMSG")

// EmoteRange marks an emote occurrence in the message text (inclusive rune offsets)
type EmoteRange struct {
	ID    string
	Start int
	End   int
}

// Message is a renderable chat message
type Message struct {
	ID          string
	Channel     string
	Sender      string
	DisplayName string
	Text        string
	Color       string
	Badges      []string
	Emotes      []EmoteRange
	Action      bool
	Blocked     bool
	Highlighted bool
	Timestamp   time.Time
	Raw         string
}

// ParseArgs carries the context a builder needs besides the line itself
type ParseArgs struct {
	// IsBlocked reports whether a sender is on the local blocklist
	IsBlocked func(username string) bool
	// Self is the local username, used for highlight detection
	Self string
	// Now supplies the timestamp when the line has no tmi-sent-ts tag
	Now func() time.Time
}

// Builder builds a display message for a channel
type Builder interface {
	Build(msg ircmsg.Message, channel string, args ParseArgs) (*Message, error)
}

// TwitchBuilder reads Twitch IRCv3 tags
type TwitchBuilder struct{}

// NewTwitchBuilder returns the default builder
func NewTwitchBuilder() *TwitchBuilder {
	return &TwitchBuilder{}
}

// Build implements Builder
func (b *TwitchBuilder) Build(msg ircmsg.Message, channel string, args ParseArgs) (*Message, error) {
	if msg.Command != "PRIVMSG" || len(msg.Params) < 2 {
		return nil, fmt.Errorf("build message for %s: %w", channel, ErrNotPrivmsg)
	}

	sender := msg.Nick()
	text := msg.Params[1]
	action := false
	if strings.HasPrefix(text, "\x01ACTION ") && strings.HasSuffix(text, "\x01") {
		text = strings.TrimSuffix(strings.TrimPrefix(text, "\x01ACTION "), "\x01")
		action = true
	}

	m := &Message{
		Channel: channel,
		Sender:  strings.ToLower(sender),
		Text:    text,
		Action:  action,
	}

	if ok, v := msg.GetTag("id"); ok {
		m.ID = v
	}
	if ok, v := msg.GetTag("display-name"); ok && v != "" {
		m.DisplayName = v
	} else {
		m.DisplayName = sender
	}
	if ok, v := msg.GetTag("color"); ok {
		m.Color = v
	}
	if ok, v := msg.GetTag("badges"); ok && v != "" {
		m.Badges = strings.Split(v, ",")
	}
	if ok, v := msg.GetTag("emotes"); ok && v != "" {
		m.Emotes = parseEmoteTag(v)
	}

	m.Timestamp = timestamp(msg, args)

	if args.IsBlocked != nil && args.IsBlocked(m.Sender) {
		m.Blocked = true
	}
	if self := strings.ToLower(args.Self); self != "" && m.Sender != self &&
		strings.Contains(strings.ToLower(text), self) {
		m.Highlighted = true
	}

	if line, err := msg.Line(); err == nil {
		m.Raw = strings.TrimRight(line, "\r\n")
	}

	return m, nil
}

func timestamp(msg ircmsg.Message, args ParseArgs) time.Time {
	if ok, v := msg.GetTag("tmi-sent-ts"); ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.UnixMilli(ms)
		}
	}
	if args.Now != nil {
		return args.Now()
	}
	return time.Now()
}

// parseEmoteTag parses "25:0-4,12-16/1902:6-10"
func parseEmoteTag(tag string) []EmoteRange {
	var ranges []EmoteRange
	for _, group := range strings.Split(tag, "/") {
		id, positions, ok := strings.Cut(group, ":")
		if !ok || id == "" {
			continue
		}
		for _, pos := range strings.Split(positions, ",") {
			startStr, endStr, ok := strings.Cut(pos, "-")
			if !ok {
				continue
			}
			start, err1 := strconv.Atoi(startStr)
			end, err2 := strconv.Atoi(endStr)
			if err1 != nil || err2 != nil || end < start {
				continue
			}
			ranges = append(ranges, EmoteRange{ID: id, Start: start, End: end})
		}
	}
	return ranges
}
