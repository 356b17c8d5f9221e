package validation

import (
	"fmt"
	"strings"
)

// maxLoginLength is the longest login name Twitch accepts
const maxLoginLength = 25

// ValidateUsername validates a Twitch login name (case-insensitive)
func ValidateUsername(username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("username is required")
	}
	if len(username) > maxLoginLength {
		return fmt.Errorf("username too long (max %d characters)", maxLoginLength)
	}
	for _, r := range username {
		if !isLoginRune(r) {
			return fmt.Errorf("username contains invalid character %q", r)
		}
	}
	return nil
}

func isLoginRune(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// NormalizeChannel strips a leading '#' and lower-cases the name
func NormalizeChannel(channel string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(channel), "#"))
}

// ValidateChannelName validates a channel name with or without the leading '#'.
// Twitch channels are named after their owner's login.
func ValidateChannelName(channel string) error {
	name := NormalizeChannel(channel)
	if name == "" {
		return fmt.Errorf("channel name is required")
	}
	if strings.ContainsAny(name, " \x00\x07\x0A\x0D,") {
		return fmt.Errorf("channel name contains invalid characters")
	}
	if err := ValidateUsername(name); err != nil {
		return fmt.Errorf("invalid channel name: %w", err)
	}
	return nil
}
