// Package account defines chat identities and their persistent store.
package account

import (
	"strings"

	"github.com/matt0x6f/twitch-session/internal/constants"
)

// Identity is the user a session connects as. It is a value type; a session
// swaps it wholesale between connect cycles.
type Identity struct {
	Username   string
	ClientID   string
	OAuthToken string
	Anonymous  bool
}

// Anonymous returns the read-only identity used when no account is configured
func Anonymous(clientID string) Identity {
	if clientID == "" {
		clientID = constants.DefaultClientID
	}
	return Identity{
		Username:  constants.AnonymousUsername,
		ClientID:  clientID,
		Anonymous: true,
	}
}

// Password returns the IRC PASS value, or empty for anonymous identities
func (i Identity) Password() string {
	if i.Anonymous || i.OAuthToken == "" {
		return ""
	}
	if strings.HasPrefix(i.OAuthToken, "oauth:") {
		return i.OAuthToken
	}
	return "oauth:" + i.OAuthToken
}

// Token returns the bare oauth token as the REST API expects it
func (i Identity) Token() string {
	return strings.TrimPrefix(i.OAuthToken, "oauth:")
}

// Login returns the lower-cased username
func (i Identity) Login() string {
	return strings.ToLower(i.Username)
}
