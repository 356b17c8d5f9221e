package security

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	// KeychainService is the service name used for storing tokens in the keychain
	KeychainService = "twitch-session"
)

// Keychain provides secure oauth token storage using the OS keychain
type Keychain struct {
	service string
}

// NewKeychain creates a new keychain instance
func NewKeychain() *Keychain {
	return &Keychain{service: KeychainService}
}

// StoreToken stores the oauth token for a username
func (k *Keychain) StoreToken(username string, token string) error {
	if token == "" {
		return k.DeleteToken(username)
	}
	if err := keyring.Set(k.service, username, token); err != nil {
		return fmt.Errorf("failed to store token in keychain: %w", err)
	}
	return nil
}

// GetToken retrieves the oauth token for a username. A missing entry is not an error.
func (k *Keychain) GetToken(username string) (string, error) {
	token, err := keyring.Get(k.service, username)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get token from keychain: %w", err)
	}
	return token, nil
}

// DeleteToken removes the oauth token for a username
func (k *Keychain) DeleteToken(username string) error {
	if err := keyring.Delete(k.service, username); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to delete token from keychain: %w", err)
	}
	return nil
}
