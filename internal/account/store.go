package account

import (
	"fmt"

	"github.com/matt0x6f/twitch-session/internal/storage"
	"github.com/matt0x6f/twitch-session/internal/validation"
)

// SecretStore keeps oauth tokens outside the database
type SecretStore interface {
	StoreToken(username, token string) error
	GetToken(username string) (string, error)
	DeleteToken(username string) error
}

// Store persists identities: metadata in sqlite, tokens in the secret store
type Store struct {
	storage *storage.Storage
	secrets SecretStore
}

// NewStore creates an account store
func NewStore(st *storage.Storage, secrets SecretStore) *Store {
	return &Store{storage: st, secrets: secrets}
}

// Add saves an identity, replacing any existing account with the same username
func (s *Store) Add(id Identity) error {
	if err := validation.ValidateUsername(id.Username); err != nil {
		return fmt.Errorf("invalid account: %w", err)
	}

	acc := &storage.Account{
		Username:  id.Login(),
		ClientID:  id.ClientID,
		Anonymous: id.Anonymous,
	}
	if err := s.storage.UpsertAccount(acc); err != nil {
		return err
	}
	if err := s.secrets.StoreToken(acc.Username, id.Token()); err != nil {
		return err
	}
	return nil
}

// Get loads an identity including its token
func (s *Store) Get(username string) (Identity, error) {
	acc, err := s.storage.GetAccount(username)
	if err != nil {
		return Identity{}, err
	}
	return s.hydrate(acc)
}

// Default loads the default identity
func (s *Store) Default() (Identity, error) {
	acc, err := s.storage.GetDefaultAccount()
	if err != nil {
		return Identity{}, err
	}
	return s.hydrate(acc)
}

// SetDefault marks an account as the one used when none is named
func (s *Store) SetDefault(username string) error {
	return s.storage.SetDefaultAccount(username)
}

// List returns all stored identities without tokens
func (s *Store) List() ([]Identity, error) {
	accounts, err := s.storage.GetAccounts()
	if err != nil {
		return nil, err
	}
	ids := make([]Identity, 0, len(accounts))
	for _, acc := range accounts {
		ids = append(ids, Identity{
			Username:  acc.Username,
			ClientID:  acc.ClientID,
			Anonymous: acc.Anonymous,
		})
	}
	return ids, nil
}

// Remove deletes an account and its token
func (s *Store) Remove(username string) error {
	if err := s.storage.DeleteAccount(username); err != nil {
		return err
	}
	return s.secrets.DeleteToken(username)
}

func (s *Store) hydrate(acc *storage.Account) (Identity, error) {
	id := Identity{
		Username:  acc.Username,
		ClientID:  acc.ClientID,
		Anonymous: acc.Anonymous,
	}
	if acc.Anonymous {
		return id, nil
	}
	token, err := s.secrets.GetToken(acc.Username)
	if err != nil {
		return Identity{}, err
	}
	id.OAuthToken = token
	return id, nil
}
