package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/matt0x6f/twitch-session/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

// ErrClosed is returned by writes after Close
var ErrClosed = errors.New("storage is closed")

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("not found")

const insertMessageQuery = `INSERT INTO messages (channel, user, display_name, message, message_type, timestamp, raw_line)
	VALUES (:channel, :user, :display_name, :message, :message_type, :timestamp, :raw_line)`

// Storage handles database operations
type Storage struct {
	db            *sqlx.DB
	writeBuffer   chan Message
	bufferSize    int
	flushInterval time.Duration
	mu            sync.Mutex
	stopCh        chan struct{}
	wg            sync.WaitGroup
	closed        bool
	closedMu      sync.RWMutex
}

// NewStorage opens (or creates) the database at dbPath and starts the flush loop
func NewStorage(dbPath string, bufferSize int, flushInterval time.Duration) (*Storage, error) {
	// WAL mode for concurrent reads while the flush loop writes
	db, err := sqlx.Connect("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single connection in WAL mode
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if bufferSize <= 0 {
		bufferSize = 1
	}

	s := &Storage{
		db:            db,
		writeBuffer:   make(chan Message, bufferSize),
		bufferSize:    bufferSize,
		flushInterval: flushInterval,
		stopCh:        make(chan struct{}),
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	s.wg.Add(1)
	go s.flushLoop()

	return s, nil
}

func (s *Storage) isClosed() bool {
	s.closedMu.RLock()
	defer s.closedMu.RUnlock()
	return s.closed
}

// Close flushes buffered messages and closes the database
func (s *Storage) Close() error {
	s.closedMu.Lock()
	if s.closed {
		s.closedMu.Unlock()
		return nil
	}
	s.closed = true
	s.closedMu.Unlock()

	close(s.stopCh)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		logger.Log.Debug().Msg("flushLoop still running after 500ms, proceeding with database close")
	}

	return s.db.Close()
}

// flushLoop periodically flushes the write buffer
func (s *Storage) flushLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			s.flushBuffer()
			return
		case <-ticker.C:
			s.flushBuffer()
		}
	}
}

// flushBuffer drains the write buffer into one batch insert
func (s *Storage) flushBuffer() {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages := make([]Message, 0, s.bufferSize)
drain:
	for {
		select {
		case msg := <-s.writeBuffer:
			messages = append(messages, msg)
		default:
			break drain
		}
	}
	if len(messages) == 0 {
		return
	}

	if _, err := s.db.NamedExec(insertMessageQuery, messages); err != nil {
		logger.Log.Error().Err(err).Int("count", len(messages)).Msg("Error flushing messages")
	}
}

// WriteMessage queues a message for batch insertion
func (s *Storage) WriteMessage(msg Message) error {
	if s.isClosed() {
		return ErrClosed
	}

	select {
	case s.writeBuffer <- msg:
		return nil
	default:
		// Buffer full, flush inline and retry once
		s.flushBuffer()
		select {
		case s.writeBuffer <- msg:
			return nil
		default:
			return fmt.Errorf("write buffer full and flush failed")
		}
	}
}

// WriteMessageSync flushes pending messages and writes msg immediately
func (s *Storage) WriteMessageSync(msg Message) error {
	if s.isClosed() {
		return ErrClosed
	}

	s.flushBuffer()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.NamedExec(insertMessageQuery, msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// GetMessages returns the latest messages of a channel in chronological order
func (s *Storage) GetMessages(channel string, limit int) ([]Message, error) {
	var messages []Message
	err := s.db.Select(&messages,
		`SELECT * FROM messages
		 WHERE channel = ?
		 ORDER BY timestamp DESC, id DESC
		 LIMIT ?`,
		strings.ToLower(channel), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// UpsertAccount creates or updates an account by username and fills in its ID
func (s *Storage) UpsertAccount(account *Account) error {
	now := time.Now()
	_, err := s.db.Exec(
		`INSERT INTO accounts (username, client_id, anonymous, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(username) DO UPDATE SET
		     client_id = excluded.client_id,
		     anonymous = excluded.anonymous,
		     updated_at = excluded.updated_at`,
		account.Username, account.ClientID, account.Anonymous, now, now)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}

	stored, err := s.GetAccount(account.Username)
	if err != nil {
		return err
	}
	*account = *stored
	return nil
}

// GetAccount retrieves an account by username (case-insensitive)
func (s *Storage) GetAccount(username string) (*Account, error) {
	var account Account
	err := s.db.Get(&account, "SELECT * FROM accounts WHERE username = ?", username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %q: %w", username, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

// GetAccounts lists all accounts
func (s *Storage) GetAccounts() ([]Account, error) {
	var accounts []Account
	if err := s.db.Select(&accounts, "SELECT * FROM accounts ORDER BY username"); err != nil {
		return nil, fmt.Errorf("failed to get accounts: %w", err)
	}
	return accounts, nil
}

// GetDefaultAccount returns the account marked as default
func (s *Storage) GetDefaultAccount() (*Account, error) {
	var account Account
	err := s.db.Get(&account, "SELECT * FROM accounts WHERE is_default = 1 LIMIT 1")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("default account: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get default account: %w", err)
	}
	return &account, nil
}

// SetDefaultAccount marks username as the only default account
func (s *Storage) SetDefaultAccount(username string) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("UPDATE accounts SET is_default = 0"); err != nil {
		return fmt.Errorf("failed to clear default account: %w", err)
	}
	res, err := tx.Exec("UPDATE accounts SET is_default = 1, updated_at = CURRENT_TIMESTAMP WHERE username = ?", username)
	if err != nil {
		return fmt.Errorf("failed to set default account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("account %q: %w", username, ErrNotFound)
	}
	return tx.Commit()
}

// DeleteAccount removes an account
func (s *Storage) DeleteAccount(username string) error {
	res, err := s.db.Exec("DELETE FROM accounts WHERE username = ?", username)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("account %q: %w", username, ErrNotFound)
	}
	return nil
}

// CreateChannel creates a new channel, or re-enables auto-join for an existing one
func (s *Storage) CreateChannel(channel *Channel) error {
	channel.Name = strings.ToLower(channel.Name)
	if channel.CreatedAt.IsZero() {
		channel.CreatedAt = time.Now()
	}

	_, err := s.db.NamedExec(
		`INSERT INTO channels (name, auto_join, created_at)
		 VALUES (:name, :auto_join, :created_at)
		 ON CONFLICT(name) DO UPDATE SET auto_join = excluded.auto_join, updated_at = CURRENT_TIMESTAMP`,
		channel)
	if err != nil {
		return fmt.Errorf("failed to create channel: %w", err)
	}

	stored, err := s.GetChannelByName(channel.Name)
	if err != nil {
		return err
	}
	*channel = *stored
	return nil
}

// GetChannels retrieves all channels
func (s *Storage) GetChannels() ([]Channel, error) {
	var channels []Channel
	if err := s.db.Select(&channels, "SELECT * FROM channels ORDER BY name"); err != nil {
		return nil, fmt.Errorf("failed to get channels: %w", err)
	}
	return channels, nil
}

// GetChannelByName retrieves a channel by name (case-insensitive)
func (s *Storage) GetChannelByName(name string) (*Channel, error) {
	var channel Channel
	err := s.db.Get(&channel, "SELECT * FROM channels WHERE name = ?", name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("channel %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}
	return &channel, nil
}

// UpdateChannelAutoJoin updates the auto_join flag of a channel
func (s *Storage) UpdateChannelAutoJoin(name string, autoJoin bool) error {
	_, err := s.db.Exec("UPDATE channels SET auto_join = ?, updated_at = CURRENT_TIMESTAMP WHERE name = ?", autoJoin, name)
	if err != nil {
		return fmt.Errorf("failed to update channel: %w", err)
	}
	return nil
}

// DeleteChannel removes a channel
func (s *Storage) DeleteChannel(name string) error {
	_, err := s.db.Exec("DELETE FROM channels WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("failed to delete channel: %w", err)
	}
	return nil
}
