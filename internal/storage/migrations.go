package storage

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Migrate runs all database migrations
func Migrate(db *sqlx.DB) error {
	migrations := []string{
		createAccountsTable,
		createChannelsTable,
		createMessagesTable,
		createIndexes,
	}

	for i, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	if err := migrateAccountDefault(db); err != nil {
		return fmt.Errorf("is_default migration failed: %w", err)
	}

	return nil
}

const createAccountsTable = `
CREATE TABLE IF NOT EXISTS accounts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT NOT NULL UNIQUE COLLATE NOCASE,
    client_id TEXT NOT NULL DEFAULT '',
    anonymous BOOLEAN NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

const createChannelsTable = `
CREATE TABLE IF NOT EXISTS channels (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE COLLATE NOCASE,
    auto_join BOOLEAN NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

const createMessagesTable = `
CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    channel TEXT NOT NULL,
    user TEXT NOT NULL,
    display_name TEXT NOT NULL DEFAULT '',
    message TEXT NOT NULL,
    message_type TEXT NOT NULL DEFAULT 'privmsg',
    timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    raw_line TEXT NOT NULL DEFAULT ''
);
`

const createIndexes = `
CREATE INDEX IF NOT EXISTS idx_messages_channel_time ON messages(channel, timestamp);
CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp);
`

// migrateAccountDefault adds the is_default column to accounts if it doesn't exist
func migrateAccountDefault(db *sqlx.DB) error {
	var columnExists int
	err := db.Get(&columnExists,
		"SELECT COUNT(*) FROM pragma_table_info('accounts') WHERE name='is_default'")
	if err != nil {
		return fmt.Errorf("failed to check for is_default column: %w", err)
	}
	if columnExists > 0 {
		return nil
	}

	if _, err := db.Exec("ALTER TABLE accounts ADD COLUMN is_default BOOLEAN NOT NULL DEFAULT 0"); err != nil {
		return fmt.Errorf("failed to add is_default column: %w", err)
	}
	return nil
}
