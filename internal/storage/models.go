package storage

import "time"

// Account is a stored chat identity. The oauth token lives in the OS keychain,
// never in the database.
type Account struct {
	ID        int64     `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	ClientID  string    `db:"client_id" json:"client_id"`
	Anonymous bool      `db:"anonymous" json:"anonymous"`
	IsDefault bool      `db:"is_default" json:"is_default"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Channel is a channel from the registry
type Channel struct {
	ID        int64      `db:"id" json:"id"`
	Name      string     `db:"name" json:"name"`
	AutoJoin  bool       `db:"auto_join" json:"auto_join"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt *time.Time `db:"updated_at" json:"updated_at"`
}

// Message is a chat message as persisted
type Message struct {
	ID          int64     `db:"id" json:"id"`
	Channel     string    `db:"channel" json:"channel"`
	User        string    `db:"user" json:"user"`
	DisplayName string    `db:"display_name" json:"display_name"`
	Message     string    `db:"message" json:"message"`
	MessageType string    `db:"message_type" json:"message_type"` // 'privmsg' or 'action'
	Timestamp   time.Time `db:"timestamp" json:"timestamp"`
	RawLine     string    `db:"raw_line" json:"raw_line"` // Original IRC line
}
