package irc

// Event types emitted by the supervisor
const (
	EventConnectionEstablished = "connection.established"
	EventConnectionFailed      = "connection.failed"
	EventConnectionDiscarded   = "connection.discarded"
	EventConnectionClosed      = "connection.closed"
	EventBlocklistUpdated      = "blocklist.updated"
	EventEmotesUpdated         = "emotes.updated"
	EventFetchFailed           = "fetch.failed"
	EventMessageReceived       = "message.received"
	EventCommandReceived       = "irc.command"
)

// Twitch capabilities requested on every connection
const (
	CapCommands = "twitch.tv/commands"
	CapTags     = "twitch.tv/tags"
)
