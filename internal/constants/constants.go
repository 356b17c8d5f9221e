package constants

import "time"

// Twitch endpoints and identities
const (
	// DefaultServer is the plaintext Twitch chat endpoint
	DefaultServer = "irc.chat.twitch.tv:6667"

	// DefaultAPIBaseURL is the kraken REST root used for blocks and emotes
	DefaultAPIBaseURL = "https://api.twitch.tv/kraken"

	// DefaultClientID is the application client id sent with API calls
	DefaultClientID = "7ue61iz46fz11y3cugd0l3tawb4taal"

	// AnonymousUsername is the read-only login Twitch accepts without a token
	AnonymousUsername = "justinfan64537"

	// BlocksPageLimit is the page size requested from the blocks endpoint
	BlocksPageLimit = 100
)

// Timing constants
const (
	// RemoteCallTimeout bounds a synchronous ignore/unignore call
	RemoteCallTimeout = 10 * time.Second

	// FetchTimeout bounds a background blocklist or emote fetch
	FetchTimeout = 30 * time.Second

	// StorageFlushInterval is how often buffered messages are written to disk
	StorageFlushInterval = 5 * time.Second
)

// Sizes
const (
	// StorageBufferSize is the number of messages buffered before a forced flush
	StorageBufferSize = 100

	// MessageHistory is the number of messages kept in memory per channel
	MessageHistory = 500

	// APIRatePerSecond and APIBurst throttle requests against the REST API
	APIRatePerSecond = 5
	APIBurst         = 5
)
