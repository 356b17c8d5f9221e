package config

import (
	"time"

	"github.com/matt0x6f/twitch-session/internal/constants"
)

// Config holds client configuration values.
type Config struct {
	Server            string        `mapstructure:"server" yaml:"server"`
	TLS               bool          `mapstructure:"tls" yaml:"tls"`
	APIBaseURL        string        `mapstructure:"api_base_url" yaml:"api_base_url"`
	ClientID          string        `mapstructure:"client_id" yaml:"client_id"`
	RemoteCallTimeout time.Duration `mapstructure:"remote_call_timeout" yaml:"remote_call_timeout"`
	FetchTimeout      time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout"`
	APIRatePerSecond  float64       `mapstructure:"api_rate_per_second" yaml:"api_rate_per_second"`
	APIBurst          int           `mapstructure:"api_burst" yaml:"api_burst"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`
	MessageHistory    int           `mapstructure:"message_history" yaml:"message_history"`
	Notifications     bool          `mapstructure:"notifications" yaml:"notifications"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Server:            constants.DefaultServer,
		APIBaseURL:        constants.DefaultAPIBaseURL,
		ClientID:          constants.DefaultClientID,
		RemoteCallTimeout: constants.RemoteCallTimeout,
		FetchTimeout:      constants.FetchTimeout,
		APIRatePerSecond:  constants.APIRatePerSecond,
		APIBurst:          constants.APIBurst,
		LogLevel:          "info",
		DatabasePath:      "chat.db",
		MessageHistory:    constants.MessageHistory,
		Notifications:     true,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// Booleans are not merged; flags set them directly.
func (c *Config) UpdateFrom(other Config) {
	if other.Server != "" {
		c.Server = other.Server
	}
	if other.APIBaseURL != "" {
		c.APIBaseURL = other.APIBaseURL
	}
	if other.ClientID != "" {
		c.ClientID = other.ClientID
	}
	if other.RemoteCallTimeout != 0 {
		c.RemoteCallTimeout = other.RemoteCallTimeout
	}
	if other.FetchTimeout != 0 {
		c.FetchTimeout = other.FetchTimeout
	}
	if other.APIRatePerSecond != 0 {
		c.APIRatePerSecond = other.APIRatePerSecond
	}
	if other.APIBurst != 0 {
		c.APIBurst = other.APIBurst
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.MessageHistory != 0 {
		c.MessageHistory = other.MessageHistory
	}
}
