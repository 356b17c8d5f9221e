// Package commands implements the chatsession command line.
package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matt0x6f/twitch-session/internal/account"
	"github.com/matt0x6f/twitch-session/internal/channel"
	"github.com/matt0x6f/twitch-session/internal/config"
	"github.com/matt0x6f/twitch-session/internal/constants"
	"github.com/matt0x6f/twitch-session/internal/logger"
	"github.com/matt0x6f/twitch-session/internal/notify"
	"github.com/matt0x6f/twitch-session/internal/security"
	"github.com/matt0x6f/twitch-session/internal/session"
	"github.com/matt0x6f/twitch-session/internal/storage"
	"github.com/matt0x6f/twitch-session/internal/twitch"
)

type rootOptions struct {
	configPath string
	logLevel   string
	cfg        config.Config
}

func New() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "chatsession",
		Short:         "Twitch chat on the command line.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config.yaml")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "trace, debug, info, warn or error")

	addCommands(cmd, opts)
	return cmd
}

func addCommands(topLevel *cobra.Command, opts *rootOptions) {
	addConnect(topLevel, opts)
	addIgnore(topLevel, opts)
	addAccount(topLevel, opts)
	addChannel(topLevel, opts)
}

func (o *rootOptions) load() error {
	cfg, path, err := config.Load(&logger.Log, o.configPath)
	if err != nil {
		return err
	}
	cfg.UpdateFrom(config.Config{LogLevel: o.logLevel})
	logger.Configure(cfg.LogLevel)
	logger.Log.Debug().Str("path", path).Msg("Loaded config")
	o.cfg = cfg
	return nil
}

// env is everything a command may need, opened on demand
type env struct {
	cfg      config.Config
	storage  *storage.Storage
	accounts *account.Store
	channels *channel.Manager
}

func (o *rootOptions) open() (*env, error) {
	st, err := storage.NewStorage(o.cfg.DatabasePath, constants.StorageBufferSize, constants.StorageFlushInterval)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	channels := channel.NewManager(st, st, o.cfg.MessageHistory)
	if err := channels.Load(); err != nil {
		_ = st.Close()
		return nil, err
	}
	return &env{
		cfg:      o.cfg,
		storage:  st,
		accounts: account.NewStore(st, security.NewKeychain()),
		channels: channels,
	}, nil
}

func (e *env) Close() {
	if err := e.storage.Close(); err != nil {
		logger.Log.Warn().Err(err).Msg("Failed to close storage")
	}
}

// identity resolves a named account, the default account, or anonymous
func (e *env) identity(username string) (account.Identity, error) {
	if username != "" {
		return e.accounts.Get(username)
	}
	id, err := e.accounts.Default()
	if errors.Is(err, storage.ErrNotFound) {
		logger.Log.Info().Msg("No default account, connecting anonymously")
		return account.Anonymous(e.cfg.ClientID), nil
	}
	return id, err
}

func (e *env) newSession(id account.Identity) *session.Manager {
	opts := session.Options{
		Server:            e.cfg.Server,
		UseTLS:            e.cfg.TLS,
		RemoteCallTimeout: e.cfg.RemoteCallTimeout,
		FetchTimeout:      e.cfg.FetchTimeout,
		Identity:          id,
		Remote: twitch.NewClient(twitch.ClientConfig{
			BaseURL:       e.cfg.APIBaseURL,
			RatePerSecond: e.cfg.APIRatePerSecond,
			Burst:         e.cfg.APIBurst,
		}),
		Channels: e.channels,
	}
	if e.cfg.Notifications {
		opts.Notifier = notify.NewDesktop()
	}
	return session.New(opts)
}
