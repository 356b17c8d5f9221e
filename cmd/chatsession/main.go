package main

import (
	"os"

	"github.com/matt0x6f/twitch-session/internal/commands"
	"github.com/matt0x6f/twitch-session/internal/logger"
)

func main() {
	if err := commands.New().Execute(); err != nil {
		logger.Log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}
