package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matt0x6f/twitch-session/internal/storage"
	"github.com/matt0x6f/twitch-session/internal/validation"
)

func addChannel(topLevel *cobra.Command, opts *rootOptions) {
	cmd := &cobra.Command{
		Use:   "channel",
		Short: "Manage channels joined on connect",
	}

	add := &cobra.Command{
		Use:   "add <channel>...",
		Short: "Join these channels on every connect",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open()
			if err != nil {
				return err
			}
			defer e.Close()
			for _, name := range args {
				if _, err := e.channels.Add(name); err != nil {
					return err
				}
			}
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List registered channels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open()
			if err != nil {
				return err
			}
			defer e.Close()
			return listChannels(cmd.OutOrStdout(), e.storage)
		},
	}

	autoJoin := &cobra.Command{
		Use:       "autojoin <channel> on|off",
		Short:     "Pause or resume joining a channel on connect",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var enabled bool
			switch strings.ToLower(args[1]) {
			case "on":
				enabled = true
			case "off":
			default:
				return fmt.Errorf("expected on or off, got %q", args[1])
			}

			e, err := opts.open()
			if err != nil {
				return err
			}
			defer e.Close()
			return e.storage.SetAutoJoin(validation.NormalizeChannel(args[0]), enabled)
		},
	}

	remove := &cobra.Command{
		Use:   "remove <channel>...",
		Short: "Stop joining these channels",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open()
			if err != nil {
				return err
			}
			defer e.Close()
			for _, name := range args {
				removed, err := e.channels.Remove(name)
				if err != nil {
					return err
				}
				if !removed {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s was not registered\n", name)
				}
			}
			return nil
		},
	}

	cmd.AddCommand(add, list, autoJoin, remove)
	topLevel.AddCommand(cmd)
}

// listChannels prints every stored channel, marking those not joined on connect
func listChannels(out io.Writer, st *storage.Storage) error {
	channels, err := st.GetChannels()
	if err != nil {
		return err
	}
	for _, ch := range channels {
		if ch.AutoJoin {
			fmt.Fprintf(out, "#%s\n", ch.Name)
		} else {
			fmt.Fprintf(out, "#%s (paused)\n", ch.Name)
		}
	}
	return nil
}
