package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func addIgnore(topLevel *cobra.Command, opts *rootOptions) {
	var username string

	ignore := &cobra.Command{
		Use:   "ignore <user>",
		Short: "Block a user for the account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return changeIgnore(cmd.Context(), cmd.OutOrStdout(), opts, username, args[0], true)
		},
	}
	unignore := &cobra.Command{
		Use:   "unignore <user>",
		Short: "Unblock a user for the account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return changeIgnore(cmd.Context(), cmd.OutOrStdout(), opts, username, args[0], false)
		},
	}
	for _, cmd := range []*cobra.Command{ignore, unignore} {
		cmd.Flags().StringVar(&username, "account", "", "stored account (default account when empty)")
		topLevel.AddCommand(cmd)
	}
}

func changeIgnore(ctx context.Context, out io.Writer, opts *rootOptions, username, target string, block bool) error {
	e, err := opts.open()
	if err != nil {
		return err
	}
	defer e.Close()

	id, err := e.identity(username)
	if err != nil {
		return err
	}
	s := e.newSession(id)
	defer s.Close()

	if block {
		if err := s.AddIgnoredUser(ctx, target); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s is now ignored\n", target)
		return nil
	}
	if err := s.RemoveIgnoredUser(ctx, target); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s is no longer ignored\n", target)
	return nil
}
