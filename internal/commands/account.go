package commands

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/matt0x6f/twitch-session/internal/account"
)

func addAccount(topLevel *cobra.Command, opts *rootOptions) {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage stored Twitch accounts",
	}

	var token, clientID string
	var makeDefault bool
	add := &cobra.Command{
		Use:   "add <username>",
		Short: "Store an account; the oauth token goes to the OS keychain",
		Example: `
chatsession account add mynick --token oauth:abcdef --default
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open()
			if err != nil {
				return err
			}
			defer e.Close()

			if token == "" {
				token = os.Getenv("CHATSESSION_TOKEN")
			}
			if token == "" {
				return fmt.Errorf("an oauth token is required (--token or CHATSESSION_TOKEN)")
			}
			if clientID == "" {
				clientID = e.cfg.ClientID
			}
			id := account.Identity{Username: args[0], ClientID: clientID, OAuthToken: token}
			if err := e.accounts.Add(id); err != nil {
				return err
			}
			if makeDefault {
				if err := e.accounts.SetDefault(id.Login()); err != nil {
					return err
				}
			}
			fmt.Printf("stored account %s\n", id.Login())
			return nil
		},
	}
	add.Flags().StringVar(&token, "token", "", "oauth token")
	add.Flags().StringVar(&clientID, "client-id", "", "client id used for API calls")
	add.Flags().BoolVar(&makeDefault, "default", false, "use this account when none is named")

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open()
			if err != nil {
				return err
			}
			defer e.Close()

			ids, err := e.accounts.List()
			if err != nil {
				return err
			}
			def, _ := e.accounts.Default()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "USERNAME\tCLIENT ID\tDEFAULT")
			for _, id := range ids {
				mark := ""
				if strings.EqualFold(id.Username, def.Username) {
					mark = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", id.Username, id.ClientID, mark)
			}
			return w.Flush()
		},
	}

	setDefault := &cobra.Command{
		Use:   "default <username>",
		Short: "Mark an account as the default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open()
			if err != nil {
				return err
			}
			defer e.Close()
			return e.accounts.SetDefault(args[0])
		},
	}

	remove := &cobra.Command{
		Use:   "remove <username>",
		Short: "Delete an account and its token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open()
			if err != nil {
				return err
			}
			defer e.Close()
			return e.accounts.Remove(args[0])
		},
	}

	cmd.AddCommand(add, list, setDefault, remove)
	topLevel.AddCommand(cmd)
}
