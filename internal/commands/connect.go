package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/matt0x6f/twitch-session/internal/events"
	"github.com/matt0x6f/twitch-session/internal/irc"
	"github.com/matt0x6f/twitch-session/internal/message"
	"github.com/matt0x6f/twitch-session/internal/session"
)

func addConnect(topLevel *cobra.Command, opts *rootOptions) {
	var username string
	var useTLS bool

	cmd := &cobra.Command{
		Use:   "connect [channels...]",
		Short: "Connect and chat interactively",
		Example: `
chatsession connect --account mynick somechannel
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("tls") {
				opts.cfg.TLS = useTLS
			}
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

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runInteractive(ctx, s, args, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&username, "account", "", "stored account to connect as (default account when empty)")
	cmd.Flags().BoolVar(&useTLS, "tls", false, "connect with TLS")

	topLevel.AddCommand(cmd)
}

// runInteractive prints chat for s and executes input lines until /quit, EOF or ctx is done
func runInteractive(ctx context.Context, s *session.Manager, channels []string, in io.Reader, out io.Writer) error {
	printer := &printer{out: out}
	defer s.Bus().Subscribe(events.Wildcard, printer)()

	current := ""
	for _, name := range channels {
		if err := s.JoinChannel(name); err != nil {
			return err
		}
		current = name
	}
	if current == "" {
		if names := s.Channels().Names(); len(names) > 0 {
			current = names[len(names)-1]
		}
	}

	if _, err := s.Connect(); err != nil {
		return err
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := execute(ctx, s, line, &current, printer)
			if err != nil {
				printer.printf("! %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

// execute runs one input line. current is the channel plain text goes to.
func execute(ctx context.Context, s *session.Manager, line string, current *string, p *printer) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		if *current == "" {
			return false, fmt.Errorf("no channel joined, use /join <channel>")
		}
		return false, s.SendMessage(*current, line)
	}

	command, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)
	switch strings.ToLower(command) {
	case "quit", "exit":
		return true, nil
	case "join":
		if rest == "" {
			return false, fmt.Errorf("usage: /join channel")
		}
		if err := s.JoinChannel(rest); err != nil {
			return false, err
		}
		*current = rest
	case "part":
		target := rest
		if target == "" {
			target = *current
		}
		if target == "" {
			return false, fmt.Errorf("usage: /part channel")
		}
		if err := s.PartChannel(target); err != nil {
			return false, err
		}
		if target == *current {
			*current = ""
		}
	case "history":
		target := rest
		if target == "" {
			target = *current
		}
		ch, ok := s.Channels().Channel(target)
		if !ok {
			return false, fmt.Errorf("not in channel %q", target)
		}
		for _, m := range ch.Messages() {
			p.message(m)
		}
	case "channels":
		for _, ch := range s.Channels().Items() {
			p.printf("* #%s (%d messages)\n", ch.Name(), ch.Len())
		}
	case "emotes":
		ids := s.Emotes().SetIDs()
		sort.Strings(ids)
		p.printf("* %d emotes in sets %s\n", s.Emotes().Count(), strings.Join(ids, ", "))
	case "ignore":
		if rest == "" {
			return false, fmt.Errorf("usage: /ignore nickname")
		}
		return false, s.AddIgnoredUser(ctx, rest)
	case "unignore":
		if rest == "" {
			return false, fmt.Errorf("usage: /unignore nickname")
		}
		return false, s.RemoveIgnoredUser(ctx, rest)
	case "raw", "quote":
		if rest == "" {
			return false, fmt.Errorf("usage: /raw line")
		}
		return false, s.Send(rest)
	case "me":
		if *current == "" {
			return false, fmt.Errorf("no channel joined")
		}
		return false, s.SendMessage(*current, "\x01ACTION "+rest+"\x01")
	default:
		return false, fmt.Errorf("unknown command /%s", command)
	}
	return false, nil
}

// printer writes session events to the terminal
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *printer) printf(format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

func (p *printer) message(m *message.Message) {
	if m.Action {
		p.printf("[#%s] * %s %s\n", m.Channel, m.DisplayName, m.Text)
	} else {
		p.printf("[#%s] <%s> %s\n", m.Channel, m.DisplayName, m.Text)
	}
}

func (p *printer) OnEvent(event events.Event) {
	switch event.Type {
	case irc.EventMessageReceived:
		if m, ok := event.Data["message"].(*message.Message); ok {
			p.message(m)
		}
	case irc.EventConnectionEstablished:
		p.printf("* connected as %v\n", event.Data["user"])
	case irc.EventConnectionFailed:
		p.printf("* connection failed: %v\n", event.Data["error"])
	case irc.EventConnectionClosed:
		if err, ok := event.Data["error"].(error); ok {
			p.printf("* connection lost: %v\n", err)
			return
		}
		p.printf("* disconnected\n")
	case session.EventUserIgnored:
		p.printf("* ignoring %v\n", event.Data["user"])
	case session.EventUserUnignored:
		p.printf("* no longer ignoring %v\n", event.Data["user"])
	}
}
