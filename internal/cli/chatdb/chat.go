package chatdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/chatdb/chatdb/internal/backend"
	"github.com/chatdb/chatdb/internal/queryapi"
	"github.com/chatdb/chatdb/internal/session"
)

const chatPrompt = "chatdb> "

// ErrInterrupt is returned by a LineReader when the user presses Ctrl-C.
var ErrInterrupt = readline.ErrInterrupt

type LineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
	Close() error
}

type LineReaderConfig struct {
	Prompt      string
	HistoryFile string
	Completions []string
}

func newReadlineReader(cfg LineReaderConfig) (LineReader, error) {
	items := make([]readline.PrefixCompleterInterface, 0, len(cfg.Completions))
	for _, completion := range cfg.Completions {
		items = append(items, readline.PcItem(completion))
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          cfg.Prompt,
		HistoryFile:     cfg.HistoryFile,
		AutoComplete:    readline.NewPrefixCompleter(items...),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
	})
	if err != nil {
		return nil, err
	}
	return rl, nil
}

func newChatCommand(opts Options, f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := newClient(opts, f)
			if err != nil {
				return err
			}
			sess, err := session.New(client, session.Options{Logger: opts.Logger, Timeout: f.timeout})
			if err != nil {
				return err
			}
			reader, err := opts.NewLineReader(LineReaderConfig{
				Prompt:      chatPrompt,
				HistoryFile: opts.Config.Client.HistoryFile,
				Completions: []string{".use sqlite", ".use mongodb", ".tables", ".history", ".result", ".help", ".quit"},
			})
			if err != nil {
				return fmt.Errorf("initialize chat input: %w", err)
			}
			defer func() { _ = reader.Close() }()

			r := &repl{
				client: client,
				sess:   sess,
				reader: reader,
				out:    cmd.OutOrStdout(),
				errOut: cmd.ErrOrStderr(),
				view:   &transcript{w: cmd.OutOrStdout()},
			}
			_, _ = fmt.Fprintln(r.out, "ChatDB chat. Type .help for commands, .quit to exit.")
			if f.backend != "" {
				if err := r.use(cmd.Context(), f.backend); err != nil {
					_, _ = fmt.Fprintln(r.errOut, errorStyle.Render("Error: "+err.Error()))
				}
			} else {
				_, _ = fmt.Fprintln(r.out, "Select a database with .use sqlite or .use mongodb.")
			}
			return r.loop(cmd.Context())
		},
	}
}

type repl struct {
	client *queryapi.Client
	sess   *session.Session
	reader LineReader
	out    io.Writer
	errOut io.Writer
	view   *transcript
}

func (r *repl) loop(ctx context.Context) error {
	for {
		line, err := r.reader.Readline()
		if errors.Is(err, ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ".") {
			if quit := r.handleDotCommand(ctx, line); quit {
				return nil
			}
			continue
		}
		r.ask(ctx, line)
		if err := ctx.Err(); err != nil {
			return nil
		}
	}
}

func (r *repl) ask(ctx context.Context, question string) {
	r.sess.SetDraft(question)
	switch r.sess.SubmitQuery(ctx, question) {
	case session.OutcomeIgnored:
		if _, ok := r.sess.ActiveBackend(); !ok {
			_, _ = fmt.Fprintln(r.errOut, warningStyle.Render("No database selected. Use .use sqlite or .use mongodb."))
		}
		return
	case session.OutcomeBusy:
		_, _ = fmt.Fprintln(r.errOut, warningStyle.Render("A query is still running."))
		return
	}
	r.view.flush(r.sess.Entries())
	if _, failed := r.sess.LastError(); failed {
		return
	}
	if res, ok := r.sess.LastResult(); ok && res.Count() > 0 {
		writeResult(r.out, res)
	}
}

func (r *repl) handleDotCommand(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	command := strings.ToLower(parts[0])

	switch command {
	case ".quit", ".exit":
		return true

	case ".help":
		printChatHelp(r.out)

	case ".use":
		if len(parts) < 2 {
			_, _ = fmt.Fprintln(r.errOut, "Usage: .use sqlite|mongodb")
			return false
		}
		if err := r.use(ctx, parts[1]); err != nil {
			_, _ = fmt.Fprintln(r.errOut, errorStyle.Render("Error: "+err.Error()))
		}

	case ".tables":
		kind, ok := r.sess.ActiveBackend()
		if !ok {
			_, _ = fmt.Fprintln(r.errOut, "No database selected.")
			return false
		}
		if err := r.printTables(ctx, kind); err != nil {
			_, _ = fmt.Fprintln(r.errOut, errorStyle.Render("Error: "+err.Error()))
		}

	case ".history":
		for _, entry := range r.sess.Entries() {
			writeEntry(r.out, entry)
		}

	case ".result":
		res, ok := r.sess.LastResult()
		if !ok {
			_, _ = fmt.Fprintln(r.out, "No result yet.")
			return false
		}
		writeResult(r.out, res)

	default:
		_, _ = fmt.Fprintf(r.errOut, "Unknown command: %s (type .help for commands)\n", command)
	}
	return false
}

// use selects a backend and lists what it can answer from.
func (r *repl) use(ctx context.Context, raw string) error {
	kind, err := backend.Parse(raw)
	if err != nil {
		return err
	}
	if r.sess.Lifecycle() == session.InFlight {
		return errors.New("cannot switch databases while a query is running")
	}
	r.sess.SelectBackend(kind)
	r.reader.SetPrompt(promptFor(kind))
	r.view.flush(r.sess.Entries())
	return r.printTables(ctx, kind)
}

func (r *repl) printTables(ctx context.Context, kind backend.Kind) error {
	resp, err := r.client.Connect(ctx, kind)
	if err != nil {
		return err
	}
	noun := "Tables"
	if kind == backend.Document {
		noun = "Collections"
	}
	if len(resp.Tables) == 0 {
		_, _ = fmt.Fprintln(r.out, systemMessageStyle.Render(noun+": (none)"))
		return nil
	}
	_, _ = fmt.Fprintln(r.out, systemMessageStyle.Render(noun+": "+strings.Join(resp.Tables, ", ")))
	return nil
}

func promptFor(kind backend.Kind) string {
	return "chatdb:" + kind.WireName() + "> "
}

func printChatHelp(w io.Writer) {
	help := `
Commands:
  .use <db>       Switch database (sqlite or mongodb)
  .tables         List tables or collections of the current database
  .history        Show the whole transcript
  .result         Show the latest result again
  .help           Show this help message
  .quit / .exit   Leave the chat

Anything else is sent as a question to the current database.
`
	_, _ = fmt.Fprintln(w, help)
}
