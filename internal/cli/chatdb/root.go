// Package chatdb is the terminal front end: an interactive chat over the query
// endpoint plus one-shot commands for scripting.
package chatdb

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/chatdb/chatdb/internal/backend"
	"github.com/chatdb/chatdb/internal/config"
	"github.com/chatdb/chatdb/internal/observability"
	"github.com/chatdb/chatdb/internal/queryapi"
)

type Options struct {
	Config     config.Config
	Logger     *slog.Logger
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
	// NewLineReader opens the chat input. Defaults to a readline terminal.
	NewLineReader func(cfg LineReaderConfig) (LineReader, error)
}

type flags struct {
	apiURL  string
	timeout time.Duration
	backend string
}

// errReported marks failures already shown to the user.
var errReported = errors.New("reported")

// Run executes the CLI and returns the process exit code.
func Run(ctx context.Context, args []string, opts Options) int {
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger()
	}
	if opts.NewLineReader == nil {
		opts.NewLineReader = newReadlineReader
	}

	root := NewRootCmd(opts)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			_, _ = io.WriteString(opts.Stderr, errorStyle.Render("Error: "+err.Error())+"\n")
		}
		var usage *usageError
		if errors.As(err, &usage) {
			return 2
		}
		return 1
	}
	return 0
}

func NewRootCmd(opts Options) *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:   "chatdb",
		Short: "Ask questions of relational and document databases in plain language",
		Long: `chatdb sends natural language questions to a ChatDB backend and shows the
answers as a running chat transcript. Use "chatdb chat" for an interactive
session or "chatdb ask" for a single question.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(opts.Stdout)
	root.SetErr(opts.Stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	root.PersistentFlags().StringVar(&f.apiURL, "api-url", opts.Config.Client.APIURL, "ChatDB backend base URL")
	root.PersistentFlags().DurationVar(&f.timeout, "timeout", opts.Config.Client.QueryTimeout, "per query timeout (0 disables)")
	root.PersistentFlags().StringVarP(&f.backend, "backend", "b", opts.Config.Client.DefaultBackend, "backend to query (sqlite|mongodb)")
	_ = root.RegisterFlagCompletionFunc("backend", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"sqlite", "mongodb"}, cobra.ShellCompDirectiveNoFileComp
	})

	root.AddCommand(newChatCommand(opts, f))
	root.AddCommand(newAskCommand(opts, f))
	root.AddCommand(newTablesCommand(opts, f))
	root.AddCommand(newHealthCommand(opts, f))
	return root
}

func newClient(opts Options, f *flags) (*queryapi.Client, error) {
	cfg := queryapi.Config{BaseURL: f.apiURL, HTTPClient: opts.HTTPClient}
	if f.timeout > 0 {
		cfg.Timeout = f.timeout + 5*time.Second
	}
	return queryapi.New(cfg)
}

func requireBackend(raw string) (backend.Kind, error) {
	if raw == "" {
		return 0, &usageError{err: errors.New("--backend is required (sqlite|mongodb)")}
	}
	kind, err := backend.Parse(raw)
	if err != nil {
		return 0, &usageError{err: err}
	}
	return kind, nil
}

type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }
