package chatdb

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/chatdb/chatdb/internal/backend"
	"github.com/chatdb/chatdb/internal/chatlog"
	"github.com/chatdb/chatdb/internal/session"
)

func newAskCommand(opts Options, f *flags) *cobra.Command {
	var showQuery bool
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a single question and print the answer",
		Example: `  chatdb ask --backend sqlite "how many orders were shipped"
  chatdb ask -b mongodb "orders where status is open"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := requireBackend(f.backend)
			if err != nil {
				return err
			}
			client, err := newClient(opts, f)
			if err != nil {
				return err
			}
			sess, err := session.New(client, session.Options{Logger: opts.Logger, Timeout: f.timeout})
			if err != nil {
				return err
			}
			sess.SelectBackend(kind)

			outcome := sess.SubmitQuery(cmd.Context(), strings.Join(args, " "))
			if outcome == session.OutcomeIgnored {
				return &usageError{err: fmt.Errorf("question is empty")}
			}

			out := cmd.OutOrStdout()
			// Skip the connect notice; a one-shot answer starts at the question.
			for _, entry := range sess.Entries()[1:] {
				if entry.Kind == chatlog.EchoedQuery && !showQuery {
					continue
				}
				writeEntry(out, entry)
			}
			if message, failed := sess.LastError(); failed {
				opts.Logger.Debug("ask failed", slog.String("error", message))
				return errReported
			}
			if res, ok := sess.LastResult(); ok && res.Count() > 0 {
				writeResult(out, res)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showQuery, "show-query", true, "print the query the backend generated")
	return cmd
}

func newTablesCommand(opts Options, f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List tables or collections of a backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind, err := requireBackend(f.backend)
			if err != nil {
				return err
			}
			client, err := newClient(opts, f)
			if err != nil {
				return err
			}
			resp, err := client.Connect(cmd.Context(), kind)
			if err != nil {
				return err
			}

			header := "table"
			if kind == backend.Document {
				header = "collection"
			}
			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{header})
			for _, name := range resp.Tables {
				t.AppendRow(table.Row{name})
			}
			t.Render()
			return nil
		},
	}
}

func newHealthCommand(opts Options, f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the backend is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := newClient(opts, f)
			if err != nil {
				return err
			}
			resp, err := client.Health(cmd.Context())
			if err != nil {
				return err
			}
			line := fmt.Sprintf("%s (%s)", resp.Status, f.apiURL)
			if !resp.Timestamp.IsZero() {
				line += " at " + resp.Timestamp.Format(time.RFC3339)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(line))
			return nil
		},
	}
}
