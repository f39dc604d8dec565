package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/tableorder/internal/app"
	"github.com/roach88/tableorder/internal/model"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Table int
	From  string
	To    string
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List archived sessions of a table",
		Long: `List the archived sessions of a table, most recent first.

--from and --to bound the session end time and accept RFC 3339 timestamps
or plain dates. A plain --to date includes the whole day.

Example:
  tableorder history --table 3
  tableorder history --table 3 --from 2026-02-01 --to 2026-02-09`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseBound(opts.From, false)
			if err != nil {
				return err
			}
			to, err := parseBound(opts.To, true)
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				hist, err := a.Tables.OrderHistory(ctx, opts.Store, opts.Table, from, to)
				if err != nil {
					return err
				}
				return opts.formatter(cmd).Render(hist, func(w io.Writer) {
					printHistory(w, hist)
				})
			})
		},
	}
	cmd.Flags().IntVar(&opts.Table, "table", 0, "table number (required)")
	cmd.Flags().StringVar(&opts.From, "from", "", "earliest session end (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.To, "to", "", "latest session end (RFC 3339 or YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("table")

	return cmd
}

// parseBound parses a range bound. An empty string is an open bound. With
// endOfDay, a plain date extends to the last second of that day.
func parseBound(s string, endOfDay bool) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("invalid time %q", s), err)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Second)
	}
	return &t, nil
}

func printHistory(w io.Writer, hist []model.OrderHistory) {
	if len(hist) == 0 {
		fmt.Fprintln(w, "No archived sessions.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tSTARTED\tENDED\tORDERS\tTOTAL")
	for _, h := range hist {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", h.SessionID,
			model.FormatTimestamp(h.SessionStartedAt), model.FormatTimestamp(h.SessionEndedAt),
			len(h.Orders), h.TotalSessionAmount)
	}
	_ = tw.Flush()
}
