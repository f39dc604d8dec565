package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/tableorder/internal/app"
	"github.com/roach88/tableorder/internal/journal"
	"github.com/roach88/tableorder/internal/model"
)

// EventsOptions holds flags for the events command.
type EventsOptions struct {
	*RootOptions
	Type  string
	Limit int
}

// EventsResult is the journal query output.
type EventsResult struct {
	Store  string          `json:"store"`
	Total  int             `json:"total"`
	Events []journal.Entry `json:"events"`
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Query the event journal",
		Long: `List recorded events for a store in publication order.

Requires journal.path to be configured (TABLEORDER_JOURNAL_PATH).

Examples:
  tableorder events
  tableorder events --type order_created --limit 20 --format json`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if a.Journal == nil {
					return NewExitError(ExitCommandError, "event journal is disabled; set journal.path")
				}
				entries, err := a.Journal.List(ctx, journal.Filter{
					Tenant: opts.Store,
					Type:   opts.Type,
					Limit:  opts.Limit,
				})
				if err != nil {
					return err
				}
				total, err := a.Journal.Count(ctx, opts.Store)
				if err != nil {
					return err
				}

				result := EventsResult{Store: opts.Store, Total: total, Events: entries}
				return opts.formatter(cmd).Render(result, func(w io.Writer) {
					printEvents(w, result)
				})
			})
		},
	}
	cmd.Flags().StringVar(&opts.Type, "type", "", "only this event type")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of events (0 = all)")

	return cmd
}

func printEvents(w io.Writer, r EventsResult) {
	fmt.Fprintf(w, "Store %s: %d events recorded\n", r.Store, r.Total)
	if len(r.Events) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tTYPE\tPUBLISHED\tEVENT")
	for _, e := range r.Events {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.Seq, e.Type, model.FormatTimestamp(e.PublishedAt), e.EventID)
	}
	_ = tw.Flush()
}
