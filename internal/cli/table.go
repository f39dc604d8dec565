package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/tableorder/internal/app"
	"github.com/roach88/tableorder/internal/model"
	"github.com/roach88/tableorder/internal/session"
)

// NewTableCommand creates the table command group.
func NewTableCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Register and inspect tables",
	}

	cmd.AddCommand(newTableCreateCommand(rootOpts))
	cmd.AddCommand(newTableListCommand(rootOpts))

	return cmd
}

func newTableCreateCommand(opts *RootOptions) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "create <table-number>",
		Short: "Register a table with its tablet password",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			number, err := parseTableNumber(args[0])
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				view, err := a.Tables.CreateTable(ctx, opts.Store, number, password)
				if err != nil {
					return err
				}
				return opts.formatter(cmd).Render(view, func(w io.Writer) {
					fmt.Fprintf(w, "Created table %d (%s)\n", view.TableNumber, view.ID)
				})
			})
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "tablet password, at least 4 characters (required)")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newTableListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tables with their current session",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				tables, err := a.Tables.ListTables(ctx, opts.Store)
				if err != nil {
					return err
				}
				return opts.formatter(cmd).Render(tables, func(w io.Writer) {
					printTables(w, tables)
				})
			})
		},
	}
}

func printTables(w io.Writer, tables []session.TableView) {
	if len(tables) == 0 {
		fmt.Fprintln(w, "No tables.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tSESSION\tSTARTED\tEXPIRES")
	for _, t := range tables {
		if t.CurrentSession == nil {
			fmt.Fprintf(tw, "%d\t-\t-\t-\n", t.TableNumber)
			continue
		}
		s := t.CurrentSession
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", t.TableNumber, s.SessionID,
			model.FormatTimestamp(s.StartedAt), model.FormatTimestamp(s.ExpiresAt))
	}
	_ = tw.Flush()
}
