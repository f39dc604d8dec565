package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tableorder/internal/app"
	"github.com/roach88/tableorder/internal/model"
)

// NewSessionCommand creates the session command group.
func NewSessionCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Start, end and expire table sessions",
	}

	cmd.AddCommand(newSessionStartCommand(rootOpts))
	cmd.AddCommand(newSessionEndCommand(rootOpts))
	cmd.AddCommand(newSessionShowCommand(rootOpts))
	cmd.AddCommand(newSessionExpireCommand(rootOpts))

	return cmd
}

func newSessionStartCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start <table-number>",
		Short: "Open a session on a table",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			number, err := parseTableNumber(args[0])
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				s, err := a.Tables.StartSession(ctx, opts.Store, number)
				if err != nil {
					return err
				}
				return opts.formatter(cmd).Render(s, func(w io.Writer) {
					fmt.Fprintf(w, "Started session %s on table %d (expires %s)\n",
						s.ID, s.TableNumber, model.FormatTimestamp(s.ExpiresAt))
				})
			})
		},
	}
}

func newSessionEndCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "end <table-number>",
		Short: "End a table's session and archive its orders",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			number, err := parseTableNumber(args[0])
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Tables.EndSession(ctx, opts.Store, number)
				if err != nil {
					return err
				}
				return opts.formatter(cmd).Render(res, func(w io.Writer) {
					fmt.Fprintf(w, "Ended session %s on table %d\n", res.Session.ID, res.Session.TableNumber)
					if res.History == nil {
						fmt.Fprintln(w, "  no orders to archive")
						return
					}
					fmt.Fprintf(w, "  archived %d orders, total %d\n",
						len(res.History.Orders), res.History.TotalSessionAmount)
				})
			})
		},
	}
}

func newSessionShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <table-number>",
		Short: "Show a table's active session",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			number, err := parseTableNumber(args[0])
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				s, ok, err := a.Tables.ActiveSession(ctx, opts.Store, number)
				if err != nil {
					return err
				}
				var data any
				if ok {
					data = s
				}
				return opts.formatter(cmd).Render(data, func(w io.Writer) {
					if !ok {
						fmt.Fprintf(w, "Table %d has no active session\n", number)
						return
					}
					fmt.Fprintf(w, "Session %s on table %d, started %s, expires %s\n", s.ID, number,
						model.FormatTimestamp(s.StartedAt), model.FormatTimestamp(s.ExpiresAt))
				})
			})
		},
	}
}

func newSessionExpireCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "expire",
		Short: "End every session past its expiry",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				n, err := a.Tables.ExpireSessions(ctx, opts.Store)
				if err != nil {
					return err
				}
				return opts.formatter(cmd).Render(map[string]int{"expired": n}, func(w io.Writer) {
					fmt.Fprintf(w, "Expired %d sessions\n", n)
				})
			})
		},
	}
}
