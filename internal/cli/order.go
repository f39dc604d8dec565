package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/tableorder/internal/app"
	"github.com/roach88/tableorder/internal/apperr"
	"github.com/roach88/tableorder/internal/model"
	"github.com/roach88/tableorder/internal/order"
)

// OrderOptions holds flags for the order subcommands.
type OrderOptions struct {
	*RootOptions
	Table   int
	Session string
	Items   []string
}

// NewOrderCommand creates the order command group.
func NewOrderCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Place and track orders",
	}

	cmd.AddCommand(newOrderCreateCommand(&OrderOptions{RootOptions: rootOpts}))
	cmd.AddCommand(newOrderGetCommand(rootOpts))
	cmd.AddCommand(newOrderStatusCommand(rootOpts))
	cmd.AddCommand(newOrderDeleteCommand(rootOpts))
	cmd.AddCommand(newOrderListCommand(&OrderOptions{RootOptions: rootOpts}))

	return cmd
}

// parseItem parses "<menu-id>" or "<menu-id>:<quantity>".
func parseItem(s string) (order.RequestedItem, error) {
	id, qty, found := strings.Cut(s, ":")
	item := order.RequestedItem{MenuID: id, Quantity: 1}
	if id == "" {
		return item, NewExitError(ExitCommandError, fmt.Sprintf("invalid item %q: missing menu id", s))
	}
	if found {
		n, err := strconv.Atoi(qty)
		if err != nil {
			return item, WrapExitError(ExitCommandError, fmt.Sprintf("invalid item %q", s), err)
		}
		item.Quantity = n
	}
	return item, nil
}

func newOrderCreateCommand(opts *OrderOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Place an order for a table",
		Long: `Place an order for a table. Items are given as <menu-id>:<quantity>;
the quantity defaults to 1. Without --session the table's active session
is used.`,
		Example: `  tableorder order create --table 1 --item m-kimchi:2 --item m-cola`,
		Args:    exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			items := make([]order.RequestedItem, 0, len(opts.Items))
			for _, raw := range opts.Items {
				item, err := parseItem(raw)
				if err != nil {
					return err
				}
				items = append(items, item)
			}

			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				sessionID := opts.Session
				if sessionID == "" {
					s, ok, err := a.Tables.ActiveSession(ctx, opts.Store, opts.Table)
					if err != nil {
						return err
					}
					if !ok {
						return apperr.Validation("table %d has no active session", opts.Table)
					}
					sessionID = s.ID
				}

				o, err := a.Orders.CreateOrder(ctx, opts.Store, opts.Table, sessionID, items)
				if err != nil {
					return err
				}
				return opts.formatter(cmd).Render(o, func(w io.Writer) {
					printOrder(w, o)
				})
			})
		},
	}
	cmd.Flags().IntVar(&opts.Table, "table", 0, "table number (required)")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session id (default: the table's active session)")
	cmd.Flags().StringArrayVar(&opts.Items, "item", nil, "menu-id[:quantity], repeatable")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}

func newOrderGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <order-id>",
		Short: "Show one order",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				o, err := a.Orders.GetOrder(ctx, opts.Store, args[0])
				if err != nil {
					return err
				}
				return opts.formatter(cmd).Render(o, func(w io.Writer) {
					printOrder(w, o)
				})
			})
		},
	}
}

func newOrderStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <order-id> <pending|preparing|completed>",
		Short: "Move an order to another status",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				o, err := a.Orders.UpdateStatus(ctx, opts.Store, args[0], args[1])
				if err != nil {
					return err
				}
				return opts.formatter(cmd).Render(o, func(w io.Writer) {
					fmt.Fprintf(w, "Order %s is now %s\n", o.OrderNumber, o.Status)
				})
			})
		},
	}
}

func newOrderDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <order-id>",
		Short: "Delete a live order",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Orders.DeleteOrder(ctx, opts.Store, args[0]); err != nil {
					return err
				}
				return opts.formatter(cmd).Render(map[string]string{"deleted": args[0]}, func(w io.Writer) {
					fmt.Fprintf(w, "Deleted order %s\n", args[0])
				})
			})
		},
	}
}

func newOrderListCommand(opts *OrderOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List live orders",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				var (
					orders []model.Order
					err    error
				)
				switch {
				case opts.Session != "":
					orders, err = a.Orders.OrdersBySession(ctx, opts.Store, opts.Session)
				case cmd.Flags().Changed("table"):
					orders, err = a.Orders.OrdersByTable(ctx, opts.Store, opts.Table)
				default:
					orders, err = a.Orders.ListOrders(ctx, opts.Store)
				}
				if err != nil {
					return err
				}
				return opts.formatter(cmd).Render(orders, func(w io.Writer) {
					printOrders(w, orders)
				})
			})
		},
	}
	cmd.Flags().IntVar(&opts.Table, "table", 0, "only this table")
	cmd.Flags().StringVar(&opts.Session, "session", "", "only this session")
	return cmd
}

func printOrder(w io.Writer, o model.Order) {
	fmt.Fprintf(w, "Order %s (%s) table %d, %s\n", o.OrderNumber, o.ID, o.TableNumber, o.Status)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, it := range o.Items {
		fmt.Fprintf(tw, "  %s\t%d x %d\t%d\n", it.MenuName, it.Quantity, it.Price, it.Subtotal)
	}
	fmt.Fprintf(tw, "  total\t\t%d\n", o.TotalAmount)
	_ = tw.Flush()
}

func printOrders(w io.Writer, orders []model.Order) {
	if len(orders) == 0 {
		fmt.Fprintln(w, "No orders.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NUMBER\tID\tTABLE\tSTATUS\tTOTAL\tCREATED")
	for _, o := range orders {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\t%s\n", o.OrderNumber, o.ID, o.TableNumber, o.Status,
			o.TotalAmount, model.FormatTimestamp(o.CreatedAt))
	}
	_ = tw.Flush()
}
