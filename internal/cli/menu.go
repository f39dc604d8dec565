package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/tableorder/internal/app"
	"github.com/roach88/tableorder/internal/menu"
	"github.com/roach88/tableorder/internal/model"
)

// MenuOptions holds flags shared by the menu subcommands.
type MenuOptions struct {
	*RootOptions
	Category    string
	Name        string
	Price       int
	Description string
	ImageURL    string
	SortOrder   int
	Available   bool
}

// NewMenuCommand creates the menu command group.
func NewMenuCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "menu",
		Short: "Manage the menu catalog",
	}

	cmd.AddCommand(newMenuListCommand(&MenuOptions{RootOptions: rootOpts}))
	cmd.AddCommand(newMenuGetCommand(rootOpts))
	cmd.AddCommand(newMenuAddCommand(&MenuOptions{RootOptions: rootOpts}))
	cmd.AddCommand(newMenuUpdateCommand(&MenuOptions{RootOptions: rootOpts}))
	cmd.AddCommand(newMenuDeleteCommand(rootOpts))

	return cmd
}

func newMenuListCommand(opts *MenuOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List menus in display order",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				var (
					menus []model.Menu
					err   error
				)
				if opts.Category != "" {
					menus, err = a.Menus.ListByCategory(ctx, opts.Store, opts.Category)
				} else {
					menus, err = a.Menus.List(ctx, opts.Store)
				}
				if err != nil {
					return err
				}
				return opts.formatter(cmd).Render(menus, func(w io.Writer) {
					printMenus(w, menus)
				})
			})
		},
	}
	cmd.Flags().StringVar(&opts.Category, "category", "", "only list this category")
	return cmd
}

func newMenuGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <menu-id>",
		Short: "Show one menu",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				m, err := a.Menus.Get(ctx, opts.Store, args[0])
				if err != nil {
					return err
				}
				return opts.formatter(cmd).Render(m, func(w io.Writer) {
					printMenus(w, []model.Menu{m})
				})
			})
		},
	}
}

func newMenuAddCommand(opts *MenuOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a menu",
		Args:  exactArgs(0),
		Example: `  tableorder menu add --name 김치찌개 --price 9000 --category 찌개류
  tableorder menu add --name 콜라 --price 2000 --category 음료 --unavailable`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				in := menu.Input{
					Name:        opts.Name,
					Price:       opts.Price,
					Description: opts.Description,
					Category:    opts.Category,
					ImageURL:    opts.ImageURL,
					SortOrder:   opts.SortOrder,
				}
				if cmd.Flags().Changed("unavailable") {
					available := false
					in.IsAvailable = &available
				}
				m, err := a.Menus.Create(ctx, opts.Store, in)
				if err != nil {
					return err
				}
				return opts.formatter(cmd).Render(m, func(w io.Writer) {
					fmt.Fprintf(w, "Created menu %s (%s, %d)\n", m.ID, m.Name, m.Price)
				})
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.Name, "name", "", "menu name (required)")
	f.IntVar(&opts.Price, "price", 0, "price in currency units")
	f.StringVar(&opts.Category, "category", "", "category (required)")
	f.StringVar(&opts.Description, "description", "", "description")
	f.StringVar(&opts.ImageURL, "image-url", "", "http(s) image URL")
	f.IntVar(&opts.SortOrder, "sort-order", 0, "display position")
	f.Bool("unavailable", false, "create the menu as sold out")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func newMenuUpdateCommand(opts *MenuOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <menu-id>",
		Short: "Change the given fields of a menu",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			var p menu.Patch
			if f.Changed("name") {
				p.Name = &opts.Name
			}
			if f.Changed("price") {
				p.Price = &opts.Price
			}
			if f.Changed("category") {
				p.Category = &opts.Category
			}
			if f.Changed("description") {
				p.Description = &opts.Description
			}
			if f.Changed("image-url") {
				p.ImageURL = &opts.ImageURL
			}
			if f.Changed("sort-order") {
				p.SortOrder = &opts.SortOrder
			}
			if f.Changed("available") {
				p.IsAvailable = &opts.Available
			}

			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				m, err := a.Menus.Update(ctx, opts.Store, args[0], p)
				if err != nil {
					return err
				}
				return opts.formatter(cmd).Render(m, func(w io.Writer) {
					printMenus(w, []model.Menu{m})
				})
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.Name, "name", "", "menu name")
	f.IntVar(&opts.Price, "price", 0, "price in currency units")
	f.StringVar(&opts.Category, "category", "", "category")
	f.StringVar(&opts.Description, "description", "", "description")
	f.StringVar(&opts.ImageURL, "image-url", "", "http(s) image URL")
	f.IntVar(&opts.SortOrder, "sort-order", 0, "display position")
	f.BoolVar(&opts.Available, "available", true, "whether the menu can be ordered")
	return cmd
}

func newMenuDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <menu-id>",
		Short: "Delete a menu",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Menus.Delete(ctx, opts.Store, args[0]); err != nil {
					return err
				}
				result := map[string]string{"deleted": args[0]}
				return opts.formatter(cmd).Render(result, func(w io.Writer) {
					fmt.Fprintf(w, "Deleted menu %s\n", args[0])
				})
			})
		},
	}
}

func printMenus(w io.Writer, menus []model.Menu) {
	if len(menus) == 0 {
		fmt.Fprintln(w, "No menus.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tPRICE\tAVAILABLE")
	for _, m := range menus {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%t\n", m.ID, m.Name, m.Category, m.Price, m.IsAvailable)
	}
	_ = tw.Flush()
}
