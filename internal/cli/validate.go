package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// ValidationResult holds catalog validation results.
type ValidationResult struct {
	Valid bool   `json:"valid"`
	Store string `json:"store"`
	Menus int    `json:"menus"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <catalog.yaml>",
		Short: "Validate a seed catalog without writing anything",
		Long: `Validate a seed catalog against the catalog schema.

Unknown fields, out-of-range prices, empty names and non-http image URLs are
reported without touching the data directory.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	formatter.VerboseLog("Validating %s", path)

	cat, err := loadCatalog(path)
	if err != nil {
		return err
	}

	result := ValidationResult{Valid: true, Store: cat.Store.ID, Menus: len(cat.Menus)}
	return formatter.Render(result, func(w io.Writer) {
		fmt.Fprintf(w, "Catalog valid: store %s, %d menus\n", result.Store, result.Menus)
	})
}
