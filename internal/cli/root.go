package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/tableorder/internal/app"
	"github.com/roach88/tableorder/internal/config"
)

// DefaultStore is the tenant used when --store is not given.
const DefaultStore = "store001"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string
	EnvFile    string
	DataDir    string
	Store      string

	// AppOptions are passed to app.New (for testing).
	AppOptions []app.Option
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the tableorder CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tableorder",
		Short: "Table ordering store",
		Long: `Operate a table ordering store: menus, tables, sessions and orders kept
as per-store JSON collections under the data directory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	})

	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.StringVar(&opts.ConfigFile, "config", "", "config file (default ./tableorder.yaml)")
	pf.StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before the environment")
	pf.StringVar(&opts.DataDir, "data-dir", "", "data directory (overrides data_dir)")
	pf.StringVar(&opts.Store, "store", DefaultStore, "store id")

	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewMenuCommand(opts))
	cmd.AddCommand(NewTableCommand(opts))
	cmd.AddCommand(NewSessionCommand(opts))
	cmd.AddCommand(NewOrderCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewEventsCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// Execute runs the command tree with args and reports any failure through
// the output formatter. It returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer, opts ...app.Option) int {
	rootOpts := &RootOptions{AppOptions: opts}
	cmd := newRootCommand(rootOpts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Reported {
		return exitErr.Code
	}

	f := &OutputFormatter{Format: rootOpts.Format, Writer: stdout, ErrWriter: stderr, Verbose: rootOpts.Verbose}
	if !isValidFormat(f.Format) {
		f.Format = "text"
	}
	_ = f.Failure(err)
	return GetExitCode(err)
}

// exactArgs is cobra.ExactArgs reporting a usage error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return WrapExitError(ExitCommandError, "usage: "+cmd.UseLine(), err)
		}
		return nil
	}
}

// parseTableNumber parses a positional table number.
func parseTableNumber(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, WrapExitError(ExitCommandError, fmt.Sprintf("invalid table number %q", s), err)
	}
	return n, nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// loadConfig resolves the configuration and installs the slog handler.
func (o *RootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v, err := config.New(config.Options{ConfigFile: o.ConfigFile, EnvFile: o.EnvFile})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read configuration", err)
	}
	if o.DataDir != "" {
		v.Set("data_dir", o.DataDir)
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	level := cfg.SlogLevel()
	if o.Verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
	return cfg, nil
}

// withApp builds the application, records events for the selected store
// while fn runs when the journal is enabled, and closes everything after.
func (o *RootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := app.New(cfg, o.AppOptions...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open data directory", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := a.StartRecorder(ctx, o.Store); err != nil {
		_ = a.Close()
		return WrapExitError(ExitCommandError, "failed to start journal recorder", err)
	}

	runErr := fn(ctx, a)
	if closeErr := a.Close(); closeErr != nil {
		slog.Error("close failed", "error", closeErr)
		if runErr == nil {
			runErr = closeErr
		}
	}
	return runErr
}
