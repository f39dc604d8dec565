package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/tableorder/internal/app"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	MetricsAddr string

	// Ready, if non-nil, is closed once the sweeper and recorder are running
	// (for testing).
	Ready chan struct{}
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run background maintenance until interrupted",
		Long: `Run the long-lived maintenance loop:

  - the session sweeper ends and archives expired sessions of every store
    on the sweep.interval schedule
  - the journal recorder copies every store's events into the journal
    when journal.path is set
  - with --metrics-addr, prometheus metrics are served at /metrics

Stops on SIGINT or SIGTERM.

Example:
  tableorder run --data-dir ./data --metrics-addr :9090`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoop(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")

	return cmd
}

func runLoop(opts *RunOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := app.New(cfg, opts.AppOptions...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open data directory", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			slog.Error("error closing app", "error", closeErr)
		}
	}()

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	tenants, err := a.Store.Tenants(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list stores", err)
	}
	if err := a.StartRecorder(ctx, tenants...); err != nil {
		return WrapExitError(ExitCommandError, "failed to start journal recorder", err)
	}

	sweeper := a.Sweeper()
	if err := sweeper.Start(ctx); err != nil {
		return WrapExitError(ExitFailure, "failed to start sweeper", err)
	}
	defer sweeper.Stop()

	g, gctx := errgroup.WithContext(ctx)
	if opts.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              opts.MetricsAddr,
			Handler:           metricsMux(a),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			slog.Info("metrics listening", "addr", opts.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	slog.Info("maintenance loop started",
		"data_dir", cfg.DataDir,
		"stores", len(tenants),
		"sweep_interval", cfg.Sweep.Interval,
		"journal", cfg.JournalEnabled(),
	)
	fmt.Fprintln(cmd.OutOrStdout(), "Maintenance loop started. Press Ctrl-C to stop.")
	if opts.Ready != nil {
		close(opts.Ready)
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "maintenance loop failed", err)
	}

	slog.Info("maintenance loop stopped gracefully")
	return nil
}

func metricsMux(a *app.App) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.Metrics.Handler())
	return mux
}
