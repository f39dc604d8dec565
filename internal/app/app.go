// Package app constructs the services from a Config and owns their
// lifetimes.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/crypto/bcrypt"

	"github.com/roach88/tableorder/internal/config"
	"github.com/roach88/tableorder/internal/docstore"
	"github.com/roach88/tableorder/internal/eventbus"
	"github.com/roach88/tableorder/internal/journal"
	"github.com/roach88/tableorder/internal/lockreg"
	"github.com/roach88/tableorder/internal/menu"
	"github.com/roach88/tableorder/internal/metrics"
	"github.com/roach88/tableorder/internal/model"
	"github.com/roach88/tableorder/internal/order"
	"github.com/roach88/tableorder/internal/seed"
	"github.com/roach88/tableorder/internal/session"
)

// Option adjusts construction, mainly for tests.
type Option func(*settings)

type settings struct {
	clock    model.Clock
	ids      model.IDGenerator
	hashCost int
}

// WithClock replaces the wall clock.
func WithClock(c model.Clock) Option {
	return func(s *settings) { s.clock = c }
}

// WithIDs replaces the UUIDv7 generator.
func WithIDs(g model.IDGenerator) Option {
	return func(s *settings) { s.ids = g }
}

// WithHashCost sets the bcrypt cost used for table and admin passwords.
func WithHashCost(cost int) Option {
	return func(s *settings) { s.hashCost = cost }
}

// App holds every constructed component.
type App struct {
	Config  *config.Config
	Metrics *metrics.Metrics

	Locks  *lockreg.Registry
	Store  *docstore.Store
	Bus    *eventbus.Bus
	Menus  *menu.Service
	Orders *order.Service
	Tables *session.Manager
	Seeder *seed.Seeder

	// Journal is nil when journal.path is empty.
	Journal *journal.Journal

	stopRecorder context.CancelFunc
	recorderDone chan error
}

// New builds the application graph. Nothing is started.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	st := settings{
		clock:    model.SystemClock{},
		ids:      model.UUIDv7{},
		hashCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(&st)
	}

	m := metrics.New()
	locks := lockreg.New(cfg.Lock.Timeout, lockreg.WithObserver(m))
	store, err := docstore.Open(cfg.DataDir, locks,
		docstore.WithClock(st.clock),
		docstore.WithObserver(m),
	)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	bus := eventbus.New(
		eventbus.WithBuffer(cfg.Events.Buffer),
		eventbus.WithObserver(m),
		eventbus.WithClock(st.clock),
		eventbus.WithIDs(st.ids),
	)

	menus := menu.NewService(store, st.clock, st.ids)
	a := &App{
		Config:  cfg,
		Metrics: m,
		Locks:   locks,
		Store:   store,
		Bus:     bus,
		Menus:   menus,
		Orders:  order.NewService(store, menus, bus, st.clock, st.ids),
		Tables: session.NewManager(store, locks, bus, st.clock, st.ids,
			session.WithExpiry(cfg.Session.Expiry),
			session.WithHashCost(st.hashCost),
		),
		Seeder: seed.NewSeeder(store, st.clock, st.ids, st.hashCost),
	}

	if cfg.JournalEnabled() {
		path := journalPath(cfg)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
		j, err := journal.Open(path)
		if err != nil {
			return nil, err
		}
		a.Journal = j
	}
	return a, nil
}

// journalPath resolves a relative journal path against the data directory.
func journalPath(cfg *config.Config) string {
	if filepath.IsAbs(cfg.Journal.Path) {
		return cfg.Journal.Path
	}
	return filepath.Join(cfg.DataDir, cfg.Journal.Path)
}

// Sweeper returns an expiry sweeper over every tenant in the store.
func (a *App) Sweeper() *session.Sweeper {
	return session.NewSweeper(a.Tables, a.Store, a.Config.Sweep.Interval)
}

// StartRecorder copies events for tenants into the journal until Close. It
// returns once the subscriptions are registered, so events published after
// it returns are recorded. Without a journal it does nothing.
func (a *App) StartRecorder(ctx context.Context, tenants ...string) error {
	if a.Journal == nil {
		return nil
	}
	if a.stopRecorder != nil {
		return errors.New("recorder already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	ready := make(chan struct{})
	done := make(chan error, 1)
	rec := journal.NewRecorder(a.Journal, a.Bus)
	go func() {
		done <- rec.Run(ctx, tenants, ready)
	}()

	select {
	case <-ready:
	case err := <-done:
		cancel()
		return err
	}
	a.stopRecorder = cancel
	a.recorderDone = done
	return nil
}

// Close stops the recorder, letting it write what is already queued, then
// closes the bus and the journal.
func (a *App) Close() error {
	var errs []error
	if a.stopRecorder != nil {
		a.stopRecorder()
		if err := <-a.recorderDone; err != nil {
			errs = append(errs, err)
		}
		a.stopRecorder = nil
	}
	a.Bus.Close()
	if a.Journal != nil {
		if err := a.Journal.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	slog.Debug("app closed")
	return errors.Join(errs...)
}
