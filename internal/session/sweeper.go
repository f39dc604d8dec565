package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
)

// DefaultSweepInterval is how often the sweeper looks for expired sessions.
const DefaultSweepInterval = time.Minute

// TenantSource lists the registered tenants. Implemented by docstore.Store.
type TenantSource interface {
	Tenants(ctx context.Context) ([]string, error)
}

// Sweeper periodically ends expired sessions across every tenant.
type Sweeper struct {
	manager  *Manager
	tenants  TenantSource
	interval time.Duration

	mu        sync.Mutex
	scheduler *gocron.Scheduler
}

// NewSweeper creates a Sweeper. A non-positive interval selects
// DefaultSweepInterval.
func NewSweeper(manager *Manager, tenants TenantSource, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{manager: manager, tenants: tenants, interval: interval}
}

// Sweep runs one pass over every tenant and returns how many sessions were
// ended. A failing tenant does not stop the pass; its error is included in
// the returned error.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	tenants, err := s.tenants.Tenants(ctx)
	if err != nil {
		return 0, fmt.Errorf("list tenants: %w", err)
	}

	total := 0
	var errs []error
	for _, tenant := range tenants {
		n, err := s.manager.ExpireSessions(ctx, tenant)
		total += n
		if err != nil {
			slog.Error("session sweep failed", "tenant", tenant, "error", err)
			errs = append(errs, fmt.Errorf("tenant %s: %w", tenant, err))
		}
	}
	if total > 0 {
		slog.Info("expired sessions ended", "count", total)
	}
	return total, errors.Join(errs...)
}

// Start schedules Sweep every interval until Stop is called or ctx ends.
// Overlapping runs are skipped.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduler != nil {
		return errors.New("sweeper already started")
	}

	scheduler := gocron.NewScheduler(time.UTC)
	scheduler.SingletonModeAll()
	_, err := scheduler.Every(s.interval).Do(func() {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.Sweep(ctx); err != nil {
			slog.Error("session sweep incomplete", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	scheduler.StartAsync()
	s.scheduler = scheduler

	slog.Info("session sweeper started", "interval", s.interval)
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop halts the schedule. Safe to call more than once.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduler == nil {
		return
	}
	s.scheduler.Stop()
	s.scheduler = nil
	slog.Info("session sweeper stopped")
}
