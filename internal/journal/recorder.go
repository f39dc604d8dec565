package journal

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/tableorder/internal/eventbus"
)

// Recorder copies bus events into a journal.
type Recorder struct {
	journal *Journal
	bus     *eventbus.Bus
}

// NewRecorder creates a Recorder.
func NewRecorder(j *Journal, bus *eventbus.Bus) *Recorder {
	return &Recorder{journal: j, bus: bus}
}

// Run subscribes to every tenant and records events until ctx ends. Events
// already queued when ctx ends are still written. A failed write is logged
// and skipped.
//
// Subscriptions are registered before Run blocks, via the ready channel
// when it is non-nil.
func (r *Recorder) Run(ctx context.Context, tenants []string, ready chan<- struct{}) error {
	g, gctx := errgroup.WithContext(ctx)
	writeCtx := context.WithoutCancel(ctx)

	for _, tenant := range tenants {
		sub := r.bus.Subscribe(gctx, tenant)
		g.Go(func() error {
			r.drain(writeCtx, sub)
			return nil
		})
	}
	slog.Info("journal recorder started", "tenants", len(tenants))
	if ready != nil {
		close(ready)
	}

	err := g.Wait()
	slog.Info("journal recorder stopped")
	return err
}

func (r *Recorder) drain(ctx context.Context, sub *eventbus.Subscription) {
	for ev := range sub.Events() {
		entry, err := FromEvent(ev)
		if err != nil {
			slog.Error("journal encode failed", "tenant", ev.TenantID, "event_type", ev.Type, "error", err)
			continue
		}
		if _, err := r.journal.Append(ctx, entry); err != nil {
			slog.Error("journal append failed", "tenant", ev.TenantID, "event_type", ev.Type, "error", err)
		}
	}
}
