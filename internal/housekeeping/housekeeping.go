// Package housekeeping runs the server's periodic chores on robfig/cron.
package housekeeping

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/arnavshah/capacity-scheduler-api/pkg/calendar"
)

// Pruner drops expired cache entries and reports how many went.
type Pruner interface {
	Prune() int
}

// Warmer preloads schedule data so the first dispatcher request of a window
// is served from cache.
type Warmer interface {
	CompanyWarm(ctx context.Context, anchor time.Time) error
}

// WarmFunc adapts a function to Warmer.
type WarmFunc func(ctx context.Context, anchor time.Time) error

func (f WarmFunc) CompanyWarm(ctx context.Context, anchor time.Time) error { return f(ctx, anchor) }

// Runner wraps robfig/cron.
type Runner struct {
	cron   *cron.Cron
	pruner Pruner
	warmer Warmer
	now    func() time.Time
}

// New creates a Runner. Either chore may be nil.
func New(pruner Pruner, warmer Warmer) *Runner {
	return &Runner{
		cron:   cron.New(cron.WithLogger(cron.DefaultLogger)),
		pruner: pruner,
		warmer: warmer,
		now:    time.Now,
	}
}

// Start registers the chores and starts the scheduler.
func (r *Runner) Start(ctx context.Context, pruneSpec, warmSpec string) error {
	if r.pruner != nil {
		if _, err := r.cron.AddFunc(pruneSpec, r.prune); err != nil {
			return fmt.Errorf("cron.AddFunc(%q): %w", pruneSpec, err)
		}
	}
	if r.warmer != nil {
		if _, err := r.cron.AddFunc(warmSpec, func() { r.warm(ctx) }); err != nil {
			return fmt.Errorf("cron.AddFunc(%q): %w", warmSpec, err)
		}
	}
	r.cron.Start()
	log.Printf("[housekeeping] Cron started, prune: %s, warm: %s", pruneSpec, warmSpec)
	return nil
}

// Stop waits for running chores to finish.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
	log.Println("[housekeeping] Cron stopped")
}

func (r *Runner) prune() {
	if n := r.pruner.Prune(); n > 0 {
		log.Printf("[housekeeping] Pruned %d cache entries", n)
	}
}

func (r *Runner) warm(ctx context.Context) {
	anchor := calendar.WeekStart(r.now())
	if err := r.warmer.CompanyWarm(ctx, anchor); err != nil {
		log.Printf("[housekeeping] Cache warm failed: %v", err)
	}
}
