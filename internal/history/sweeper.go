package history

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/hashtalk-dev/hashtalk/pkg/store"
)

const sweepConcurrency = 4

// Sweeper periodically runs compaction across all sessions so long-idle
// threads get compacted even without new traffic.
type Sweeper struct {
	store     store.Store
	compactor *Compactor
	schedule  string
	cron      *cron.Cron
}

// NewSweeper creates a sweeper. schedule is a cron expression, e.g.
// "*/30 * * * *" for every 30 minutes.
func NewSweeper(s store.Store, c *Compactor, schedule string) *Sweeper {
	return &Sweeper{
		store:     s,
		compactor: c,
		schedule:  schedule,
		cron:      cron.New(),
	}
}

// Start registers the sweep job and starts the scheduler.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		s.Sweep(ctx)
	}); err != nil {
		return err
	}
	s.cron.Start()
	log.Printf("[history] compaction sweeper started (schedule %q)", s.schedule)
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Sweep consolidates every known session, a bounded number at a time.
func (s *Sweeper) Sweep(ctx context.Context) {
	summaries, err := s.store.ListSummaries(ctx)
	if err != nil {
		log.Printf("[history] sweep: list sessions: %v", err)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for _, sum := range summaries {
		threadID := sum.ThreadID
		g.Go(func() error {
			if err := s.compactor.Consolidate(gctx, threadID); err != nil {
				log.Printf("[history] sweep: consolidate %s: %v", threadID, err)
			}
			return nil
		})
	}
	_ = g.Wait()
}
