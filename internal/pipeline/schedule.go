package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Scheduler triggers render cycles on a six-field cron expression
// (seconds first).
type Scheduler struct {
	cron   *cron.Cron
	driver *Driver
	entry  cron.EntryID
	ctx    context.Context
}

func NewScheduler(d *Driver, expr string) (*Scheduler, error) {
	c := cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	s := &Scheduler{cron: c, driver: d, ctx: context.Background()}

	id, err := c.AddFunc(expr, s.tick)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	s.entry = id
	return s, nil
}

func (s *Scheduler) tick() {
	if _, err := s.driver.RunCycle(s.ctx); err != nil {
		log.Error().Err(err).Msg("Scheduled render cycle failed")
	}
}

// Run starts the schedule and blocks until ctx is done, then waits for a
// running cycle to finish. Cycles started by the schedule are canceled with
// ctx.
func (s *Scheduler) Run(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	log.Info().Time("next", s.cron.Entry(s.entry).Schedule.Next(time.Now())).Msg("Render schedule started")

	<-ctx.Done()
	<-s.cron.Stop().Done()
	log.Info().Msg("Render schedule stopped")
}
