package sdk

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/dbrepl/dbrepl/pkg/config"
)

// Scheduler runs the full pipeline on a cron schedule. A run that overlaps
// a still-executing previous run is skipped rather than stacked.
type Scheduler struct {
	svc    Service
	cfg    *config.Config
	logger *zap.SugaredLogger
	sched  *gocron.Scheduler
}

// NewScheduler returns a stopped scheduler. A nil logger is replaced with a
// no-op one.
func NewScheduler(svc Service, cfg *config.Config, logger *zap.SugaredLogger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Scheduler{svc: svc, cfg: cfg, logger: logger}
}

// Start schedules runs with the given cron expression and returns
// immediately.
func (s *Scheduler) Start(cronExpr string) error {
	sched := gocron.NewScheduler(time.UTC)
	sched.SingletonModeAll()
	if _, err := sched.Cron(cronExpr).Do(func() {
		res, err := s.svc.Run(context.Background(), s.cfg, nil)
		if err != nil {
			s.logger.Errorw("scheduled replication failed", "err", err)
			return
		}
		s.logger.Infow("scheduled replication finished",
			"runID", res.RunID,
			"success", res.Success,
			"tables", res.TablesProcessed,
			"rows", res.RowsProcessed,
			"duration", res.Duration)
	}); err != nil {
		return err
	}
	sched.StartAsync()
	s.sched = sched
	return nil
}

// Stop halts the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	if s.sched != nil {
		s.sched.Stop()
	}
}
