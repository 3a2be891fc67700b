package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// CronTrigger fires the scheduler on a cron schedule. The job body
// never returns an error and recovers its own panics, so a bad run can
// never stop the trigger from firing on subsequent days.
type CronTrigger struct {
	engine    *cron.Cron
	scheduler *Scheduler
	spec      string
	logger    *zap.Logger
}

// NewCronTrigger creates the daily trigger. The spec uses standard
// five-field cron syntax in the server's local time, e.g. "0 9 * * *".
func NewCronTrigger(s *Scheduler, spec string, logger *zap.Logger) (*CronTrigger, error) {
	t := &CronTrigger{
		engine:    cron.New(cron.WithLocation(time.Local)),
		scheduler: s,
		spec:      spec,
		logger:    logger,
	}

	_, err := t.engine.AddFunc(spec, func() {
		t.logger.Info("cron trigger fired", zap.String("spec", spec))
		report := s.TriggerRun(context.Background(), "cron")
		if report.AlreadyRunning {
			t.logger.Info("scheduled run skipped, already in progress")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("add cron job %q: %w", spec, err)
	}

	return t, nil
}

// Start begins firing the schedule.
func (t *CronTrigger) Start() {
	t.engine.Start()
	t.logger.Info("reminder cron trigger started", zap.String("spec", t.spec))
}

// Stop halts the schedule and waits for a running job to finish.
func (t *CronTrigger) Stop() {
	t.logger.Info("stopping reminder cron trigger")
	<-t.engine.Stop().Done()
	t.logger.Info("reminder cron trigger stopped")
}
