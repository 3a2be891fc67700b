// Package scheduler owns the daily renewal reminder run: for each
// configured milestone it finds the policies expiring on the target
// date and hands them to the dispatcher. All cross-run memory lives in
// the delivery ledger; the scheduler itself keeps no state between runs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/renewd/renewd/internal/db"
	"github.com/renewd/renewd/internal/metrics"
	"github.com/renewd/renewd/internal/reminder"
)

// PolicySource is the policy query port.
type PolicySource interface {
	FindActiveExpiringOn(ctx context.Context, date time.Time) ([]db.PolicySnapshot, error)
}

// Dispatcher sends reminders for one milestone batch.
type Dispatcher interface {
	Dispatch(ctx context.Context, m reminder.Milestone, due []db.PolicySnapshot) reminder.DispatchOutcome
}

// RunLock guards against overlapping runs for the same date. Advisory
// only; the ledger's uniqueness constraint is the correctness mechanism.
type RunLock interface {
	Acquire(ctx context.Context, day time.Time) (bool, error)
	Release(ctx context.Context, day time.Time) error
}

// MilestoneResult is the per-milestone slice of a run report.
type MilestoneResult struct {
	Milestone  string                   `json:"milestone"`
	TargetDate string                   `json:"target_date"`
	Outcome    reminder.DispatchOutcome `json:"outcome"`
	Error      string                   `json:"error,omitempty"`
}

// RunReport summarizes one daily run. Transient, for logs and the
// manual-trigger response; nothing in it is persisted.
type RunReport struct {
	Date           string            `json:"date"`
	AlreadyRunning bool              `json:"already_running,omitempty"`
	Milestones     []MilestoneResult `json:"milestones"`
}

// Scheduler runs the daily reminder job over the configured milestones.
type Scheduler struct {
	policies   PolicySource
	dispatcher Dispatcher
	milestones []reminder.Milestone
	runLock    RunLock // nil when redis is unavailable
	logger     *zap.Logger
}

// New creates a scheduler. runLock may be nil; the run then proceeds
// without an overlap guard.
func New(policies PolicySource, dispatcher Dispatcher, milestones []reminder.Milestone, runLock RunLock, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		policies:   policies,
		dispatcher: dispatcher,
		milestones: milestones,
		runLock:    runLock,
		logger:     logger,
	}
}

// TriggerRun is the single entry point for both the cron trigger and
// the manual endpoint; both paths behave identically. It never returns
// an error: every failure is contained and reported in the RunReport.
func (s *Scheduler) TriggerRun(ctx context.Context, trigger string) RunReport {
	today := truncateToDay(time.Now())

	if s.runLock != nil {
		acquired, err := s.runLock.Acquire(ctx, today)
		if err != nil {
			// Lock unavailable is not a reason to skip the run; the
			// ledger keeps a concurrent run safe.
			s.logger.Warn("run lock unavailable, proceeding without overlap guard",
				zap.Error(err),
			)
		} else if !acquired {
			s.logger.Info("reminder run already in progress for today, skipping",
				zap.String("trigger", trigger),
				zap.Time("date", today),
			)
			return RunReport{Date: today.Format("2006-01-02"), AlreadyRunning: true}
		} else {
			defer func() {
				if err := s.runLock.Release(context.WithoutCancel(ctx), today); err != nil {
					s.logger.Warn("failed to release run lock", zap.Error(err))
				}
			}()
		}
	}

	start := time.Now()
	report := s.RunDaily(ctx, today)
	metrics.RecordRun(trigger, time.Since(start))

	return report
}

// RunDaily executes one full reminder run for the given date. Milestone
// failures are isolated: a policy query error abandons that milestone
// only, and a panic anywhere in per-milestone processing is recovered,
// so nothing ever propagates back to the trigger.
func (s *Scheduler) RunDaily(ctx context.Context, today time.Time) RunReport {
	today = truncateToDay(today)

	s.logger.Info("starting daily renewal reminder run",
		zap.Time("date", today),
		zap.Int("milestones", len(s.milestones)),
	)

	report := RunReport{
		Date:       today.Format("2006-01-02"),
		Milestones: make([]MilestoneResult, 0, len(s.milestones)),
	}

	for _, m := range s.milestones {
		report.Milestones = append(report.Milestones, s.runMilestone(ctx, today, m))
	}

	s.logger.Info("daily renewal reminder run completed",
		zap.Time("date", today),
	)

	return report
}

func (s *Scheduler) runMilestone(ctx context.Context, today time.Time, m reminder.Milestone) (result MilestoneResult) {
	targetDate := today.AddDate(0, 0, m.LeadDays)
	result = MilestoneResult{
		Milestone:  m.ID,
		TargetDate: targetDate.Format("2006-01-02"),
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic during milestone processing",
				zap.String("milestone", m.ID),
				zap.Any("panic", r),
			)
			result.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	s.logger.Info("processing milestone",
		zap.String("milestone", m.ID),
		zap.Time("target_date", targetDate),
	)

	due, err := s.policies.FindActiveExpiringOn(ctx, targetDate)
	if err != nil {
		s.logger.Error("policy query failed, abandoning milestone for this run",
			zap.Error(err),
			zap.String("milestone", m.ID),
			zap.Time("target_date", targetDate),
		)
		metrics.RecordMilestoneQueryFailure(m.ID)
		result.Error = err.Error()
		return result
	}

	if len(due) == 0 {
		s.logger.Info("no policies expiring on target date",
			zap.String("milestone", m.ID),
			zap.Time("target_date", targetDate),
		)
		return result
	}

	s.logger.Info("found policies due for reminder",
		zap.String("milestone", m.ID),
		zap.Int("count", len(due)),
	)

	outcome := s.dispatcher.Dispatch(ctx, m, due)
	result.Outcome = outcome

	s.logger.Info("milestone summary",
		zap.String("milestone", m.ID),
		zap.Int("total", outcome.Total),
		zap.Int("sent", outcome.Sent),
		zap.Int("skipped", outcome.Skipped),
		zap.Int("failed", outcome.Failed),
	)

	return result
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
