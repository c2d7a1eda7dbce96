// Package scheduler replays scheduled research topics and drives the
// weekly-report cron. It runs inside the worker binary and on demand
// through the API.
package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
	"github.com/jrfdy6/aiclone-sub001/internal/pkg/logger"
	"github.com/jrfdy6/aiclone-sub001/internal/providers"
	"github.com/jrfdy6/aiclone-sub001/internal/store"
)

// ReportStaleness is how old a user's last report may be before the cron
// regenerates it.
const ReportStaleness = 6 * 24 * time.Hour

// Researcher is the research pipeline surface the scheduler replays into.
type Researcher interface {
	RunBatch(ctx context.Context, userID string, topics []string, pillar domain.Pillar) ([]domain.Insight, error)
}

// Reporter builds weekly reports.
type Reporter interface {
	BuildWeeklyReport(ctx context.Context, userID string, weekStart time.Time) (*domain.WeeklyReport, error)
}

// Scheduler owns plan storage and the periodic loops.
type Scheduler struct {
	gw       *store.Gateway
	research Researcher
	reporter Reporter
	clock    providers.Clock
}

// New builds a Scheduler.
func New(gw *store.Gateway, research Researcher, reporter Reporter, clock providers.Clock) *Scheduler {
	if clock == nil {
		clock = providers.RealClock{}
	}
	return &Scheduler{gw: gw, research: research, reporter: reporter, clock: clock}
}

// ScheduleTopics stores a replay plan and returns it.
func (s *Scheduler) ScheduleTopics(ctx context.Context, userID string, topics []string, freq domain.ScheduleFrequency, pillar domain.Pillar) (*domain.ScheduledTopicPlan, error) {
	if len(topics) == 0 {
		return nil, domain.E(domain.KindValidation, "schedule_no_topics", "at least one topic is required", nil)
	}
	if !freq.Valid() {
		return nil, domain.E(domain.KindValidation, "schedule_bad_frequency", "unknown frequency "+string(freq), nil)
	}
	if !pillar.Valid() {
		return nil, domain.E(domain.KindValidation, "schedule_bad_pillar", "unknown pillar "+string(pillar), nil)
	}
	plan := &domain.ScheduledTopicPlan{
		UserID:    userID,
		PlanID:    uuid.NewString(),
		Topics:    topics,
		Frequency: freq,
		Pillar:    pillar,
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := s.gw.SavePlan(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// RunScheduled replays every due plan of the given frequency for the
// user. Each plan's topics go through the research pipeline's batch mode,
// which staggers provider calls; a failed plan is logged and skipped so
// one bad topic set never blocks the rest. Returns the number of plans
// run.
func (s *Scheduler) RunScheduled(ctx context.Context, userID string, freq domain.ScheduleFrequency) (int, error) {
	if !freq.Valid() {
		return 0, domain.E(domain.KindValidation, "schedule_bad_frequency", "unknown frequency "+string(freq), nil)
	}
	plans, err := s.gw.ListPlans(ctx, userID, freq)
	if err != nil {
		return 0, err
	}

	now := s.clock.Now().UTC()
	ran := 0
	for _, plan := range plans {
		if !plan.Due(now) {
			continue
		}
		if _, err := s.research.RunBatch(ctx, userID, plan.Topics, plan.Pillar); err != nil {
			logger.Warn("scheduled plan failed", "user_id", userID, "plan_id", plan.PlanID, "error", err.Error())
			if domain.KindOf(err) == domain.KindQuota {
				// Provider budget exhausted; later plans would fail too.
				break
			}
			continue
		}
		if err := s.gw.TouchPlan(ctx, userID, plan.PlanID, now); err != nil {
			logger.Warn("plan touch failed", "plan_id", plan.PlanID, "error", err.Error())
		}
		ran++
	}
	return ran, nil
}

// RunWeeklyReports generates a report for every user whose last report is
// older than ReportStaleness. Returns the user IDs reported on.
func (s *Scheduler) RunWeeklyReports(ctx context.Context, now time.Time) ([]string, error) {
	userIDs, err := s.gw.ListUserIDs(ctx)
	if err != nil {
		return nil, err
	}

	var reported []string
	for _, userID := range userIDs {
		last, err := s.gw.LastReportTime(ctx, userID)
		if err != nil {
			logger.Warn("last report lookup failed", "user_id", userID, "error", err.Error())
			continue
		}
		if !last.IsZero() && now.Sub(last) < ReportStaleness {
			continue
		}
		weekStart := now.UTC().AddDate(0, 0, -7)
		if _, err := s.reporter.BuildWeeklyReport(ctx, userID, weekStart); err != nil {
			logger.Warn("weekly report failed", "user_id", userID, "error", err.Error())
			continue
		}
		reported = append(reported, userID)
	}
	return reported, nil
}

// Run loops the periodic work until ctx ends: due plans every interval,
// weekly reports once per day cycle.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	userIDs, err := s.gw.ListUserIDs(ctx)
	if err != nil {
		logger.Error("scheduler user listing failed", "error", err.Error())
		return
	}
	for _, userID := range userIDs {
		for _, freq := range []domain.ScheduleFrequency{domain.FrequencyDaily, domain.FrequencyWeekly, domain.FrequencyMonthly} {
			if _, err := s.RunScheduled(ctx, userID, freq); err != nil {
				logger.Warn("scheduled run failed", "user_id", userID, "frequency", string(freq), "error", err.Error())
			}
		}
	}
	if _, err := s.RunWeeklyReports(ctx, s.clock.Now().UTC()); err != nil {
		logger.Warn("weekly report cron failed", "error", err.Error())
	}
}
