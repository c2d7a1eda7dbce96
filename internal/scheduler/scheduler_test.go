package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
	"github.com/jrfdy6/aiclone-sub001/internal/providers"
	"github.com/jrfdy6/aiclone-sub001/internal/store"
)

type fakeResearcher struct {
	mu         sync.Mutex
	calls      [][]string
	errByTopic map[string]error
}

func (f *fakeResearcher) RunBatch(_ context.Context, _ string, topics []string, _ domain.Pillar) ([]domain.Insight, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, topics)
	if len(topics) > 0 {
		if err, ok := f.errByTopic[topics[0]]; ok {
			return nil, err
		}
	}
	return []domain.Insight{{Topic: topics[0]}}, nil
}

type fakeReporter struct {
	mu    sync.Mutex
	users []string
}

func (f *fakeReporter) BuildWeeklyReport(_ context.Context, userID string, weekStart time.Time) (*domain.WeeklyReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users = append(f.users, userID)
	return &domain.WeeklyReport{UserID: userID, WeekStart: weekStart}, nil
}

func newTestScheduler(t *testing.T) (*Scheduler, *store.Gateway, *fakeResearcher, *fakeReporter, *providers.FakeClock) {
	t.Helper()
	gw := store.NewGateway(store.NewMemory())
	research := &fakeResearcher{errByTopic: map[string]error{}}
	reporter := &fakeReporter{}
	clock := &providers.FakeClock{Current: time.Date(2026, 8, 24, 6, 0, 0, 0, time.UTC)}
	return New(gw, research, reporter, clock), gw, research, reporter, clock
}

func TestScheduleTopicsValidationAndPersist(t *testing.T) {
	s, gw, _, _, _ := newTestScheduler(t)
	ctx := context.Background()

	_, err := s.ScheduleTopics(ctx, "u1", nil, domain.FrequencyDaily, domain.PillarReferral)
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	_, err = s.ScheduleTopics(ctx, "u1", []string{"t"}, "hourly", domain.PillarReferral)
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	plan, err := s.ScheduleTopics(ctx, "u1", []string{"teen anxiety"}, domain.FrequencyWeekly, domain.PillarReferral)
	require.NoError(t, err)
	assert.NotEmpty(t, plan.PlanID)

	plans, err := gw.ListPlans(ctx, "u1", domain.FrequencyWeekly)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.True(t, plans[0].Due(time.Now()), "fresh plan is immediately due")
}

func TestRunScheduledReplaysDuePlans(t *testing.T) {
	s, gw, research, _, clock := newTestScheduler(t)
	ctx := context.Background()

	_, err := s.ScheduleTopics(ctx, "u1", []string{"due topic"}, domain.FrequencyDaily, domain.PillarReferral)
	require.NoError(t, err)

	fresh := &domain.ScheduledTopicPlan{
		UserID: "u1", PlanID: "fresh", Topics: []string{"fresh topic"},
		Frequency: domain.FrequencyDaily, Pillar: domain.PillarReferral,
		LastRunAt: clock.Current.Add(-time.Hour),
	}
	require.NoError(t, gw.SavePlan(ctx, fresh))

	ran, err := s.RunScheduled(ctx, "u1", domain.FrequencyDaily)
	require.NoError(t, err)
	assert.Equal(t, 1, ran)
	require.Len(t, research.calls, 1)
	assert.Equal(t, []string{"due topic"}, research.calls[0])

	// The run was recorded; nothing is due on an immediate rerun.
	ran, err = s.RunScheduled(ctx, "u1", domain.FrequencyDaily)
	require.NoError(t, err)
	assert.Equal(t, 0, ran)

	// A day later the plan comes due again.
	clock.Advance(25 * time.Hour)
	ran, err = s.RunScheduled(ctx, "u1", domain.FrequencyDaily)
	require.NoError(t, err)
	assert.Equal(t, 2, ran, "both plans due after a day")
}

func TestRunScheduledQuotaAborts(t *testing.T) {
	s, gw, research, _, _ := newTestScheduler(t)
	ctx := context.Background()

	require.NoError(t, gw.SavePlan(ctx, &domain.ScheduledTopicPlan{
		UserID: "u1", PlanID: "a", Topics: []string{"quota topic"},
		Frequency: domain.FrequencyDaily, Pillar: domain.PillarReferral,
	}))
	require.NoError(t, gw.SavePlan(ctx, &domain.ScheduledTopicPlan{
		UserID: "u1", PlanID: "b", Topics: []string{"later topic"},
		Frequency: domain.FrequencyDaily, Pillar: domain.PillarReferral,
	}))
	research.errByTopic["quota topic"] = domain.E(domain.KindQuota, "search_quota", "daily budget", nil)
	research.errByTopic["later topic"] = domain.E(domain.KindQuota, "search_quota", "daily budget", nil)

	ran, err := s.RunScheduled(ctx, "u1", domain.FrequencyDaily)
	require.NoError(t, err)
	assert.Equal(t, 0, ran)
	assert.Len(t, research.calls, 1, "quota exhaustion stops the remaining plans")
}

func TestRunScheduledTransientFailureContinues(t *testing.T) {
	s, gw, research, _, _ := newTestScheduler(t)
	ctx := context.Background()

	require.NoError(t, gw.SavePlan(ctx, &domain.ScheduledTopicPlan{
		UserID: "u1", PlanID: "a", Topics: []string{"flaky topic"},
		Frequency: domain.FrequencyDaily, Pillar: domain.PillarReferral,
	}))
	require.NoError(t, gw.SavePlan(ctx, &domain.ScheduledTopicPlan{
		UserID: "u1", PlanID: "b", Topics: []string{"good topic"},
		Frequency: domain.FrequencyDaily, Pillar: domain.PillarReferral,
	}))
	research.errByTopic["flaky topic"] = domain.E(domain.KindTransient, "search_down", "boom", nil)

	ran, err := s.RunScheduled(ctx, "u1", domain.FrequencyDaily)
	require.NoError(t, err)
	assert.Equal(t, 1, ran, "one bad plan never blocks the rest")
	assert.Len(t, research.calls, 2)
}

func TestRunWeeklyReportsStaleUsersOnly(t *testing.T) {
	s, gw, _, reporter, clock := newTestScheduler(t)
	ctx := context.Background()

	require.NoError(t, gw.EnsureUser(ctx, "stale-user"))
	require.NoError(t, gw.EnsureUser(ctx, "fresh-user"))
	require.NoError(t, gw.SaveWeeklyReport(ctx, &domain.WeeklyReport{
		UserID:      "fresh-user",
		ReportID:    "r1",
		GeneratedAt: clock.Current.Add(-48 * time.Hour),
	}))
	require.NoError(t, gw.SaveWeeklyReport(ctx, &domain.WeeklyReport{
		UserID:      "stale-user",
		ReportID:    "r2",
		GeneratedAt: clock.Current.Add(-8 * 24 * time.Hour),
	}))

	reported, err := s.RunWeeklyReports(ctx, clock.Current)
	require.NoError(t, err)
	assert.Equal(t, []string{"stale-user"}, reported)
	assert.Equal(t, []string{"stale-user"}, reporter.users)
}
