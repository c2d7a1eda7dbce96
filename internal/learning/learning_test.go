package learning

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
	"github.com/jrfdy6/aiclone-sub001/internal/pkg/distlock"
	"github.com/jrfdy6/aiclone-sub001/internal/providers"
	"github.com/jrfdy6/aiclone-sub001/internal/store"
)

type captureBus struct {
	mu     sync.Mutex
	events []domain.ActivityEvent
}

func (c *captureBus) Publish(_ context.Context, e *domain.ActivityEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, *e)
}

type captureArchiver struct {
	mu     sync.Mutex
	keys   []string
	bodies [][]byte
}

func (a *captureArchiver) Archive(_ context.Context, key string, body []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys = append(a.keys, key)
	a.bodies = append(a.bodies, body)
	return nil
}

func newTestCore(t *testing.T) (*Core, *store.Gateway, *distlock.LocalLocker, *captureArchiver) {
	t.Helper()
	gw := store.NewGateway(store.NewMemory())
	locker := distlock.NewLocalLocker()
	archiver := &captureArchiver{}
	clock := &providers.FakeClock{Current: time.Now().UTC().Truncate(time.Second)}
	c := New(gw, locker, archiver, &captureBus{}, Options{Clock: clock})
	return c, gw, locker, archiver
}

func contentMetric(contentID string, pillar domain.Pillar, likes, impressions int, hashtags ...string) *domain.ContentMetric {
	return &domain.ContentMetric{
		UserID:      "u1",
		ContentID:   contentID,
		Pillar:      pillar,
		Platform:    "linkedin",
		PostType:    "text",
		Metrics:     domain.EngagementCounts{Likes: likes, Impressions: impressions},
		TopHashtags: hashtags,
		CreatedAt:   time.Now().UTC().Add(-24 * time.Hour).Truncate(time.Second),
	}
}

func TestIngestContentMetricRecomputesRate(t *testing.T) {
	c, _, _, _ := newTestCore(t)

	m := contentMetric("c1", domain.PillarReferral, 10, 1000)
	m.Metrics.Comments = 5
	m.Metrics.Shares = 5
	m.EngagementRate = 99.9 // client-provided, must be discarded

	saved, err := c.IngestContentMetric(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, 2.0, saved.EngagementRate)
	assert.NotEmpty(t, saved.MetricID)

	zero := contentMetric("c2", domain.PillarReferral, 10, 0)
	saved, err = c.IngestContentMetric(context.Background(), zero)
	require.NoError(t, err)
	assert.Equal(t, 0.0, saved.EngagementRate, "zero impressions")
}

func TestIngestContentMetricValidation(t *testing.T) {
	c, _, _, _ := newTestCore(t)

	_, err := c.IngestContentMetric(context.Background(), &domain.ContentMetric{UserID: "u1"})
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	m := contentMetric("c1", domain.Pillar("nope"), 1, 100)
	_, err = c.IngestContentMetric(context.Background(), m)
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func seedMetrics(t *testing.T, c *Core, gw *store.Gateway) {
	t.Helper()
	ctx := context.Background()

	m1 := contentMetric("c1", domain.PillarReferral, 20, 1000, "#ai", "#education")
	m2 := contentMetric("c2", domain.PillarReferral, 40, 1000, "#ai")
	for _, m := range []*domain.ContentMetric{m1, m2} {
		_, err := c.IngestContentMetric(ctx, m)
		require.NoError(t, err)
	}

	require.NoError(t, gw.SaveDraft(ctx, &domain.ContentDraft{
		UserID: "u1", DraftID: "c2", Pillar: domain.PillarReferral, Topic: "AI tutoring",
	}))

	require.NoError(t, gw.SaveProspect(ctx, &domain.DiscoveredProspect{
		UserID: "u1", ProspectID: "p1", Name: "Jane Doe",
		Organization: "Lakeside", Segment: domain.SegmentReferralNetwork,
		ApprovalStatus: domain.ApprovalApproved,
	}))
	_, err := gw.UpsertProspectMetric(ctx, "u1", "p1", "s1", func(m *domain.ProspectMetric) error {
		now := time.Now().UTC()
		m.DMsSent = []domain.DMRecord{
			{MessageID: "m1", SentAt: now, ResponseReceivedAt: &now, ResponseType: domain.ResponsePositive},
			{MessageID: "m2", SentAt: now},
		}
		m.ConnectionRequestSent = true
		m.ConnectionAccepted = true
		m.MeetingsBooked = []domain.MeetingRecord{{BookedAt: now}}
		return nil
	})
	require.NoError(t, err)
}

func TestUpdatePatternsAggregates(t *testing.T) {
	c, gw, _, _ := newTestCore(t)
	ctx := context.Background()
	seedMetrics(t, c, gw)

	require.NoError(t, c.UpdatePatterns(ctx, "u1", ""))

	pillar, err := gw.GetPattern(ctx, "u1", domain.PatternContentPillar, string(domain.PillarReferral))
	require.NoError(t, err)
	require.NotNil(t, pillar)
	assert.Equal(t, 3.0, pillar.AveragePerformance, "mean of 2.0 and 4.0")
	assert.Equal(t, "c2", pillar.BestPerformanceVariant)
	assert.Equal(t, 2, pillar.SampleSize)
	assert.Equal(t, domain.MetricEngagementRate, pillar.SuccessMetric)

	hashtag, err := gw.GetPattern(ctx, "u1", domain.PatternHashtag, "#ai")
	require.NoError(t, err)
	require.NotNil(t, hashtag)
	assert.Equal(t, 2, hashtag.SampleSize)

	topic, err := gw.GetPattern(ctx, "u1", domain.PatternTopic, "AI tutoring")
	require.NoError(t, err)
	require.NotNil(t, topic, "topic resolved through the draft")
	assert.Equal(t, 4.0, topic.AveragePerformance)

	seq, err := gw.GetPattern(ctx, "u1", domain.PatternOutreachSequence, "s1")
	require.NoError(t, err)
	require.NotNil(t, seq)
	assert.Equal(t, 50.0, seq.AveragePerformance, "1 positive of 2 DMs")
	assert.Equal(t, domain.MetricReplyRate, seq.SuccessMetric)

	segment, err := gw.GetPattern(ctx, "u1", domain.PatternAudienceSegment, string(domain.SegmentReferralNetwork))
	require.NoError(t, err)
	require.NotNil(t, segment)
	assert.Equal(t, 50.0, segment.AveragePerformance, "1 meeting of 2 DMs")
	assert.Equal(t, domain.MetricMeetingRate, segment.SuccessMetric)
}

func TestUpdatePatternsIdempotent(t *testing.T) {
	gw := store.NewGateway(store.NewMemory())
	clock := &providers.FakeClock{Current: time.Now().UTC().Truncate(time.Second)}
	c := New(gw, nil, nil, nil, Options{Clock: clock})
	ctx := context.Background()
	seedMetrics(t, c, gw)

	require.NoError(t, c.UpdatePatterns(ctx, "u1", ""))
	first, err := gw.GetPattern(ctx, "u1", domain.PatternContentPillar, string(domain.PillarReferral))
	require.NoError(t, err)

	require.NoError(t, c.UpdatePatterns(ctx, "u1", ""))
	second, err := gw.GetPattern(ctx, "u1", domain.PatternContentPillar, string(domain.PillarReferral))
	require.NoError(t, err)

	assert.Equal(t, first, second, "identical inputs produce the same document")
	assert.Len(t, second.PerformanceHistory, 1)

	// A later rerun refreshes only the update stamp.
	clock.Advance(time.Hour)
	require.NoError(t, c.UpdatePatterns(ctx, "u1", ""))
	third, err := gw.GetPattern(ctx, "u1", domain.PatternContentPillar, string(domain.PillarReferral))
	require.NoError(t, err)
	assert.True(t, third.LastUpdated.After(second.LastUpdated))
	third.LastUpdated = second.LastUpdated
	assert.Equal(t, second, third, "substantive fields unchanged on rerun")
}

func TestUpdatePatternsHistoryBounded(t *testing.T) {
	c, gw, _, _ := newTestCore(t)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		m := contentMetric(fmt.Sprintf("c%02d", i), domain.PillarReferral, (i+1)*7, 1000)
		_, err := c.IngestContentMetric(ctx, m)
		require.NoError(t, err)
		require.NoError(t, c.UpdatePatterns(ctx, "u1", domain.PatternContentPillar))
	}

	p, err := gw.GetPattern(ctx, "u1", domain.PatternContentPillar, string(domain.PillarReferral))
	require.NoError(t, err)
	assert.Len(t, p.PerformanceHistory, domain.PatternHistoryLimit)
	assert.Equal(t, 15, p.SampleSize)
	assert.Equal(t, p.AveragePerformance, p.PerformanceHistory[domain.PatternHistoryLimit-1], "recent-last")
}

func TestUpdatePatternsSkipsHeldLock(t *testing.T) {
	c, gw, locker, _ := newTestCore(t)
	ctx := context.Background()
	seedMetrics(t, c, gw)

	key := fmt.Sprintf("patterns:u1:%s:%s", domain.PatternContentPillar, domain.PillarReferral)
	held := locker.For(key, time.Minute)
	ok, err := held.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, c.UpdatePatterns(ctx, "u1", ""))

	blocked, err := gw.GetPattern(ctx, "u1", domain.PatternContentPillar, string(domain.PillarReferral))
	require.NoError(t, err)
	assert.Nil(t, blocked, "held lock skips that key without failing the run")

	hashtag, err := gw.GetPattern(ctx, "u1", domain.PatternHashtag, "#ai")
	require.NoError(t, err)
	assert.NotNil(t, hashtag, "other keys still update")
}

func TestBuildWeeklyReport(t *testing.T) {
	c, gw, _, archiver := newTestCore(t)
	ctx := context.Background()
	seedMetrics(t, c, gw)

	weekStart := time.Now().UTC().AddDate(0, 0, -3)
	report, err := c.BuildWeeklyReport(ctx, "u1", weekStart)
	require.NoError(t, err)

	assert.Equal(t, 2, report.TotalPosts)
	assert.Equal(t, 3.0, report.AvgEngagementRate)
	assert.Equal(t, domain.PillarReferral, report.BestPillar)
	require.NotEmpty(t, report.TopHashtags)
	assert.Equal(t, "#ai", report.TopHashtags[0], "ranked by total engagement")

	assert.Equal(t, 1, report.Outreach.ConnectionRequestsSent)
	assert.Equal(t, 100.0, report.Outreach.ConnectionAcceptRate)
	assert.Equal(t, 2, report.Outreach.DMsSent)
	assert.Equal(t, 50.0, report.Outreach.DMReplyRate)
	assert.Equal(t, 1, report.Outreach.MeetingsBooked)

	require.NotEmpty(t, report.Recommendations)
	assert.Contains(t, report.Recommendations[0], "#ai")

	require.Len(t, archiver.keys, 1)
	assert.Contains(t, archiver.keys[0], "reports/u1/")

	last, err := gw.LastReportTime(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, last.IsZero())
}

func TestWeeklyReportPillarMixRecommendations(t *testing.T) {
	c, gw, _, _ := newTestCore(t)
	ctx := context.Background()
	seedMetrics(t, c, gw)

	// Both seeded posts are referral; the other pillars run under half
	// their default target share and get flagged, mix advice last.
	report, err := c.BuildWeeklyReport(ctx, "u1", time.Now().UTC().AddDate(0, 0, -3))
	require.NoError(t, err)

	n := len(report.Recommendations)
	require.GreaterOrEqual(t, n, 2)
	assert.Contains(t, report.Recommendations[n-2], string(domain.PillarThoughtLeadership))
	assert.Contains(t, report.Recommendations[n-2], "50% target")
	assert.Contains(t, report.Recommendations[n-1], string(domain.PillarStealthFounder))

	// A custom mix that only targets referral raises no mix advice when
	// every post is referral.
	gw2 := store.NewGateway(store.NewMemory())
	c2 := New(gw2, nil, nil, nil, Options{
		PacerMix: map[domain.Pillar]float64{domain.PillarReferral: 1.0},
	})
	_, err = c2.IngestContentMetric(ctx, contentMetric("c1", domain.PillarReferral, 20, 1000))
	require.NoError(t, err)

	report, err = c2.BuildWeeklyReport(ctx, "u1", time.Now().UTC().AddDate(0, 0, -3))
	require.NoError(t, err)
	for _, rec := range report.Recommendations {
		assert.NotContains(t, rec, "target")
	}
}

func TestBuildWeeklyReportEmptyWeek(t *testing.T) {
	c, _, _, _ := newTestCore(t)

	report, err := c.BuildWeeklyReport(context.Background(), "u1", time.Now().UTC().AddDate(0, 0, -3))
	require.NoError(t, err)
	assert.Equal(t, 0, report.TotalPosts)
	assert.Equal(t, 0.0, report.AvgEngagementRate)
	require.NotEmpty(t, report.Recommendations)
	assert.Contains(t, report.Recommendations[0], "No posts recorded")
}
