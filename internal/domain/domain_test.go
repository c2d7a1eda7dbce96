package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeEngagementRate(t *testing.T) {
	tests := []struct {
		name   string
		counts EngagementCounts
		want   float64
	}{
		{
			name:   "standard post",
			counts: EngagementCounts{Likes: 45, Comments: 12, Shares: 8, Impressions: 500},
			want:   13.00,
		},
		{
			name:   "zero impressions",
			counts: EngagementCounts{Likes: 45, Comments: 12, Shares: 8, Impressions: 0},
			want:   0,
		},
		{
			name:   "rounding to two decimals",
			counts: EngagementCounts{Likes: 1, Comments: 0, Shares: 0, Impressions: 3},
			want:   33.33,
		},
		{
			name:   "no engagement",
			counts: EngagementCounts{Impressions: 1000},
			want:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeEngagementRate(tt.counts))
		})
	}
}

func TestProspectMetricRates(t *testing.T) {
	m := &ProspectMetric{}
	m.RecomputeRates()
	assert.Zero(t, m.ReplyRate, "no DMs sent means zero reply rate")
	assert.Zero(t, m.MeetingRate)

	now := time.Now()
	m.DMsSent = []DMRecord{
		{MessageID: "m1", SentAt: now, ResponseType: ResponsePositive},
		{MessageID: "m2", SentAt: now, ResponseType: ResponseNegative},
		{MessageID: "m3", SentAt: now},
		{MessageID: "m4", SentAt: now, ResponseType: ResponsePositive},
	}
	m.MeetingsBooked = []MeetingRecord{{BookedAt: now}}
	m.RecomputeRates()
	assert.Equal(t, 50.0, m.ReplyRate)
	assert.Equal(t, 25.0, m.MeetingRate)
}

func TestDedupHashStability(t *testing.T) {
	h1 := DedupHash("AI in K-12 Education", PillarThoughtLeadership)
	h2 := DedupHash("  ai in k-12   education ", PillarThoughtLeadership)
	h3 := DedupHash("AI in K-12 Education", PillarReferral)

	assert.Equal(t, h1, h2, "hash must be stable over normalization")
	assert.NotEqual(t, h1, h3, "pillar participates in the hash")
}

func TestAudiencesFor(t *testing.T) {
	aud := AudiencesFor(PillarThoughtLeadership)
	require.Equal(t, []string{"edtech_business_leaders", "ai_savvy_executives", "educators"}, aud)

	// Returned slice is a copy; mutating it must not poison the map.
	aud[0] = "mutated"
	assert.Equal(t, "edtech_business_leaders", AudienceMap[PillarThoughtLeadership][0])
}

func TestSequenceStepNames(t *testing.T) {
	assert.Len(t, SequenceThreeStep.StepNames(), 3)
	assert.Len(t, SequenceFiveStep.StepNames(), 5)
	assert.Len(t, SequenceSevenStep.StepNames(), 7)
	assert.Equal(t, "connection_request", SequenceSevenStep.StepNames()[0])
	assert.Equal(t, "initial_dm", SequenceSevenStep.StepNames()[1])
	assert.Nil(t, SequenceType("bogus").StepNames())
}

func TestStatusMonotonicGuard(t *testing.T) {
	assert.True(t, StatusAdvances(InsightCollecting, InsightProcessing))
	assert.True(t, StatusAdvances(InsightProcessing, InsightReady))
	assert.False(t, StatusAdvances(InsightReady, InsightCollecting))
	assert.False(t, StatusAdvances(InsightReady, InsightProcessing))
	assert.True(t, StatusAdvances(InsightReady, InsightReady))
}

func TestStepStatusAdvances(t *testing.T) {
	assert.True(t, StepStatusAdvances(StepNotSent, StepSent))
	assert.True(t, StepStatusAdvances(StepSent, StepDelivered))
	assert.True(t, StepStatusAdvances(StepOpened, StepReplied))
	assert.False(t, StepStatusAdvances(StepReplied, StepSent))
	assert.False(t, StepStatusAdvances(StepSent, StepSent))
}

func TestScheduledPlanDue(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	p := &ScheduledTopicPlan{Frequency: FrequencyDaily}
	assert.True(t, p.Due(now), "never-run plans are due immediately")

	p.LastRunAt = now.Add(-25 * time.Hour)
	assert.True(t, p.Due(now))

	p.LastRunAt = now.Add(-1 * time.Hour)
	assert.False(t, p.Due(now))

	p.Frequency = FrequencyWeekly
	p.LastRunAt = now.Add(-6 * 24 * time.Hour)
	assert.False(t, p.Due(now))
	p.LastRunAt = now.Add(-8 * 24 * time.Hour)
	assert.True(t, p.Due(now))
}

func TestErrorKinds(t *testing.T) {
	base := E(KindQuota, "search_quota_exhausted", "daily quota used up", nil)
	wrapped := E(KindTransient, "fetch_failed", "fetch failed", base)

	assert.Equal(t, KindTransient, KindOf(wrapped))
	assert.Equal(t, "fetch_failed", CodeOf(wrapped))
	assert.True(t, Retryable(wrapped))
	assert.False(t, Retryable(base))
	assert.Equal(t, "quota", KindQuota.String())
}

func TestWebhookSubscribed(t *testing.T) {
	w := &Webhook{EventTypes: []ActivityType{ActivityProspect, ActivityResearch}}
	assert.True(t, w.Subscribed(ActivityProspect))
	assert.False(t, w.Subscribed(ActivityContent))

	// Empty subscription list means all events.
	all := &Webhook{}
	assert.True(t, all.Subscribed(ActivityError))
}

func TestPriorityScore(t *testing.T) {
	p := &DiscoveredProspect{Scores: ProspectScores{Fit: 80, ReferralCapacity: 60, SignalStrength: 40}}
	assert.InDelta(t, 0.5*80+0.3*60+0.2*40, p.PriorityScore(), 1e-9)
}
