package domain

import "time"

// PatternType dispatches learning-pattern aggregation.
type PatternType string

const (
	PatternContentPillar    PatternType = "content_pillar"
	PatternHashtag          PatternType = "hashtag"
	PatternTopic            PatternType = "topic"
	PatternOutreachSequence PatternType = "outreach_sequence"
	PatternAudienceSegment  PatternType = "audience_segment"
)

// PatternTypes lists all pattern types in canonical order.
var PatternTypes = []PatternType{
	PatternContentPillar,
	PatternHashtag,
	PatternTopic,
	PatternOutreachSequence,
	PatternAudienceSegment,
}

// Valid reports whether t is a known pattern type.
func (t PatternType) Valid() bool {
	for _, pt := range PatternTypes {
		if t == pt {
			return true
		}
	}
	return false
}

// SuccessMetric names the metric a pattern optimizes for.
type SuccessMetric string

const (
	MetricEngagementRate SuccessMetric = "engagement_rate"
	MetricReplyRate      SuccessMetric = "reply_rate"
	MetricMeetingRate    SuccessMetric = "meeting_rate"
)

// SuccessMetricFor maps a pattern type to the metric it tracks.
func SuccessMetricFor(t PatternType) SuccessMetric {
	switch t {
	case PatternOutreachSequence:
		return MetricReplyRate
	case PatternAudienceSegment:
		return MetricMeetingRate
	default:
		return MetricEngagementRate
	}
}

// PatternHistoryLimit bounds performance_history, recent-last.
const PatternHistoryLimit = 12

// LearningPattern is a per-user rolling performance record keyed by
// (pattern_type, pattern_key). sample_size is always ≥ 1 once persisted.
type LearningPattern struct {
	UserID                 string        `json:"user_id"`
	PatternID              string        `json:"pattern_id"`
	PatternType            PatternType   `json:"pattern_type"`
	PatternKey             string        `json:"pattern_key"`
	SuccessMetric          SuccessMetric `json:"success_metric"`
	AveragePerformance     float64       `json:"average_performance"`
	BestPerformanceVariant string        `json:"best_performance_variant"`
	SampleSize             int           `json:"sample_size"`
	PerformanceHistory     []float64     `json:"performance_history"`
	LastUpdated            time.Time     `json:"last_updated"`
}

// AppendHistory pushes v onto the bounded history, keeping the most recent
// PatternHistoryLimit values.
func (p *LearningPattern) AppendHistory(v float64) {
	p.PerformanceHistory = append(p.PerformanceHistory, v)
	if n := len(p.PerformanceHistory); n > PatternHistoryLimit {
		p.PerformanceHistory = p.PerformanceHistory[n-PatternHistoryLimit:]
	}
}

// WeeklyReport is the templated weekly summary produced by the learning core.
type WeeklyReport struct {
	UserID            string             `json:"user_id"`
	ReportID          string             `json:"report_id"`
	WeekStart         time.Time          `json:"week_start"`
	WeekEnd           time.Time          `json:"week_end"`
	TotalPosts        int                `json:"total_posts"`
	AvgEngagementRate float64            `json:"avg_engagement_rate"`
	BestPillar        Pillar             `json:"best_pillar,omitempty"`
	TopHashtags       []string           `json:"top_hashtags"`
	TopSegments       []string           `json:"top_audience_segments"`
	Outreach          OutreachSummary    `json:"outreach_summary"`
	Recommendations   []string           `json:"recommendations"`
	PillarAverages    map[Pillar]float64 `json:"pillar_averages"`
	GeneratedAt       time.Time          `json:"generated_at"`
}

// OutreachSummary aggregates outreach outcomes for a report window.
type OutreachSummary struct {
	ConnectionRequestsSent int     `json:"connection_requests_sent"`
	ConnectionsAccepted    int     `json:"connections_accepted"`
	ConnectionAcceptRate   float64 `json:"connection_accept_rate"`
	DMsSent                int     `json:"dms_sent"`
	DMReplyRate            float64 `json:"dm_reply_rate"`
	MeetingsBooked         int     `json:"meetings_booked"`
}
