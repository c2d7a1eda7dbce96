package domain

import (
	"math"
	"time"
)

// EngagementCounts are the raw engagement numbers for a content post.
type EngagementCounts struct {
	Likes        int            `json:"likes"`
	Comments     int            `json:"comments"`
	Shares       int            `json:"shares"`
	Reactions    map[string]int `json:"reactions,omitempty"`
	Impressions  int            `json:"impressions"`
	ProfileViews int            `json:"profile_views"`
	Clicks       int            `json:"clicks"`
}

// ContentMetric is one post's performance snapshot. EngagementRate is
// always recomputed server-side; client-provided values are ignored.
type ContentMetric struct {
	UserID          string           `json:"user_id"`
	MetricID        string           `json:"metric_id"`
	ContentID       string           `json:"content_id"`
	Pillar          Pillar           `json:"pillar"`
	Platform        string           `json:"platform"`
	PostType        string           `json:"post_type"`
	Metrics         EngagementCounts `json:"metrics"`
	EngagementRate  float64          `json:"engagement_rate"` // derived
	TopHashtags     []string         `json:"top_hashtags"`
	AudienceSegment []string         `json:"audience_segment"`
	CreatedAt       time.Time        `json:"created_at"`
}

// ComputeEngagementRate applies the canonical formula:
// (likes+comments+shares)/impressions·100, rounded to 2 decimals,
// 0 when impressions is 0.
func ComputeEngagementRate(c EngagementCounts) float64 {
	if c.Impressions <= 0 {
		return 0
	}
	rate := float64(c.Likes+c.Comments+c.Shares) / float64(c.Impressions) * 100
	return math.Round(rate*100) / 100
}

// ResponseType classifies a prospect's reply. Classification is taken as
// provided by the caller; the core does not judge sentiment.
type ResponseType string

const (
	ResponsePositive ResponseType = "positive"
	ResponseNeutral  ResponseType = "neutral"
	ResponseNegative ResponseType = "negative"
)

// DMRecord is one direct message sent to a prospect.
type DMRecord struct {
	MessageID          string       `json:"message_id"`
	SentAt             time.Time    `json:"sent_at"`
	ResponseReceivedAt *time.Time   `json:"response_received_at,omitempty"`
	ResponseType       ResponseType `json:"response_type,omitempty"`
}

// MeetingRecord is one booked meeting attributed to a sequence.
type MeetingRecord struct {
	BookedAt time.Time `json:"booked_at"`
	Source   string    `json:"source,omitempty"`
}

// ProspectMetric tracks outreach outcomes for one prospect/sequence pair.
type ProspectMetric struct {
	UserID                string          `json:"user_id"`
	MetricID              string          `json:"metric_id"`
	ProspectID            string          `json:"prospect_id"`
	SequenceID            string          `json:"sequence_id"`
	ConnectionRequestSent bool            `json:"connection_request_sent"`
	ConnectionAccepted    bool            `json:"connection_accepted"`
	DMsSent               []DMRecord      `json:"dm_sent"`
	MeetingsBooked        []MeetingRecord `json:"meetings_booked"`
	ReplyRate             float64         `json:"reply_rate"`   // derived
	MeetingRate           float64         `json:"meeting_rate"` // derived
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// RecomputeRates refreshes the derived reply and meeting rates, clamped to
// [0,100] and 0 when no DMs were sent.
func (m *ProspectMetric) RecomputeRates() {
	dms := len(m.DMsSent)
	if dms == 0 {
		m.ReplyRate = 0
		m.MeetingRate = 0
		return
	}
	positive := 0
	for _, dm := range m.DMsSent {
		if dm.ResponseType == ResponsePositive {
			positive++
		}
	}
	m.ReplyRate = clampRate(float64(positive) / float64(dms) * 100)
	m.MeetingRate = clampRate(float64(len(m.MeetingsBooked)) / float64(dms) * 100)
}

func clampRate(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return math.Round(v*100) / 100
}
