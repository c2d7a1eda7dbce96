package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// InsightStatus tracks an insight through the research pipeline.
type InsightStatus string

const (
	InsightCollecting InsightStatus = "collecting"
	InsightProcessing InsightStatus = "processing"
	InsightReady      InsightStatus = "ready_for_content_generation"
	InsightFailed     InsightStatus = "failed"
)

// statusRank orders statuses for the monotonic guard: ready can never
// revert to collecting/processing via a concurrent late write.
var statusRank = map[InsightStatus]int{
	InsightCollecting: 1,
	InsightProcessing: 2,
	InsightFailed:     3,
	InsightReady:      4,
}

// StatusAdvances reports whether a transition from to next is allowed under
// the monotonic status guard.
func StatusAdvances(from, next InsightStatus) bool {
	return statusRank[next] >= statusRank[from]
}

// ResearchSource is one provider's contribution to an insight.
type ResearchSource struct {
	Type        string    `json:"type"` // perplexity, firecrawl, google, newsfeed
	URL         string    `json:"url,omitempty"`
	Summary     string    `json:"summary"`
	KeyPoints   []string  `json:"key_points"`
	CollectedAt time.Time `json:"collected_at"`
}

// ProspectTarget is a candidate person surfaced during research, scored for
// pillar relevance. Targets feed discovery, they are not saved prospects.
type ProspectTarget struct {
	Name            string   `json:"name"`
	Role            string   `json:"role"`
	Organization    string   `json:"organization"`
	URL             string   `json:"url,omitempty"`
	PillarRelevance []Pillar `json:"pillar_relevance"`
	RelevanceScore  float64  `json:"relevance_score"` // [0,1]
}

// EngagementSignals are coarse research-time scores carried on the insight.
type EngagementSignals struct {
	RelevanceScore float64 `json:"relevance_score"`
	TrendScore     float64 `json:"trend_score"`
	UrgencyScore   float64 `json:"urgency_score"`
}

// Insight is a durable, normalized unit of research for one user.
type Insight struct {
	UserID    string        `json:"user_id"`
	InsightID string        `json:"insight_id"`
	Topic     string        `json:"topic"`
	Pillar    Pillar        `json:"pillar"`
	Audiences []string      `json:"audiences"` // always AudienceMap[Pillar]
	Tags      []string      `json:"tags"`
	Status    InsightStatus `json:"status"`
	DedupHash string        `json:"dedup_hash"`

	KeyPoints         []string          `json:"key_points"`
	Sources           []ResearchSource  `json:"sources"`
	ProspectTargets   []ProspectTarget  `json:"prospect_targets"`
	EngagementSignals EngagementSignals `json:"engagement_signals"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NormalizeTopic lowercases and collapses whitespace so equivalent topic
// strings hash identically.
func NormalizeTopic(topic string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(topic))), " ")
}

// DedupHash computes the stable per-user research cache key over the
// normalized topic and pillar.
func DedupHash(topic string, pillar Pillar) string {
	h := sha256.Sum256([]byte(NormalizeTopic(topic) + "\x00" + string(pillar)))
	return hex.EncodeToString(h[:16])
}
