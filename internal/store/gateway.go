package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
)

// Collection names under users/{uid}/.
const (
	ColInsights        = "research_insights"
	ColProspects       = "prospects"
	ColSequences       = "outreach_sequences"
	ColDrafts          = "content_drafts"
	ColContentMetrics  = "content_metrics"
	ColProspectMetrics = "prospect_metrics"
	ColPatterns        = "learning_patterns"
	ColActivities      = "activities"
	ColWebhooks        = "webhooks"
	ColScheduledTopics = "scheduled_topics"
	ColWeeklyReports   = "weekly_reports"
)

// userRegistry is the cross-user collection the weekly cron enumerates.
const userRegistry = "user_registry"

// Gateway provides typed CRUD and query helpers over the document store.
// All methods are user-scoped; the gateway never crosses tenants except
// for the explicit user enumeration used by cron jobs.
type Gateway struct {
	s Store
}

// NewGateway wraps a Store.
func NewGateway(s Store) *Gateway { return &Gateway{s: s} }

// Raw exposes the underlying store for components that need Update CAS
// semantics directly.
func (g *Gateway) Raw() Store { return g.s }

func docPath(userID, collection, id string) string {
	return Path("users", userID, collection, id)
}

// EnsureUser records the user in the registry so cron jobs can enumerate
// tenants. Called on every write path; idempotent.
func (g *Gateway) EnsureUser(ctx context.Context, userID string) error {
	return g.s.Put(ctx, Path(userRegistry, userID), map[string]interface{}{
		"user_id":   userID,
		"last_seen": time.Now().UTC().Format(time.RFC3339),
	})
}

// ListUserIDs returns every registered user.
func (g *Gateway) ListUserIDs(ctx context.Context) ([]string, error) {
	raws, err := g.s.QueryDocs(ctx, userRegistry, Query{})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(raws))
	for _, raw := range raws {
		var doc struct {
			UserID string `json:"user_id"`
		}
		if err := json.Unmarshal(raw, &doc); err == nil && doc.UserID != "" {
			ids = append(ids, doc.UserID)
		}
	}
	return ids, nil
}

// ---- Insights ----

// SaveInsight persists the insight and registers the user.
func (g *Gateway) SaveInsight(ctx context.Context, in *domain.Insight) error {
	if err := g.EnsureUser(ctx, in.UserID); err != nil {
		return err
	}
	in.UpdatedAt = time.Now().UTC()
	return g.s.Put(ctx, docPath(in.UserID, ColInsights, in.InsightID), in)
}

// GetInsight fetches one insight by ID.
func (g *Gateway) GetInsight(ctx context.Context, userID, insightID string) (*domain.Insight, error) {
	var in domain.Insight
	if err := g.s.Get(ctx, docPath(userID, ColInsights, insightID), &in); err != nil {
		return nil, err
	}
	return &in, nil
}

// FindInsightByHash returns the insight with the given dedup hash and
// status, or nil when no cache hit exists.
func (g *Gateway) FindInsightByHash(ctx context.Context, userID, hash string, status domain.InsightStatus) (*domain.Insight, error) {
	raws, err := g.s.QueryDocs(ctx, UserCollection(userID, ColInsights), Query{
		Filters: []Filter{Eq("dedup_hash", hash), Eq("status", string(status))},
		Limit:   1,
	})
	if err != nil {
		return nil, err
	}
	if len(raws) == 0 {
		return nil, nil
	}
	var in domain.Insight
	if err := json.Unmarshal(raws[0], &in); err != nil {
		return nil, err
	}
	return &in, nil
}

// QueryInsights runs an arbitrary query over a user's insights.
func (g *Gateway) QueryInsights(ctx context.Context, userID string, q Query) ([]domain.Insight, error) {
	raws, err := g.s.QueryDocs(ctx, UserCollection(userID, ColInsights), q)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Insight, 0, len(raws))
	for _, raw := range raws {
		var in domain.Insight
		if err := json.Unmarshal(raw, &in); err != nil {
			continue
		}
		out = append(out, in)
	}
	return out, nil
}

// TransitionInsightStatus applies the monotonic status guard under a CAS
// update: ready_for_content_generation never reverts.
func (g *Gateway) TransitionInsightStatus(ctx context.Context, userID, insightID string, next domain.InsightStatus) error {
	return g.s.Update(ctx, docPath(userID, ColInsights, insightID), func(raw json.RawMessage) (interface{}, error) {
		if raw == nil {
			return nil, ErrNotFound
		}
		var in domain.Insight
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, err
		}
		if domain.StatusAdvances(in.Status, next) {
			in.Status = next
			in.UpdatedAt = time.Now().UTC()
		}
		return &in, nil
	})
}

// ---- Prospects ----

// SaveProspect persists a discovered prospect.
func (g *Gateway) SaveProspect(ctx context.Context, p *domain.DiscoveredProspect) error {
	if err := g.EnsureUser(ctx, p.UserID); err != nil {
		return err
	}
	p.UpdatedAt = time.Now().UTC()
	return g.s.Put(ctx, docPath(p.UserID, ColProspects, p.ProspectID), p)
}

// GetProspect fetches one prospect by ID.
func (g *Gateway) GetProspect(ctx context.Context, userID, prospectID string) (*domain.DiscoveredProspect, error) {
	var p domain.DiscoveredProspect
	if err := g.s.Get(ctx, docPath(userID, ColProspects, prospectID), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProspects queries a user's prospects.
func (g *Gateway) ListProspects(ctx context.Context, userID string, q Query) ([]domain.DiscoveredProspect, error) {
	raws, err := g.s.QueryDocs(ctx, UserCollection(userID, ColProspects), q)
	if err != nil {
		return nil, err
	}
	out := make([]domain.DiscoveredProspect, 0, len(raws))
	for _, raw := range raws {
		var p domain.DiscoveredProspect
		if err := json.Unmarshal(raw, &p); err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// UpdateProspect applies mutate to one prospect under CAS.
func (g *Gateway) UpdateProspect(ctx context.Context, userID, prospectID string, mutate func(*domain.DiscoveredProspect) error) error {
	return g.s.Update(ctx, docPath(userID, ColProspects, prospectID), func(raw json.RawMessage) (interface{}, error) {
		if raw == nil {
			return nil, ErrNotFound
		}
		var p domain.DiscoveredProspect
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		if err := mutate(&p); err != nil {
			return nil, err
		}
		p.UpdatedAt = time.Now().UTC()
		return &p, nil
	})
}

// ---- Sequences ----

// SaveSequence persists an outreach sequence.
func (g *Gateway) SaveSequence(ctx context.Context, seq *domain.OutreachSequence) error {
	seq.UpdatedAt = time.Now().UTC()
	return g.s.Put(ctx, docPath(seq.UserID, ColSequences, seq.SequenceID), seq)
}

// GetSequence fetches one sequence by ID.
func (g *Gateway) GetSequence(ctx context.Context, userID, sequenceID string) (*domain.OutreachSequence, error) {
	var seq domain.OutreachSequence
	if err := g.s.Get(ctx, docPath(userID, ColSequences, sequenceID), &seq); err != nil {
		return nil, err
	}
	return &seq, nil
}

// FindSequenceByProspect returns the newest sequence for a prospect, or nil.
func (g *Gateway) FindSequenceByProspect(ctx context.Context, userID, prospectID string) (*domain.OutreachSequence, error) {
	raws, err := g.s.QueryDocs(ctx, UserCollection(userID, ColSequences), Query{
		Filters: []Filter{Eq("prospect_id", prospectID)},
		OrderBy: "created_at",
		Desc:    true,
		Limit:   1,
	})
	if err != nil {
		return nil, err
	}
	if len(raws) == 0 {
		return nil, nil
	}
	var seq domain.OutreachSequence
	if err := json.Unmarshal(raws[0], &seq); err != nil {
		return nil, err
	}
	return &seq, nil
}

// UpdateSequence applies mutate to one sequence under CAS.
func (g *Gateway) UpdateSequence(ctx context.Context, userID, sequenceID string, mutate func(*domain.OutreachSequence) error) error {
	return g.s.Update(ctx, docPath(userID, ColSequences, sequenceID), func(raw json.RawMessage) (interface{}, error) {
		if raw == nil {
			return nil, ErrNotFound
		}
		var seq domain.OutreachSequence
		if err := json.Unmarshal(raw, &seq); err != nil {
			return nil, err
		}
		if err := mutate(&seq); err != nil {
			return nil, err
		}
		seq.UpdatedAt = time.Now().UTC()
		return &seq, nil
	})
}

// ---- Drafts ----

// SaveDraft persists a content draft.
func (g *Gateway) SaveDraft(ctx context.Context, d *domain.ContentDraft) error {
	d.UpdatedAt = time.Now().UTC()
	return g.s.Put(ctx, docPath(d.UserID, ColDrafts, d.DraftID), d)
}

// GetDraft fetches one draft by ID.
func (g *Gateway) GetDraft(ctx context.Context, userID, draftID string) (*domain.ContentDraft, error) {
	var d domain.ContentDraft
	if err := g.s.Get(ctx, docPath(userID, ColDrafts, draftID), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// ---- Metrics ----

// SaveContentMetric persists a content metric snapshot.
func (g *Gateway) SaveContentMetric(ctx context.Context, m *domain.ContentMetric) error {
	return g.s.Put(ctx, docPath(m.UserID, ColContentMetrics, m.MetricID), m)
}

// ListContentMetricsSince returns metrics created at or after since,
// newest first (the (content_id, created_at desc) index shape).
func (g *Gateway) ListContentMetricsSince(ctx context.Context, userID string, since time.Time) ([]domain.ContentMetric, error) {
	raws, err := g.s.QueryDocs(ctx, UserCollection(userID, ColContentMetrics), Query{
		Filters: []Filter{{Field: "created_at", Op: OpGte, Value: since.UTC().Format(time.RFC3339)}},
		OrderBy: "created_at",
		Desc:    true,
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.ContentMetric, 0, len(raws))
	for _, raw := range raws {
		var m domain.ContentMetric
		if err := json.Unmarshal(raw, &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// SaveProspectMetric persists a prospect metric document.
func (g *Gateway) SaveProspectMetric(ctx context.Context, m *domain.ProspectMetric) error {
	m.UpdatedAt = time.Now().UTC()
	return g.s.Put(ctx, docPath(m.UserID, ColProspectMetrics, m.MetricID), m)
}

// UpsertProspectMetric applies mutate to the metric document keyed by
// prospect+sequence, creating it when absent.
func (g *Gateway) UpsertProspectMetric(ctx context.Context, userID, prospectID, sequenceID string, mutate func(*domain.ProspectMetric) error) (*domain.ProspectMetric, error) {
	metricID := prospectID + ":" + sequenceID
	var result *domain.ProspectMetric
	err := g.s.Update(ctx, docPath(userID, ColProspectMetrics, metricID), func(raw json.RawMessage) (interface{}, error) {
		m := &domain.ProspectMetric{
			UserID:     userID,
			MetricID:   metricID,
			ProspectID: prospectID,
			SequenceID: sequenceID,
			CreatedAt:  time.Now().UTC(),
		}
		if raw != nil {
			if err := json.Unmarshal(raw, m); err != nil {
				return nil, err
			}
		}
		if err := mutate(m); err != nil {
			return nil, err
		}
		m.RecomputeRates()
		m.UpdatedAt = time.Now().UTC()
		result = m
		return m, nil
	})
	return result, err
}

// ListProspectMetricsSince returns prospect metrics updated at or after since.
func (g *Gateway) ListProspectMetricsSince(ctx context.Context, userID string, since time.Time) ([]domain.ProspectMetric, error) {
	raws, err := g.s.QueryDocs(ctx, UserCollection(userID, ColProspectMetrics), Query{
		Filters: []Filter{{Field: "updated_at", Op: OpGte, Value: since.UTC().Format(time.RFC3339)}},
		OrderBy: "updated_at",
		Desc:    true,
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.ProspectMetric, 0, len(raws))
	for _, raw := range raws {
		var m domain.ProspectMetric
		if err := json.Unmarshal(raw, &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// ---- Learning patterns ----

// PatternDocID derives the deterministic document ID for a pattern key, so
// identical updates land on the same document (idempotence).
func PatternDocID(t domain.PatternType, key string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '-'
		}
	}, key)
	return fmt.Sprintf("%s:%s", t, safe)
}

// UpsertPattern applies mutate to the pattern document under CAS.
func (g *Gateway) UpsertPattern(ctx context.Context, userID string, t domain.PatternType, key string, mutate func(*domain.LearningPattern) error) error {
	id := PatternDocID(t, key)
	return g.s.Update(ctx, docPath(userID, ColPatterns, id), func(raw json.RawMessage) (interface{}, error) {
		p := &domain.LearningPattern{
			UserID:        userID,
			PatternID:     id,
			PatternType:   t,
			PatternKey:    key,
			SuccessMetric: domain.SuccessMetricFor(t),
		}
		if raw != nil {
			if err := json.Unmarshal(raw, p); err != nil {
				return nil, err
			}
		}
		if err := mutate(p); err != nil {
			return nil, err
		}
		return p, nil
	})
}

// GetPattern fetches one pattern, or nil when absent.
func (g *Gateway) GetPattern(ctx context.Context, userID string, t domain.PatternType, key string) (*domain.LearningPattern, error) {
	var p domain.LearningPattern
	err := g.s.Get(ctx, docPath(userID, ColPatterns, PatternDocID(t, key)), &p)
	if err == ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPatterns returns a user's patterns, optionally filtered by type,
// best average first.
func (g *Gateway) ListPatterns(ctx context.Context, userID string, t domain.PatternType, limit int) ([]domain.LearningPattern, error) {
	q := Query{OrderBy: "average_performance", Desc: true, Limit: limit}
	if t != "" {
		q.Filters = []Filter{Eq("pattern_type", string(t))}
	}
	raws, err := g.s.QueryDocs(ctx, UserCollection(userID, ColPatterns), q)
	if err != nil {
		return nil, err
	}
	out := make([]domain.LearningPattern, 0, len(raws))
	for _, raw := range raws {
		var p domain.LearningPattern
		if err := json.Unmarshal(raw, &p); err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// ---- Activities ----

// AppendActivity persists an activity event to the user's feed.
func (g *Gateway) AppendActivity(ctx context.Context, e *domain.ActivityEvent) error {
	return g.s.Put(ctx, docPath(e.UserID, ColActivities, e.ID), e)
}

// ListActivities returns the newest events first ((user_id, timestamp desc)
// index shape).
func (g *Gateway) ListActivities(ctx context.Context, userID string, limit int) ([]domain.ActivityEvent, error) {
	raws, err := g.s.QueryDocs(ctx, UserCollection(userID, ColActivities), Query{
		OrderBy: "timestamp",
		Desc:    true,
		Limit:   limit,
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.ActivityEvent, 0, len(raws))
	for _, raw := range raws {
		var e domain.ActivityEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// MarkActivityRead flips the read flag on one event.
func (g *Gateway) MarkActivityRead(ctx context.Context, userID, activityID string) error {
	return g.s.Update(ctx, docPath(userID, ColActivities, activityID), func(raw json.RawMessage) (interface{}, error) {
		if raw == nil {
			return nil, ErrNotFound
		}
		var e domain.ActivityEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		e.Read = true
		return &e, nil
	})
}

// ---- Webhooks ----

// SaveWebhook persists a webhook config.
func (g *Gateway) SaveWebhook(ctx context.Context, w *domain.Webhook) error {
	w.UpdatedAt = time.Now().UTC()
	return g.s.Put(ctx, docPath(w.UserID, ColWebhooks, w.ID), w)
}

// GetWebhook fetches one webhook by ID.
func (g *Gateway) GetWebhook(ctx context.Context, userID, webhookID string) (*domain.Webhook, error) {
	var w domain.Webhook
	if err := g.s.Get(ctx, docPath(userID, ColWebhooks, webhookID), &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// ListWebhooks returns all webhook configs for a user.
func (g *Gateway) ListWebhooks(ctx context.Context, userID string) ([]domain.Webhook, error) {
	raws, err := g.s.QueryDocs(ctx, UserCollection(userID, ColWebhooks), Query{})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Webhook, 0, len(raws))
	for _, raw := range raws {
		var w domain.Webhook
		if err := json.Unmarshal(raw, &w); err != nil {
			continue
		}
		out = append(out, w)
	}
	return out, nil
}

// UpdateWebhook applies mutate to one webhook under CAS.
func (g *Gateway) UpdateWebhook(ctx context.Context, userID, webhookID string, mutate func(*domain.Webhook) error) error {
	return g.s.Update(ctx, docPath(userID, ColWebhooks, webhookID), func(raw json.RawMessage) (interface{}, error) {
		if raw == nil {
			return nil, ErrNotFound
		}
		var w domain.Webhook
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		if err := mutate(&w); err != nil {
			return nil, err
		}
		w.UpdatedAt = time.Now().UTC()
		return &w, nil
	})
}

// DeleteWebhook removes a webhook config.
func (g *Gateway) DeleteWebhook(ctx context.Context, userID, webhookID string) error {
	return g.s.Delete(ctx, docPath(userID, ColWebhooks, webhookID))
}

// ---- Scheduled topics ----

// SavePlan persists a scheduled-topic plan.
func (g *Gateway) SavePlan(ctx context.Context, p *domain.ScheduledTopicPlan) error {
	return g.s.Put(ctx, docPath(p.UserID, ColScheduledTopics, p.PlanID), p)
}

// ListPlans returns a user's plans, optionally filtered by frequency.
func (g *Gateway) ListPlans(ctx context.Context, userID string, freq domain.ScheduleFrequency) ([]domain.ScheduledTopicPlan, error) {
	q := Query{}
	if freq != "" {
		q.Filters = []Filter{Eq("frequency", string(freq))}
	}
	raws, err := g.s.QueryDocs(ctx, UserCollection(userID, ColScheduledTopics), q)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ScheduledTopicPlan, 0, len(raws))
	for _, raw := range raws {
		var p domain.ScheduledTopicPlan
		if err := json.Unmarshal(raw, &p); err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// TouchPlan records a completed run.
func (g *Gateway) TouchPlan(ctx context.Context, userID, planID string, ranAt time.Time) error {
	return g.s.Update(ctx, docPath(userID, ColScheduledTopics, planID), func(raw json.RawMessage) (interface{}, error) {
		if raw == nil {
			return nil, ErrNotFound
		}
		var p domain.ScheduledTopicPlan
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		p.LastRunAt = ranAt
		return &p, nil
	})
}

// ---- Weekly reports ----

// SaveWeeklyReport persists a generated report.
func (g *Gateway) SaveWeeklyReport(ctx context.Context, r *domain.WeeklyReport) error {
	return g.s.Put(ctx, docPath(r.UserID, ColWeeklyReports, r.ReportID), r)
}

// LastReportTime returns the newest report's generation time, zero when the
// user has none.
func (g *Gateway) LastReportTime(ctx context.Context, userID string) (time.Time, error) {
	raws, err := g.s.QueryDocs(ctx, UserCollection(userID, ColWeeklyReports), Query{
		OrderBy: "generated_at",
		Desc:    true,
		Limit:   1,
	})
	if err != nil || len(raws) == 0 {
		return time.Time{}, err
	}
	var r domain.WeeklyReport
	if err := json.Unmarshal(raws[0], &r); err != nil {
		return time.Time{}, err
	}
	return r.GeneratedAt, nil
}
