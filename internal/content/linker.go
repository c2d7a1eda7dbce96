// Package content creates content drafts and auto-links them to the
// research insights that informed them.
package content

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
	"github.com/jrfdy6/aiclone-sub001/internal/providers"
	"github.com/jrfdy6/aiclone-sub001/internal/store"
)

// Publisher hands events to the activity bus.
type Publisher interface {
	Publish(ctx context.Context, e *domain.ActivityEvent)
}

// MaxLinkedInsights caps auto-discovered research links per draft.
const MaxLinkedInsights = 3

// DraftRequest describes one draft to create.
type DraftRequest struct {
	Pillar            domain.Pillar `json:"pillar"`
	Topic             string        `json:"topic"`
	TemplateID        string        `json:"template_id,omitempty"`
	Content           string        `json:"content"`
	SuggestedHashtags []string      `json:"suggested_hashtags,omitempty"`
	EngagementHook    string        `json:"engagement_hook,omitempty"`
	// LinkedResearchIDs overrides auto-discovery when non-empty.
	LinkedResearchIDs []string `json:"linked_research_ids,omitempty"`
}

// Linker builds drafts with their research links.
type Linker struct {
	gw     *store.Gateway
	events Publisher
	clock  providers.Clock
}

// New builds a Linker. events may be nil.
func New(gw *store.Gateway, events Publisher, clock providers.Clock) *Linker {
	if clock == nil {
		clock = providers.RealClock{}
	}
	return &Linker{gw: gw, events: events, clock: clock}
}

// CreateDraft persists a draft. Research links come from the request when
// provided, otherwise from auto-discovery over ready insights.
func (l *Linker) CreateDraft(ctx context.Context, userID string, req DraftRequest) (*domain.ContentDraft, error) {
	if !req.Pillar.Valid() {
		return nil, domain.E(domain.KindValidation, "draft_bad_pillar", "unknown pillar "+string(req.Pillar), nil)
	}

	linked := req.LinkedResearchIDs
	if len(linked) > 0 {
		// Explicit links must reference ready insights the user owns.
		for _, id := range linked {
			in, err := l.gw.GetInsight(ctx, userID, id)
			if errors.Is(err, store.ErrNotFound) {
				return nil, domain.E(domain.KindValidation, "draft_unknown_research",
					"linked research "+id+" not found", nil)
			}
			if err != nil {
				return nil, err
			}
			if in.Status != domain.InsightReady {
				return nil, domain.E(domain.KindValidation, "draft_research_not_ready",
					"linked research "+id+" has status "+string(in.Status), nil)
			}
		}
	} else {
		found, err := l.DiscoverInsights(ctx, userID, req.Pillar, req.Topic)
		if err != nil {
			return nil, err
		}
		for _, in := range found {
			linked = append(linked, in.InsightID)
		}
	}

	now := l.clock.Now().UTC()
	draft := &domain.ContentDraft{
		UserID:            userID,
		DraftID:           uuid.NewString(),
		Pillar:            req.Pillar,
		Topic:             req.Topic,
		TemplateID:        req.TemplateID,
		Content:           req.Content,
		SuggestedHashtags: req.SuggestedHashtags,
		EngagementHook:    req.EngagementHook,
		Status:            domain.DraftStatusDraft,
		LinkedResearchIDs: linked,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := l.gw.SaveDraft(ctx, draft); err != nil {
		return nil, err
	}

	if l.events != nil {
		l.events.Publish(ctx, &domain.ActivityEvent{
			ID:      uuid.NewString(),
			UserID:  userID,
			Type:    domain.ActivityContent,
			Title:   "Content draft created",
			Message: "Draft created for " + string(req.Pillar),
			Metadata: map[string]interface{}{
				"draft_id":        draft.DraftID,
				"pillar":          string(req.Pillar),
				"linked_research": len(linked),
			},
			Timestamp: now,
		})
	}
	return draft, nil
}

// DiscoverInsights returns up to MaxLinkedInsights ready insights for the
// pillar whose tags intersect the topic's keywords, best relevance first.
// With no topic, pillar match alone qualifies.
func (l *Linker) DiscoverInsights(ctx context.Context, userID string, pillar domain.Pillar, topic string) ([]domain.Insight, error) {
	insights, err := l.gw.QueryInsights(ctx, userID, store.Query{
		Filters: []store.Filter{
			store.Eq("pillar", string(pillar)),
			store.Eq("status", string(domain.InsightReady)),
		},
	})
	if err != nil {
		return nil, err
	}

	keywords := topicKeywords(topic)
	matched := insights[:0]
	for _, in := range insights {
		if len(keywords) == 0 || tagsIntersect(in.Tags, keywords) {
			matched = append(matched, in)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		ri, rj := matched[i].EngagementSignals.RelevanceScore, matched[j].EngagementSignals.RelevanceScore
		if ri != rj {
			return ri > rj
		}
		return matched[i].InsightID < matched[j].InsightID
	})
	if len(matched) > MaxLinkedInsights {
		matched = matched[:MaxLinkedInsights]
	}
	return matched, nil
}

// stopWords are skipped when splitting a topic into match keywords.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "in": true, "for": true,
	"and": true, "or": true, "to": true, "on": true, "with": true, "how": true,
}

func topicKeywords(topic string) map[string]bool {
	out := map[string]bool{}
	for _, word := range strings.Fields(strings.ToLower(topic)) {
		word = strings.Trim(word, ".,;:!?\"'")
		if len(word) < 3 || stopWords[word] {
			continue
		}
		out[word] = true
	}
	return out
}

func tagsIntersect(tags []string, keywords map[string]bool) bool {
	for _, tag := range tags {
		for _, part := range strings.Fields(strings.ToLower(tag)) {
			if keywords[part] {
				return true
			}
		}
	}
	return false
}
