// Package outreach implements the outreach engine: segmentation,
// prioritization, sequence generation, weekly cadence slotting, and
// engagement tracking.
package outreach

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
	"github.com/jrfdy6/aiclone-sub001/internal/providers"
	"github.com/jrfdy6/aiclone-sub001/internal/store"
)

// Publisher hands events to the activity bus.
type Publisher interface {
	Publish(ctx context.Context, e *domain.ActivityEvent)
}

// Learner receives engagement updates for pattern aggregation. A failed
// learning update never fails the engagement write.
type Learner interface {
	RecordEngagement(ctx context.Context, userID string, m *domain.ProspectMetric) error
}

// Options tune the engine.
type Options struct {
	StealthRatio     float64 // default 0.05
	MinPriorityScore float64
	VariantsPerStep  int // default 2, clamped 2..3
	Clock            providers.Clock
}

// Engine drives prospects through segmented → prioritized →
// sequence_built → cadence_scheduled → tracked.
type Engine struct {
	gw      *store.Gateway
	events  Publisher
	learner Learner
	opts    Options
}

// New builds an Engine. learner may be nil.
func New(gw *store.Gateway, events Publisher, learner Learner, opts Options) *Engine {
	if opts.StealthRatio <= 0 {
		opts.StealthRatio = domain.DefaultSegmentDistribution[domain.SegmentStealthFounder]
	}
	if opts.VariantsPerStep == 0 {
		opts.VariantsPerStep = 2
	}
	if opts.Clock == nil {
		opts.Clock = providers.RealClock{}
	}
	return &Engine{gw: gw, events: events, learner: learner, opts: opts}
}

// SegmentProspects assigns segments to all of a user's approved prospects,
// persists the assignments, and returns the per-segment grouping.
func (e *Engine) SegmentProspects(ctx context.Context, userID string) (map[domain.Segment][]domain.DiscoveredProspect, error) {
	prospects, err := e.gw.ListProspects(ctx, userID, store.Query{})
	if err != nil {
		return nil, err
	}
	approved := prospects[:0]
	for _, p := range prospects {
		if p.ApprovalStatus == domain.ApprovalApproved {
			approved = append(approved, p)
		}
	}

	grouped := FitSegments(approved, e.opts.StealthRatio)
	for seg, members := range grouped {
		for _, p := range members {
			seg := seg
			if err := e.gw.UpdateProspect(ctx, userID, p.ProspectID, func(stored *domain.DiscoveredProspect) error {
				stored.Segment = seg
				return nil
			}); err != nil {
				return nil, err
			}
		}
	}

	e.publish(ctx, userID, "Prospects segmented", map[string]interface{}{
		"referral_network":   len(grouped[domain.SegmentReferralNetwork]),
		"thought_leadership": len(grouped[domain.SegmentThoughtLeadership]),
		"stealth_founder":    len(grouped[domain.SegmentStealthFounder]),
	})
	return grouped, nil
}

// PrioritizeProspects returns the user's approved prospects that clear the
// configured minimum priority score, best first.
func (e *Engine) PrioritizeProspects(ctx context.Context, userID string) ([]domain.DiscoveredProspect, error) {
	prospects, err := e.gw.ListProspects(ctx, userID, store.Query{})
	if err != nil {
		return nil, err
	}
	approved := prospects[:0]
	for _, p := range prospects {
		if p.ApprovalStatus == domain.ApprovalApproved {
			approved = append(approved, p)
		}
	}
	return Prioritize(approved, e.opts.MinPriorityScore), nil
}

// BuildSequence generates and persists an outreach sequence for one
// prospect. An existing sequence for the prospect is replaced only by a
// new sequence ID; prior sequences stay queryable.
func (e *Engine) BuildSequence(ctx context.Context, userID, prospectID string, seqType domain.SequenceType) (*domain.OutreachSequence, error) {
	p, err := e.gw.GetProspect(ctx, userID, prospectID)
	if err != nil {
		return nil, err
	}
	seq, err := GenerateSequence(p, seqType, e.opts.VariantsPerStep, e.opts.Clock.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := e.gw.SaveSequence(ctx, seq); err != nil {
		return nil, err
	}
	if !p.Segment.Valid() {
		// Sequence generation derived the segment; persist it.
		_ = e.gw.UpdateProspect(ctx, userID, prospectID, func(stored *domain.DiscoveredProspect) error {
			stored.Segment = seq.Segment
			return nil
		})
	}
	e.publish(ctx, userID, "Outreach sequence generated", map[string]interface{}{
		"prospect_id":   prospectID,
		"sequence_id":   seq.SequenceID,
		"sequence_type": string(seqType),
		"segment":       string(seq.Segment),
		"steps":         len(seq.Steps),
	})
	return seq, nil
}

// PlanWeek builds the deterministic weekly cadence for the user's
// prioritized prospects.
func (e *Engine) PlanWeek(ctx context.Context, userID string, weekStart time.Time, targets CadenceTargets) (*domain.WeeklyCadence, error) {
	prospects, err := e.PrioritizeProspects(ctx, userID)
	if err != nil {
		return nil, err
	}

	currentSteps := map[string]int{}
	for _, p := range prospects {
		seq, err := e.gw.FindSequenceByProspect(ctx, userID, p.ProspectID)
		if err != nil || seq == nil {
			continue
		}
		currentSteps[p.ProspectID] = seq.CurrentStep
	}

	cadence := BuildWeeklyCadence(userID, weekStart, prospects, targets, currentSteps, e.opts.VariantsPerStep)
	e.publish(ctx, userID, "Weekly cadence planned", map[string]interface{}{
		"week_start":          weekStart.UTC().Format("2006-01-02"),
		"connection_requests": cadence.ConnectionRequests,
		"followups":           cadence.Followups,
		"entries":             len(cadence.Entries),
	})
	return cadence, nil
}

func (e *Engine) publish(ctx context.Context, userID, title string, metadata map[string]interface{}) {
	if e.events == nil {
		return
	}
	e.events.Publish(ctx, &domain.ActivityEvent{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      domain.ActivityOutreach,
		Title:     title,
		Message:   title,
		Metadata:  metadata,
		Timestamp: e.opts.Clock.Now().UTC(),
	})
}
