// Package learning implements the learning & metrics core: metric
// ingestion with server-side rate recomputation, rolling pattern
// aggregation, and the weekly report.
package learning

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
	"github.com/jrfdy6/aiclone-sub001/internal/pkg/distlock"
	"github.com/jrfdy6/aiclone-sub001/internal/providers"
	"github.com/jrfdy6/aiclone-sub001/internal/store"
)

// Publisher hands events to the activity bus.
type Publisher interface {
	Publish(ctx context.Context, e *domain.ActivityEvent)
}

// Archiver persists a rendered report outside the primary store. The S3
// implementation lives in s3.go; a nil archiver disables archiving.
type Archiver interface {
	Archive(ctx context.Context, key string, body []byte) error
}

// DefaultPatternWindow is the rolling aggregation window.
const DefaultPatternWindow = 30 * 24 * time.Hour

// Options tune the core.
type Options struct {
	PatternWindow time.Duration // default 30d
	// PacerMix is the target share of posts per pillar. Weekly reports
	// flag pillars running far under their share. Default domain.PACERMix.
	PacerMix map[domain.Pillar]float64
	Clock    providers.Clock
}

// Core aggregates metrics into learning patterns and reports.
type Core struct {
	gw       *store.Gateway
	locker   distlock.Locker
	archiver Archiver
	events   Publisher
	opts     Options
}

// New builds a Core. locker must be non-nil; archiver and events may be nil.
func New(gw *store.Gateway, locker distlock.Locker, archiver Archiver, events Publisher, opts Options) *Core {
	if opts.PatternWindow <= 0 {
		opts.PatternWindow = DefaultPatternWindow
	}
	if opts.PacerMix == nil {
		opts.PacerMix = domain.PACERMix
	}
	if opts.Clock == nil {
		opts.Clock = providers.RealClock{}
	}
	if locker == nil {
		locker = distlock.NewLocalLocker()
	}
	return &Core{gw: gw, locker: locker, archiver: archiver, events: events, opts: opts}
}

// IngestContentMetric persists a content metric. The engagement rate is
// always recomputed here; whatever the client sent is discarded.
func (c *Core) IngestContentMetric(ctx context.Context, m *domain.ContentMetric) (*domain.ContentMetric, error) {
	if m.UserID == "" || m.ContentID == "" {
		return nil, domain.E(domain.KindValidation, "metric_missing_ids", "user_id and content_id are required", nil)
	}
	if !m.Pillar.Valid() {
		return nil, domain.E(domain.KindValidation, "metric_bad_pillar", "unknown pillar "+string(m.Pillar), nil)
	}
	if m.MetricID == "" {
		m.MetricID = uuid.NewString()
	}
	m.EngagementRate = domain.ComputeEngagementRate(m.Metrics)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = c.opts.Clock.Now().UTC()
	}
	if err := c.gw.SaveContentMetric(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordEngagement is the hook the outreach engine calls after an
// engagement write commits. It refreshes the outreach-facing patterns.
func (c *Core) RecordEngagement(ctx context.Context, userID string, _ *domain.ProspectMetric) error {
	if err := c.UpdatePatterns(ctx, userID, domain.PatternOutreachSequence); err != nil {
		return err
	}
	return c.UpdatePatterns(ctx, userID, domain.PatternAudienceSegment)
}

func (c *Core) publish(ctx context.Context, userID, title string, metadata map[string]interface{}) {
	if c.events == nil {
		return
	}
	c.events.Publish(ctx, &domain.ActivityEvent{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      domain.ActivityAutomation,
		Title:     title,
		Message:   title,
		Metadata:  metadata,
		Timestamp: c.opts.Clock.Now().UTC(),
	})
}
