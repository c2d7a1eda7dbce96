package learning

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
	"github.com/jrfdy6/aiclone-sub001/internal/pkg/logger"
)

type sample struct {
	value   float64
	variant string
}

type sampleGroups map[domain.PatternType]map[string][]sample

func (g sampleGroups) add(t domain.PatternType, key string, s sample) {
	if key == "" {
		return
	}
	if g[t] == nil {
		g[t] = map[string][]sample{}
	}
	g[t][key] = append(g[t][key], s)
}

// UpdatePatterns rescans the rolling window and upserts every pattern of
// the given type (all types when only is empty). Updates are idempotent:
// rerunning over identical inputs leaves the documents unchanged. Writes
// for one (pattern_type, pattern_key) are serialized across processes via
// the locker.
func (c *Core) UpdatePatterns(ctx context.Context, userID string, only domain.PatternType) error {
	if only != "" && !only.Valid() {
		return domain.E(domain.KindValidation, "patterns_bad_type", "unknown pattern type "+string(only), nil)
	}
	since := c.opts.Clock.Now().UTC().Add(-c.opts.PatternWindow)

	groups, err := c.collect(ctx, userID, since)
	if err != nil {
		return err
	}

	updated := 0
	for _, t := range domain.PatternTypes {
		if only != "" && t != only {
			continue
		}
		keys := make([]string, 0, len(groups[t]))
		for k := range groups[t] {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, key := range keys {
			if err := c.upsertPattern(ctx, userID, t, key, groups[t][key]); err != nil {
				return err
			}
			updated++
		}
	}

	if updated > 0 {
		c.publish(ctx, userID, "Learning patterns updated", map[string]interface{}{
			"patterns": updated,
			"window":   c.opts.PatternWindow.String(),
		})
	}
	return nil
}

// collect loads the window's metrics and groups them by pattern key.
func (c *Core) collect(ctx context.Context, userID string, since time.Time) (sampleGroups, error) {
	groups := sampleGroups{}

	contentMetrics, err := c.gw.ListContentMetricsSince(ctx, userID, since)
	if err != nil {
		return nil, err
	}
	for _, m := range contentMetrics {
		groups.add(domain.PatternContentPillar, string(m.Pillar), sample{m.EngagementRate, m.ContentID})
		for _, tag := range m.TopHashtags {
			groups.add(domain.PatternHashtag, tag, sample{m.EngagementRate, m.ContentID})
		}
		// Topic patterns hang off the draft the metric refers to.
		if draft, err := c.gw.GetDraft(ctx, userID, m.ContentID); err == nil && draft.Topic != "" {
			groups.add(domain.PatternTopic, draft.Topic, sample{m.EngagementRate, m.ContentID})
		}
	}

	prospectMetrics, err := c.gw.ListProspectMetricsSince(ctx, userID, since)
	if err != nil {
		return nil, err
	}
	for _, m := range prospectMetrics {
		groups.add(domain.PatternOutreachSequence, m.SequenceID, sample{m.ReplyRate, m.MetricID})
		if p, err := c.gw.GetProspect(ctx, userID, m.ProspectID); err == nil && p.Segment.Valid() {
			groups.add(domain.PatternAudienceSegment, string(p.Segment), sample{m.MeetingRate, m.ProspectID})
		}
	}
	return groups, nil
}

func (c *Core) upsertPattern(ctx context.Context, userID string, t domain.PatternType, key string, samples []sample) error {
	lockKey := fmt.Sprintf("patterns:%s:%s:%s", userID, t, key)
	lock := c.locker.For(lockKey, 30*time.Second)
	acquired := false
	for attempt := 0; attempt < 3; attempt++ {
		ok, err := lock.Acquire(ctx)
		if err != nil {
			return domain.E(domain.KindUnavailable, "patterns_lock_failed", "acquiring "+lockKey, err)
		}
		if ok {
			acquired = true
			break
		}
		c.opts.Clock.Sleep(50 * time.Millisecond)
	}
	if !acquired {
		// Another worker holds the lock; its rescan covers the same window.
		logger.Warn("pattern update skipped, lock held", "user_id", userID, "pattern", lockKey)
		return nil
	}
	defer lock.Release(ctx)

	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.value
	}
	mean, err := stats.Mean(values)
	if err != nil {
		return nil
	}
	avg := round2(mean)

	best := samples[0]
	for _, s := range samples[1:] {
		if s.value > best.value {
			best = s
		}
	}

	return c.gw.UpsertPattern(ctx, userID, t, key, func(p *domain.LearningPattern) error {
		p.SuccessMetric = domain.SuccessMetricFor(t)
		p.AveragePerformance = avg
		p.BestPerformanceVariant = best.variant
		p.SampleSize = len(samples)
		// A rerun over identical inputs must not grow the history.
		if n := len(p.PerformanceHistory); n == 0 || p.PerformanceHistory[n-1] != avg {
			p.AppendHistory(avg)
		}
		p.LastUpdated = c.opts.Clock.Now().UTC()
		return nil
	})
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
