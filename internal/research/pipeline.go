// Package research implements the multi-source research workflow: topic in,
// durable normalized insight out. Provider fan-out is concurrent, partial
// failure tolerant, and cached by a per-user dedup hash so repeat topics
// never burn provider budget twice.
package research

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
	"github.com/jrfdy6/aiclone-sub001/internal/pkg/logger"
	"github.com/jrfdy6/aiclone-sub001/internal/providers"
	"github.com/jrfdy6/aiclone-sub001/internal/store"
)

// Publisher hands events to the activity bus. The pipeline treats publish
// failures as non-fatal.
type Publisher interface {
	Publish(ctx context.Context, e *domain.ActivityEvent)
}

// Options tune the pipeline.
type Options struct {
	BatchMode    bool          // free-tier budget mode
	BatchItemCap int           // per-provider item cap in batch mode, default 5
	Timeout      time.Duration // workflow deadline, default 90s
	TargetKeep   int           // prospect targets to keep, default 20
	Clock        providers.Clock
	Rand         providers.Rand
	Redis        *redis.Client // optional dedup-hash index
}

// Pipeline is the research workflow engine. Any provider may be nil; the
// fan-out simply runs with the sources that exist.
type Pipeline struct {
	gw      *store.Gateway
	search  providers.WebSearch
	scraper providers.Scrape
	llm     providers.LLM
	feed    providers.NewsFeed
	events  Publisher
	index   *hashIndex
	opts    Options
}

// New builds a Pipeline. Pass nil for providers that are not configured.
func New(gw *store.Gateway, search providers.WebSearch, scraper providers.Scrape, llm providers.LLM, feed providers.NewsFeed, events Publisher, opts Options) *Pipeline {
	if opts.BatchItemCap <= 0 {
		opts.BatchItemCap = 5
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 90 * time.Second
	}
	if opts.TargetKeep <= 0 {
		opts.TargetKeep = 20
	}
	if opts.Clock == nil {
		opts.Clock = providers.RealClock{}
	}
	if opts.Rand == nil {
		opts.Rand = providers.RealRand{}
	}
	p := &Pipeline{gw: gw, search: search, scraper: scraper, llm: llm, feed: feed, events: events, opts: opts}
	if opts.Redis != nil {
		p.index = &hashIndex{client: opts.Redis}
	}
	return p
}

// CompleteWorkflow runs the full research flow for one topic. The returned
// bool reports a dedup-cache hit: a prior ready insight for the same
// normalized (topic, pillar) is returned untouched.
func (p *Pipeline) CompleteWorkflow(ctx context.Context, userID, topic string, pillar domain.Pillar) (*domain.Insight, bool, error) {
	if topic == "" {
		return nil, false, domain.E(domain.KindValidation, "research_empty_topic", "topic is required", nil)
	}
	if !pillar.Valid() {
		return nil, false, domain.E(domain.KindValidation, "research_bad_pillar", "unknown pillar "+string(pillar), nil)
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	hash := domain.DedupHash(topic, pillar)
	if p.index != nil {
		if id := p.index.lookup(ctx, userID, hash); id != "" {
			if cached, err := p.gw.GetInsight(ctx, userID, id); err == nil && cached.Status == domain.InsightReady {
				log.Printf("[Research] index hit user=%s topic=%q hash=%s", userID, topic, hash)
				return cached, true, nil
			}
		}
	}
	if cached, err := p.gw.FindInsightByHash(ctx, userID, hash, domain.InsightReady); err == nil && cached != nil {
		log.Printf("[Research] cache hit user=%s topic=%q hash=%s", userID, topic, hash)
		if p.index != nil {
			p.index.record(ctx, userID, hash, cached.InsightID)
		}
		return cached, true, nil
	}

	insight := &domain.Insight{
		UserID:    userID,
		InsightID: uuid.NewString(),
		Topic:     topic,
		Pillar:    pillar,
		Audiences: domain.AudiencesFor(pillar),
		Status:    domain.InsightCollecting,
		DedupHash: hash,
		CreatedAt: time.Now().UTC(),
	}
	if err := p.gw.SaveInsight(ctx, insight); err != nil {
		return nil, false, err
	}

	sources := p.collect(ctx, userID, topic, pillar)
	if len(sources) == 0 {
		insight.Status = domain.InsightFailed
		if err := p.gw.SaveInsight(ctx, insight); err != nil {
			logger.Error("saving failed insight", "insight_id", insight.InsightID, "error", err.Error())
		}
		return nil, false, domain.E(domain.KindUnavailable, "research_all_sources_failed",
			"no research source succeeded for topic "+topic, nil)
	}

	if err := p.gw.TransitionInsightStatus(ctx, userID, insight.InsightID, domain.InsightProcessing); err != nil {
		return nil, false, err
	}
	insight.Status = domain.InsightProcessing

	insight.Sources = sources
	groups := make([][]string, 0, len(sources))
	for _, s := range sources {
		groups = append(groups, s.KeyPoints)
	}
	tags := topicTags(topic)
	merged := MergeKeyPoints(groups...)
	insight.KeyPoints = merged
	insight.Tags = NormalizeTags(append(tags, string(pillar)))
	insight.ProspectTargets = ExtractProspectTargets(sources, pillar, p.opts.TargetKeep)
	insight.EngagementSignals = aggregateSignals(sources)

	if err := p.gw.SaveInsight(ctx, insight); err != nil {
		return nil, false, err
	}
	if err := p.gw.TransitionInsightStatus(ctx, userID, insight.InsightID, domain.InsightReady); err != nil {
		return nil, false, err
	}
	insight.Status = domain.InsightReady
	if p.index != nil {
		p.index.record(ctx, userID, hash, insight.InsightID)
	}

	p.publish(ctx, userID, domain.ActivityInsight, "Research complete",
		"Insight ready for "+topic, map[string]interface{}{
			"insight_id": insight.InsightID,
			"pillar":     string(pillar),
			"sources":    len(sources),
			"targets":    len(insight.ProspectTargets),
		})
	log.Printf("[Research] complete user=%s insight=%s sources=%d key_points=%d targets=%d",
		userID, insight.InsightID, len(sources), len(merged), len(insight.ProspectTargets))
	return insight, false, nil
}

// RunBatch researches several topics sequentially with staggered starts so
// provider budgets survive scheduled bursts.
func (p *Pipeline) RunBatch(ctx context.Context, userID string, topics []string, pillar domain.Pillar) ([]domain.Insight, error) {
	var out []domain.Insight
	for i, topic := range topics {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		if i > 0 {
			p.opts.Clock.Sleep(time.Second + time.Duration(p.opts.Rand.Intn(1000))*time.Millisecond)
		}
		insight, _, err := p.CompleteWorkflow(ctx, userID, topic, pillar)
		if err != nil {
			logger.Warn("batch topic failed", "topic", topic, "error", err.Error())
			if domain.KindOf(err) == domain.KindQuota {
				return out, err
			}
			continue
		}
		out = append(out, *insight)
	}
	return out, nil
}

// collect fans out to every configured source and returns the successes.
// In batch mode the starts are staggered by 1-2s.
func (p *Pipeline) collect(ctx context.Context, userID, topic string, pillar domain.Pillar) []domain.ResearchSource {
	type task struct {
		name string
		run  func(context.Context) (*domain.ResearchSource, error)
	}
	var tasks []task
	if p.llm != nil {
		tasks = append(tasks, task{"llm", func(ctx context.Context) (*domain.ResearchSource, error) {
			return p.llmSource(ctx, topic, pillar)
		}})
	}
	if p.search != nil && p.scraper != nil {
		tasks = append(tasks, task{"web", func(ctx context.Context) (*domain.ResearchSource, error) {
			return p.webSource(ctx, topic)
		}})
	}
	if p.search != nil {
		tasks = append(tasks, task{"site_search", func(ctx context.Context) (*domain.ResearchSource, error) {
			return p.siteSearchSource(ctx, topic, pillar)
		}})
	}
	if p.feed != nil {
		tasks = append(tasks, task{"newsfeed", func(ctx context.Context) (*domain.ResearchSource, error) {
			return p.newsSource(ctx, topic)
		}})
	}

	var (
		mu      sync.Mutex
		sources []domain.ResearchSource
		wg      sync.WaitGroup
	)
	for i, t := range tasks {
		if p.opts.BatchMode && i > 0 {
			p.opts.Clock.Sleep(time.Second + time.Duration(p.opts.Rand.Intn(1000))*time.Millisecond)
		}
		wg.Add(1)
		go func(t task) {
			defer wg.Done()
			src, err := t.run(ctx)
			if err != nil {
				logger.Warn("research source failed", "source", t.name, "topic", topic, "error", err.Error())
				p.publish(ctx, userID, domain.ActivityResearch, "research.source_failed",
					t.name+" failed for "+topic, map[string]interface{}{
						"source": t.name,
						"code":   domain.CodeOf(err),
					})
				return
			}
			mu.Lock()
			sources = append(sources, *src)
			mu.Unlock()
		}(t)
	}
	wg.Wait()
	return sources
}

func (p *Pipeline) publish(ctx context.Context, userID string, t domain.ActivityType, title, message string, meta map[string]interface{}) {
	if p.events == nil {
		return
	}
	p.events.Publish(ctx, &domain.ActivityEvent{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      t,
		Title:     title,
		Message:   message,
		Metadata:  meta,
		Timestamp: time.Now().UTC(),
	})
}

func aggregateSignals(sources []domain.ResearchSource) domain.EngagementSignals {
	// Coarse research-time signal: relevance scales with agreement across
	// sources, trend with recency-bearing sources (news), urgency stays
	// conservative.
	s := domain.EngagementSignals{RelevanceScore: 0.4, TrendScore: 0.3, UrgencyScore: 0.2}
	for _, src := range sources {
		s.RelevanceScore += 0.15
		if src.Type == "newsfeed" {
			s.TrendScore += 0.3
		}
	}
	clamp := func(v float64) float64 {
		if v > 1 {
			return 1
		}
		return v
	}
	s.RelevanceScore = clamp(s.RelevanceScore)
	s.TrendScore = clamp(s.TrendScore)
	s.UrgencyScore = clamp(s.UrgencyScore)
	return s
}

// topicTags splits the topic into tag candidates.
func topicTags(topic string) []string {
	var tags []string
	for _, f := range strings.Fields(topic) {
		if len(f) > 2 {
			tags = append(tags, f)
		}
	}
	return tags
}
