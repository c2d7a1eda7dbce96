// Package intelligence turns seed topics into ranked topic briefs: search
// query rotation, provider fan-out, and LLM synthesis. Briefs feed the
// research pipeline as higher-signal topics.
package intelligence

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
	"github.com/jrfdy6/aiclone-sub001/internal/pkg/logger"
	"github.com/jrfdy6/aiclone-sub001/internal/providers"
)

// TopicBrief is one ranked research candidate.
type TopicBrief struct {
	Topic     string        `json:"topic"`
	Pillar    domain.Pillar `json:"pillar"`
	Score     float64       `json:"score"` // [0,1]
	Rationale string        `json:"rationale"`
	Sources   []string      `json:"sources"`
}

// dorkShapes rotate the query form so repeated scans don't hammer one
// result shape. %s is the seed topic.
var dorkShapes = []string{
	`"%s"`,
	`intitle:"%s"`,
	`%s trends 2026`,
	`%s site:edsurge.com OR site:edweek.org`,
	`%s research findings`,
}

// Options tune the engine.
type Options struct {
	Timeout        time.Duration // default 60s
	ResultsPerDork int           // default 5
	MaxBriefs      int           // default 5
	Clock          providers.Clock
}

// Engine runs topic intelligence scans.
type Engine struct {
	search providers.WebSearch
	llm    providers.LLM
	opts   Options
}

// New builds an Engine.
func New(search providers.WebSearch, llm providers.LLM, opts Options) *Engine {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.ResultsPerDork <= 0 {
		opts.ResultsPerDork = 5
	}
	if opts.MaxBriefs <= 0 {
		opts.MaxBriefs = 5
	}
	if opts.Clock == nil {
		opts.Clock = providers.RealClock{}
	}
	return &Engine{search: search, llm: llm, opts: opts}
}

// DorkQueries returns the rotated query set for one seed topic.
func DorkQueries(topic string) []string {
	out := make([]string, 0, len(dorkShapes))
	for _, shape := range dorkShapes {
		out = append(out, fmt.Sprintf(shape, topic))
	}
	return out
}

// Briefs scans the seed topics and synthesizes ranked briefs for the
// pillar. Failed dorks degrade the evidence, they never fail the scan; a
// scan with zero evidence fails as unavailable.
func (e *Engine) Briefs(ctx context.Context, seeds []string, pillar domain.Pillar) ([]TopicBrief, error) {
	if len(seeds) == 0 {
		return nil, domain.E(domain.KindValidation, "intel_no_seeds", "at least one seed topic is required", nil)
	}
	if !pillar.Valid() {
		return nil, domain.E(domain.KindValidation, "intel_bad_pillar", "unknown pillar "+string(pillar), nil)
	}
	if e.search == nil || e.llm == nil {
		return nil, domain.E(domain.KindConfig, "intel_not_configured", "intelligence requires search and llm providers", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	evidence := e.fanOut(ctx, seeds)
	if len(evidence) == 0 {
		return nil, domain.E(domain.KindUnavailable, "intel_no_evidence", "all dork queries failed", nil)
	}

	briefs, err := e.synthesize(ctx, seeds, pillar, evidence)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(briefs, func(i, j int) bool {
		if briefs[i].Score != briefs[j].Score {
			return briefs[i].Score > briefs[j].Score
		}
		return briefs[i].Topic < briefs[j].Topic
	})
	if len(briefs) > e.opts.MaxBriefs {
		briefs = briefs[:e.opts.MaxBriefs]
	}
	return briefs, nil
}

type evidenceItem struct {
	Query   string `json:"query"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// fanOut runs every dork for every seed concurrently and merges the
// results, URL-deduplicated.
func (e *Engine) fanOut(ctx context.Context, seeds []string) []evidenceItem {
	var mu sync.Mutex
	var wg sync.WaitGroup
	var items []evidenceItem
	seen := map[string]bool{}

	for _, seed := range seeds {
		for _, query := range DorkQueries(seed) {
			query := query
			wg.Add(1)
			go func() {
				defer wg.Done()
				results, err := e.search.Search(ctx, query, e.opts.ResultsPerDork)
				if err != nil {
					logger.Warn("dork query failed", "query", query, "error", err.Error())
					return
				}
				mu.Lock()
				defer mu.Unlock()
				for _, r := range results {
					if seen[r.URL] {
						continue
					}
					seen[r.URL] = true
					items = append(items, evidenceItem{Query: query, Title: r.Title, URL: r.URL, Snippet: r.Snippet})
				}
			}()
		}
	}
	wg.Wait()
	return items
}

type briefEnvelope struct {
	Briefs []TopicBrief `json:"briefs"`
}

func (e *Engine) synthesize(ctx context.Context, seeds []string, pillar domain.Pillar, evidence []evidenceItem) ([]TopicBrief, error) {
	blob, err := json.Marshal(evidence)
	if err != nil {
		return nil, err
	}
	prompt := fmt.Sprintf(`You rank research topics for the %q content pillar (audiences: %s).
Seed topics: %s.
Search evidence (JSON): %s

Return JSON {"briefs":[{"topic":...,"score":0..1,"rationale":...,"sources":[urls]}]} with at most %d briefs, strongest first.`,
		pillar, strings.Join(domain.AudiencesFor(pillar), ", "),
		strings.Join(seeds, "; "), blob, e.opts.MaxBriefs)

	var env briefEnvelope
	if err := e.llm.CompleteJSON(ctx, []providers.ChatMessage{
		{Role: "system", Content: "You are a research strategist. Respond with JSON only."},
		{Role: "user", Content: prompt},
	}, &env); err != nil {
		return nil, err
	}

	briefs := env.Briefs[:0]
	for _, b := range env.Briefs {
		if strings.TrimSpace(b.Topic) == "" {
			continue
		}
		b.Pillar = pillar
		if b.Score < 0 {
			b.Score = 0
		}
		if b.Score > 1 {
			b.Score = 1
		}
		briefs = append(briefs, b)
	}
	return briefs, nil
}
