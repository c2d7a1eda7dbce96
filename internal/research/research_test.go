package research

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
	"github.com/jrfdy6/aiclone-sub001/internal/providers"
	"github.com/jrfdy6/aiclone-sub001/internal/store"
)

type fakeSearch struct {
	results []providers.SearchResult
	err     error
}

func (f *fakeSearch) Search(_ context.Context, _ string, _ int) ([]providers.SearchResult, error) {
	return f.results, f.err
}

type fakeScraper struct {
	pages map[string]*providers.ScrapedPage
}

func (f *fakeScraper) Fetch(_ context.Context, url string) (*providers.ScrapedPage, error) {
	if page, ok := f.pages[url]; ok {
		return page, nil
	}
	return nil, domain.E(domain.KindTransient, "scrape_failed", "no fixture for "+url, nil)
}

type fakeLLM struct {
	synthesis llmSynthesis
	err       error
}

func (f *fakeLLM) Complete(context.Context, []providers.ChatMessage) (string, error) {
	b, _ := json.Marshal(f.synthesis)
	return string(b), f.err
}

func (f *fakeLLM) CompleteJSON(_ context.Context, _ []providers.ChatMessage, out interface{}) error {
	if f.err != nil {
		return f.err
	}
	b, _ := json.Marshal(f.synthesis)
	return json.Unmarshal(b, out)
}

type captureBus struct {
	mu     sync.Mutex
	events []domain.ActivityEvent
}

func (c *captureBus) Publish(_ context.Context, e *domain.ActivityEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, *e)
}

func (c *captureBus) titles() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, e := range c.events {
		out = append(out, e.Title)
	}
	return out
}

func newTestPipeline(t *testing.T, search providers.WebSearch, scraper providers.Scrape, llm providers.LLM) (*Pipeline, *store.Gateway, *captureBus) {
	t.Helper()
	gw := store.NewGateway(store.NewMemory())
	bus := &captureBus{}
	p := New(gw, search, scraper, llm, nil, bus, Options{
		Clock: &providers.FakeClock{Current: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
		Rand:  providers.FixedRand{Value: 0.5},
	})
	return p, gw, bus
}

func TestCompleteWorkflowHappyPath(t *testing.T) {
	search := &fakeSearch{results: []providers.SearchResult{
		{Title: "AI tutoring grows", URL: "https://example.com/a", Snippet: "Adaptive AI tutoring adoption doubled across private schools this year."},
	}}
	scraper := &fakeScraper{pages: map[string]*providers.ScrapedPage{
		"https://example.com/a": {URL: "https://example.com/a", Markdown: "Adaptive tutoring platforms are reshaping how independent schools support struggling students."},
	}}
	llm := &fakeLLM{synthesis: llmSynthesis{
		Summary: "AI tutoring is accelerating in independent schools.",
		KeyPoints: []string{
			"Dr. Sarah Mitchell, Clinical Director at Lakeside Academy, reports rising demand.",
			"Independent schools doubled adaptive tutoring budgets.",
		},
	}}

	p, gw, bus := newTestPipeline(t, search, scraper, llm)

	insight, cached, err := p.CompleteWorkflow(context.Background(), "u1", "AI tutoring in private schools", domain.PillarReferral)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, domain.InsightReady, insight.Status)
	assert.Equal(t, domain.AudiencesFor(domain.PillarReferral), insight.Audiences)
	assert.NotEmpty(t, insight.KeyPoints)
	assert.GreaterOrEqual(t, len(insight.Sources), 2)

	// Targets mined from LLM text.
	require.NotEmpty(t, insight.ProspectTargets)
	assert.Equal(t, "Sarah Mitchell", insight.ProspectTargets[0].Name)

	// Persisted and queryable.
	stored, err := gw.GetInsight(context.Background(), "u1", insight.InsightID)
	require.NoError(t, err)
	assert.Equal(t, domain.InsightReady, stored.Status)

	assert.Contains(t, bus.titles(), "Research complete")
}

func TestCompleteWorkflowDedupCache(t *testing.T) {
	llm := &fakeLLM{synthesis: llmSynthesis{Summary: "s", KeyPoints: []string{"point one about the topic"}}}
	p, _, _ := newTestPipeline(t, nil, nil, llm)

	first, cached, err := p.CompleteWorkflow(context.Background(), "u1", "Teen Anxiety Trends", domain.PillarReferral)
	require.NoError(t, err)
	assert.False(t, cached)

	// Same normalized topic, different casing and spacing.
	second, cached, err := p.CompleteWorkflow(context.Background(), "u1", "  teen   anxiety TRENDS ", domain.PillarReferral)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, first.InsightID, second.InsightID)
}

func TestCompleteWorkflowRedisDedupIndex(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	llm := &fakeLLM{synthesis: llmSynthesis{Summary: "s", KeyPoints: []string{"point one about the topic"}}}
	gw := store.NewGateway(store.NewMemory())
	p := New(gw, nil, nil, llm, nil, &captureBus{}, Options{
		Clock: &providers.FakeClock{Current: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
		Rand:  providers.FixedRand{Value: 0.5},
		Redis: client,
	})

	first, cached, err := p.CompleteWorkflow(context.Background(), "u1", "Teen Anxiety Trends", domain.PillarReferral)
	require.NoError(t, err)
	assert.False(t, cached)

	// The ready insight is recorded in the index.
	key := dedupKey("u1", domain.DedupHash("Teen Anxiety Trends", domain.PillarReferral))
	id, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, first.InsightID, id)

	second, cached, err := p.CompleteWorkflow(context.Background(), "u1", "teen anxiety trends", domain.PillarReferral)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, first.InsightID, second.InsightID)

	// A broken index entry degrades to the store query, never fails the run.
	require.NoError(t, mr.Set(key, "missing-insight"))
	third, cached, err := p.CompleteWorkflow(context.Background(), "u1", "teen anxiety trends", domain.PillarReferral)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, first.InsightID, third.InsightID)
}

func TestCompleteWorkflowAllSourcesFail(t *testing.T) {
	llm := &fakeLLM{err: domain.E(domain.KindQuota, "llm_quota", "spent", nil)}
	search := &fakeSearch{err: domain.E(domain.KindTransient, "boom", "down", nil)}
	p, gw, bus := newTestPipeline(t, search, &fakeScraper{}, llm)

	_, _, err := p.CompleteWorkflow(context.Background(), "u1", "doomed topic", domain.PillarReferral)
	require.Error(t, err)
	assert.Equal(t, domain.KindUnavailable, domain.KindOf(err))

	insights, err := gw.QueryInsights(context.Background(), "u1", store.Query{})
	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.Equal(t, domain.InsightFailed, insights[0].Status)

	assert.Contains(t, bus.titles(), "research.source_failed")
}

func TestCompleteWorkflowPartialFailureSucceeds(t *testing.T) {
	llm := &fakeLLM{err: domain.E(domain.KindTransient, "llm_down", "down", nil)}
	search := &fakeSearch{results: []providers.SearchResult{
		{URL: "https://example.com/x", Snippet: "A long enough snippet describing the research topic in detail."},
	}}
	p, _, _ := newTestPipeline(t, search, &fakeScraper{}, llm)

	insight, cached, err := p.CompleteWorkflow(context.Background(), "u1", "partial topic", domain.PillarThoughtLeadership)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, domain.InsightReady, insight.Status)
}

func TestCompleteWorkflowValidation(t *testing.T) {
	p, _, _ := newTestPipeline(t, nil, nil, &fakeLLM{})

	_, _, err := p.CompleteWorkflow(context.Background(), "u1", "", domain.PillarReferral)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	_, _, err = p.CompleteWorkflow(context.Background(), "u1", "topic", domain.Pillar("bogus"))
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestTrigramSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, TrigramSimilarity("AI tutoring grows", "ai tutoring grows"))
	assert.Greater(t, TrigramSimilarity("AI tutoring grows fast", "AI tutoring grows faster"), 0.7)
	assert.Less(t, TrigramSimilarity("AI tutoring", "embassy staff"), 0.2)
}

func TestMergeKeyPointsDedupes(t *testing.T) {
	merged := MergeKeyPoints(
		[]string{"Independent schools doubled adaptive tutoring budgets this year."},
		[]string{"independent schools doubled adaptive tutoring budgets this year", "A different fact entirely about psychologists."},
	)
	assert.Len(t, merged, 2)
}

func TestNormalizeTags(t *testing.T) {
	tags := NormalizeTags([]string{"Schools!", "schools", "AI-Tutoring", "Wellness", ""})
	assert.Equal(t, []string{"school", "ai tutoring", "wellness"}, tags[:3])
}

func TestExtractProspectTargets(t *testing.T) {
	sources := []domain.ResearchSource{{
		Type: "llm",
		URL:  "https://example.com/report",
		Summary: "Dr. Sarah Mitchell, Clinical Director at Lakeside Academy, reports rising demand. " +
			"Tom Chen, CEO of Brightpath Learning, raised a new round.",
		KeyPoints: []string{"Maria Gonzalez, Admissions Director at Summit Prep, expanded referrals."},
	}}

	targets := ExtractProspectTargets(sources, domain.PillarReferral, 20)
	require.NotEmpty(t, targets)

	names := map[string]domain.ProspectTarget{}
	for _, tgt := range targets {
		names[tgt.Name] = tgt
	}
	require.Contains(t, names, "Sarah Mitchell")
	require.Contains(t, names, "Maria Gonzalez")

	sarah := names["Sarah Mitchell"]
	assert.Equal(t, "Lakeside Academy", sarah.Organization)
	assert.Equal(t, []domain.Pillar{domain.PillarReferral}, sarah.PillarRelevance)
	assert.Greater(t, sarah.RelevanceScore, 0.5)

	// The CEO scores lower for the referral pillar than clinical roles.
	if chen, ok := names["Tom Chen"]; ok {
		assert.Less(t, chen.RelevanceScore, sarah.RelevanceScore)
	}
}

func TestExtractProspectTargetsKeepsTopK(t *testing.T) {
	src := domain.ResearchSource{Type: "llm"}
	for i := 0; i < 30; i++ {
		src.KeyPoints = append(src.KeyPoints,
			"Alex "+string(rune('A'+i))+"son, Clinical Director at Center "+string(rune('A'+i))+"x, spoke.")
	}
	targets := ExtractProspectTargets([]domain.ResearchSource{src}, domain.PillarReferral, 5)
	assert.LessOrEqual(t, len(targets), 5)
}
