package intelligence

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
	"github.com/jrfdy6/aiclone-sub001/internal/providers"
)

type fakeSearch struct {
	mu      sync.Mutex
	queries []string
	results []providers.SearchResult
	err     error
}

func (f *fakeSearch) Search(_ context.Context, query string, _ int) ([]providers.SearchResult, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	return f.results, f.err
}

type fakeLLM struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeLLM) Complete(_ context.Context, msgs []providers.ChatMessage) (string, error) {
	f.prompts = append(f.prompts, msgs[len(msgs)-1].Content)
	return f.response, f.err
}

func (f *fakeLLM) CompleteJSON(ctx context.Context, msgs []providers.ChatMessage, out interface{}) error {
	raw, err := f.Complete(ctx, msgs)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return domain.E(domain.KindPermanent, "llm_bad_json", "response is not a JSON object", err)
	}
	return nil
}

func TestDorkQueriesRotation(t *testing.T) {
	queries := DorkQueries("ai tutoring")
	require.Len(t, queries, len(dorkShapes))
	assert.Contains(t, queries, `"ai tutoring"`)
	assert.Contains(t, queries, `intitle:"ai tutoring"`)
	for _, q := range queries {
		assert.Contains(t, q, "ai tutoring")
	}
}

func TestBriefsRanksSynthesis(t *testing.T) {
	search := &fakeSearch{results: []providers.SearchResult{
		{Title: "AI tutoring study", URL: "https://example.org/study", Snippet: "adoption rising"},
	}}
	llm := &fakeLLM{response: `{"briefs":[
		{"topic":"weak topic","score":0.2,"rationale":"thin evidence","sources":[]},
		{"topic":"ai tutoring outcomes","score":0.9,"rationale":"strong coverage","sources":["https://example.org/study"]},
		{"topic":"","score":0.8}
	]}`}

	e := New(search, llm, Options{})
	briefs, err := e.Briefs(context.Background(), []string{"ai tutoring"}, domain.PillarThoughtLeadership)
	require.NoError(t, err)

	require.Len(t, briefs, 2, "empty topics dropped")
	assert.Equal(t, "ai tutoring outcomes", briefs[0].Topic, "strongest first")
	assert.Equal(t, domain.PillarThoughtLeadership, briefs[0].Pillar)
	assert.Equal(t, 0.9, briefs[0].Score)

	search.mu.Lock()
	assert.Len(t, search.queries, len(dorkShapes), "every dork variant ran")
	search.mu.Unlock()

	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "example.org/study", "evidence reaches the synthesis prompt")
	assert.Contains(t, llm.prompts[0], "edtech_business_leaders", "pillar audiences named")
}

func TestBriefsAllDorksFail(t *testing.T) {
	search := &fakeSearch{err: domain.E(domain.KindTransient, "search_down", "boom", nil)}
	e := New(search, &fakeLLM{response: "{}"}, Options{})

	_, err := e.Briefs(context.Background(), []string{"topic"}, domain.PillarReferral)
	require.Error(t, err)
	assert.Equal(t, domain.KindUnavailable, domain.KindOf(err))
}

func TestBriefsBadSynthesis(t *testing.T) {
	search := &fakeSearch{results: []providers.SearchResult{{URL: "https://x.org", Title: "t"}}}
	llm := &fakeLLM{response: "not json"}
	e := New(search, llm, Options{})

	_, err := e.Briefs(context.Background(), []string{"topic"}, domain.PillarReferral)
	require.Error(t, err)
	assert.Equal(t, domain.KindPermanent, domain.KindOf(err))
}

func TestBriefsValidation(t *testing.T) {
	e := New(&fakeSearch{}, &fakeLLM{}, Options{})

	_, err := e.Briefs(context.Background(), nil, domain.PillarReferral)
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	_, err = e.Briefs(context.Background(), []string{"x"}, domain.Pillar("bogus"))
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	e = New(nil, nil, Options{})
	_, err = e.Briefs(context.Background(), []string{"x"}, domain.PillarReferral)
	require.Error(t, err)
	assert.Equal(t, domain.KindConfig, domain.KindOf(err))
}

func TestBriefsScoreClamped(t *testing.T) {
	search := &fakeSearch{results: []providers.SearchResult{{URL: "https://x.org", Title: "t"}}}
	llm := &fakeLLM{response: `{"briefs":[{"topic":"hot","score":3.5,"rationale":"r"}]}`}
	e := New(search, llm, Options{})

	briefs, err := e.Briefs(context.Background(), []string{"x"}, domain.PillarReferral)
	require.NoError(t, err)
	require.Len(t, briefs, 1)
	assert.Equal(t, 1.0, briefs[0].Score)
	assert.False(t, strings.Contains(briefs[0].Topic, " "), "single-word topic passes through")
}
