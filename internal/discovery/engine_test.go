package discovery

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
	"github.com/jrfdy6/aiclone-sub001/internal/providers"
	"github.com/jrfdy6/aiclone-sub001/internal/store"
)

type fakeSearch struct {
	mu      sync.Mutex
	queries []string
	results map[string][]providers.SearchResult // keyed by category substring
}

func (f *fakeSearch) Search(_ context.Context, query string, _ int) ([]providers.SearchResult, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	for key, results := range f.results {
		if strings.Contains(query, key) {
			return results, nil
		}
	}
	return nil, nil
}

type fakeScraper struct {
	mu    sync.Mutex
	pages map[string]string
	calls []string
}

func (f *fakeScraper) Fetch(_ context.Context, url string) (*providers.ScrapedPage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()
	if html, ok := f.pages[url]; ok {
		return &providers.ScrapedPage{URL: url, HTML: html}, nil
	}
	return nil, domain.E(domain.KindTransient, "scrape_failed", "no fixture", nil)
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

const listingHTML = `<html><body>
<div class="results-row"><h2><a class="profile-title" href="/us/therapists/jane-doe/1">Jane Doe, PhD</a></h2></div>
</body></html>`

const profileHTML = `<html><head><title>Jane Doe, PhD | Lakeside Wellness Center</title></head><body>
<h1>Jane Doe</h1>
<a href="tel:2025550100">call</a>
<p>jane (at) lakesidewellness (dot) com</p>
</body></html>`

const schoolHTML = `<html><head><title>Leadership | Summit Prep School</title></head><body>
<h2>Alice Wong</h2><p>Head of School</p>
<p>Contact: awong@summitprep.org</p>
</body></html>`

func newTestEngine(t *testing.T, search *fakeSearch, scraper *fakeScraper) (*Engine, *store.Gateway, *captureBus) {
	t.Helper()
	gw := store.NewGateway(store.NewMemory())
	bus := &captureBus{}
	e := New(gw, search, scraper, nil, bus, Options{})
	return e, gw, bus
}

func TestDiscoverTwoHopAndValidation(t *testing.T) {
	search := &fakeSearch{results: map[string][]providers.SearchResult{
		"psychologytoday.com": {{URL: "https://www.psychologytoday.com/us/therapists/ny"}},
	}}
	scraper := &fakeScraper{pages: map[string]string{
		"https://www.psychologytoday.com/us/therapists/ny":        listingHTML,
		"https://www.psychologytoday.com/us/therapists/jane-doe/1": profileHTML,
	}}
	e, gw, bus := newTestEngine(t, search, scraper)

	summary, err := e.Discover(context.Background(), "u1", []string{"psychologists"}, "New York", 50)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Saved)
	assert.Equal(t, 1, summary.PerCategory["psychologists"])

	prospects, err := gw.ListProspects(context.Background(), "u1", store.Query{})
	require.NoError(t, err)
	require.Len(t, prospects, 1)

	p := prospects[0]
	assert.Equal(t, "Jane Doe", p.Name)
	assert.Equal(t, "psychologists", p.Category, "category comes from the invoking fan-out")
	assert.Equal(t, domain.ApprovalPending, p.ApprovalStatus)
	assert.Equal(t, "jane@lakesidewellness.com", p.Contact.Email)
	assert.Greater(t, p.InfluenceScore, 0.0)
	assert.Greater(t, p.PriorityScore(), 0.0)

	// Listing page then profile page: exactly two scrapes.
	assert.Len(t, scraper.calls, 2)

	// Discovery envelope published.
	require.Len(t, bus.events, 1)
	assert.Equal(t, domain.ActivityProspect, bus.events[0].Type)
}

func TestDiscoverPerCategoryQueriesNeverMerged(t *testing.T) {
	search := &fakeSearch{results: map[string][]providers.SearchResult{}}
	scraper := &fakeScraper{pages: map[string]string{}}
	e, _, _ := newTestEngine(t, search, scraper)

	_, err := e.Discover(context.Background(), "u1", []string{"psychologists", "school_counselors"}, "", 10)
	require.NoError(t, err)

	require.Len(t, search.queries, 2)
	for _, q := range search.queries {
		assert.False(t, strings.Contains(q, "psychologist") && strings.Contains(q, "school counselor"),
			"queries stay per-category: %s", q)
	}
}

func TestDiscoverLocationAppended(t *testing.T) {
	search := &fakeSearch{results: map[string][]providers.SearchResult{}}
	e, _, _ := newTestEngine(t, search, &fakeScraper{})

	_, err := e.Discover(context.Background(), "u1", []string{"psychologists"}, "Austin TX", 10)
	require.NoError(t, err)
	require.Len(t, search.queries, 1)
	assert.Contains(t, search.queries[0], "Austin TX")
}

func TestDiscoverRejectsContactlessProspects(t *testing.T) {
	noContactHTML := `<html><head><title>Staff</title></head><body>
	<h2>Bob Nocontact</h2><p>Clinical Director</p></body></html>`

	search := &fakeSearch{results: map[string][]providers.SearchResult{
		"residential": {{URL: "https://nowhere.example.com/team"}},
	}}
	scraper := &fakeScraper{pages: map[string]string{
		"https://nowhere.example.com/team": noContactHTML,
	}}
	e, gw, _ := newTestEngine(t, search, scraper)

	summary, err := e.Discover(context.Background(), "u1", []string{"treatment_centers"}, "", 10)
	require.NoError(t, err)

	prospects, err := gw.ListProspects(context.Background(), "u1", store.Query{})
	require.NoError(t, err)

	// Org fallback from the title/domain keeps this prospect saveable; if
	// nothing resolved it would be rejected. Either way nothing invalid
	// lands in the store.
	for _, p := range prospects {
		assert.True(t, p.HasContactChannel())
	}
	assert.Equal(t, summary.Saved, len(prospects))
}

func TestDiscoverContentPromotionToTreatmentCenter(t *testing.T) {
	staffHTML := `<html><head><title>Our Team | Alpine Recovery</title></head><body>
	<p>Our residential treatment (RTC) and IOP programs.</p>
	<div class="team-member"><h3>Maria Gonzalez</h3><p class="title">Clinical Director</p>
	<a href="mailto:mgonzalez@alpinerecovery.com">email</a></div>
	</body></html>`

	search := &fakeSearch{results: map[string][]providers.SearchResult{
		"residential": {{URL: "https://alpinerecovery-site.com/meet-us"}},
	}}
	scraper := &fakeScraper{pages: map[string]string{
		"https://alpinerecovery-site.com/meet-us": staffHTML,
	}}
	e, gw, _ := newTestEngine(t, search, scraper)

	_, err := e.Discover(context.Background(), "u1", []string{"treatment_centers"}, "", 10)
	require.NoError(t, err)

	prospects, err := gw.ListProspects(context.Background(), "u1", store.Query{})
	require.NoError(t, err)
	require.Len(t, prospects, 1)
	assert.Equal(t, "Maria Gonzalez", prospects[0].Name)
	assert.Equal(t, "treatment-center", prospects[0].Source)
}

func TestDiscoverUnknownCategory(t *testing.T) {
	e, _, _ := newTestEngine(t, &fakeSearch{}, &fakeScraper{})
	_, err := e.Discover(context.Background(), "u1", []string{"astronauts"}, "", 10)
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestDiscoverURLDedup(t *testing.T) {
	search := &fakeSearch{results: map[string][]providers.SearchResult{
		"psychologytoday.com": {
			{URL: "https://summitprep.org/leadership"},
			{URL: "https://summitprep.org/leadership/?utm_source=g"},
		},
	}}
	scraper := &fakeScraper{pages: map[string]string{
		"https://summitprep.org/leadership": schoolHTML,
	}}
	e, _, _ := newTestEngine(t, search, scraper)

	summary, err := e.Discover(context.Background(), "u1", []string{"psychologists"}, "", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.URLsSeen, "canonical duplicates collapse")
	assert.Len(t, scraper.calls, 1)
}

func TestInfluenceScoreDeterministicAndBounded(t *testing.T) {
	p := &domain.DiscoveredProspect{
		Category:     "treatment_centers",
		JobTitle:     "Clinical Director",
		Organization: "Alpine Recovery Ranch",
		Contact:      domain.ContactInfo{Email: "m@alpine.com", Phone: "+18015550199"},
	}
	a, b := InfluenceScore(p), InfluenceScore(p)
	assert.Equal(t, a, b)
	assert.LessOrEqual(t, a, 100.0)
	assert.Greater(t, a, 50.0)

	weak := &domain.DiscoveredProspect{Category: "youth_sports_coaches", Organization: "Club"}
	assert.Less(t, InfluenceScore(weak), a)
}

func TestComponentScoresInUnitRange(t *testing.T) {
	p := &domain.DiscoveredProspect{
		Category:     "psychologists",
		JobTitle:     "Senior Psychologist",
		Organization: "Lakeside Wellness Center",
		Contact:      domain.ContactInfo{Email: "j@l.com"},
	}
	s := ComponentScores(p)
	for _, v := range []float64{s.Fit, s.ReferralCapacity, s.SignalStrength} {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}
