// Package discovery implements prospect discovery: per-category search
// fan-out, extractor dispatch, two-hop profile scraping, save-time
// validation, scoring, and persistence.
package discovery

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
	"github.com/jrfdy6/aiclone-sub001/internal/extractors"
	"github.com/jrfdy6/aiclone-sub001/internal/pkg/logger"
	"github.com/jrfdy6/aiclone-sub001/internal/providers"
	"github.com/jrfdy6/aiclone-sub001/internal/store"
)

// Publisher hands events to the activity bus.
type Publisher interface {
	Publish(ctx context.Context, e *domain.ActivityEvent)
}

// categorySeeds carry the per-category query shape. Queries are built per
// category and never merged: one multi-category query degrades result
// quality badly.
var categorySeeds = map[string]string{
	"psychologists":         `adolescent psychologist site:psychologytoday.com OR "licensed psychologist"`,
	"psychiatrists":         `child adolescent psychiatrist directory`,
	"therapists":            `family therapist site:psychologytoday.com OR "licensed therapist"`,
	"treatment_centers":     `adolescent residential treatment center clinical team`,
	"private_school_admins": `private school "head of school" OR "admissions director"`,
	"school_counselors":     `school counselor "counseling department" staff`,
	"embassy_contacts":      `embassy "cultural attache" OR "education counselor" staff`,
	"youth_sports_coaches":  `youth sports academy coaches "director of coaching"`,
	"edtech_executives":     `edtech company founder OR CEO leadership`,
}

// Options tune the engine.
type Options struct {
	Timeout    time.Duration // default 120s
	MaxPerHop  int           // profile scrapes per listing, default 10
	SearchSize int           // results per category query, default 10
	Clock      providers.Clock
}

// Engine runs discovery for one request at a time; it is safe for
// concurrent use.
type Engine struct {
	gw       *store.Gateway
	search   providers.WebSearch
	scraper  providers.Scrape
	registry *extractors.Registry
	events   Publisher
	opts     Options
}

// New builds an Engine.
func New(gw *store.Gateway, search providers.WebSearch, scraper providers.Scrape, registry *extractors.Registry, events Publisher, opts Options) *Engine {
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.MaxPerHop <= 0 {
		opts.MaxPerHop = 10
	}
	if opts.SearchSize <= 0 {
		opts.SearchSize = 10
	}
	if opts.Clock == nil {
		opts.Clock = providers.RealClock{}
	}
	if registry == nil {
		registry = extractors.NewRegistry()
	}
	return &Engine{gw: gw, search: search, scraper: scraper, registry: registry, events: events, opts: opts}
}

// Summary is the discovery envelope: what ran, what saved, what failed.
type Summary struct {
	UserID      string         `json:"user_id"`
	Categories  []string       `json:"categories"`
	Location    string         `json:"location,omitempty"`
	URLsSeen    int            `json:"urls_seen"`
	Extracted   int            `json:"extracted"`
	Saved       int            `json:"saved"`
	Rejected    int            `json:"rejected"`
	PerCategory map[string]int `json:"per_category"`
	Failures    []string       `json:"failures,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
}

type categoryHit struct {
	url      string
	category string
}

// Discover runs the full flow. Cancellation mid-run is clean: prospects
// already saved stay saved, and the summary reflects what committed.
func (e *Engine) Discover(ctx context.Context, userID string, categories []string, location string, maxResults int) (*Summary, error) {
	if len(categories) == 0 {
		return nil, domain.E(domain.KindValidation, "discover_no_categories", "at least one category is required", nil)
	}
	for _, c := range categories {
		if _, ok := categorySeeds[c]; !ok {
			return nil, domain.E(domain.KindValidation, "discover_unknown_category", "unknown category "+c, nil)
		}
	}
	if e.search == nil || e.scraper == nil {
		return nil, domain.E(domain.KindConfig, "discover_not_configured", "discovery requires search and scrape providers", nil)
	}
	if maxResults <= 0 {
		maxResults = 50
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	summary := &Summary{
		UserID:      userID,
		Categories:  categories,
		Location:    location,
		PerCategory: map[string]int{},
		StartedAt:   time.Now().UTC(),
	}

	hits := e.fanOut(ctx, categories, location, summary)
	summary.URLsSeen = len(hits)

	for _, hit := range hits {
		if ctx.Err() != nil {
			summary.Failures = append(summary.Failures, "cancelled")
			break
		}
		if summary.Saved >= maxResults {
			break
		}
		e.processURL(ctx, userID, hit, summary, maxResults)
	}

	summary.FinishedAt = time.Now().UTC()
	log.Printf("[SAVE SUMMARY] user=%s categories=%v urls=%d extracted=%d saved=%d rejected=%d per_category=%v",
		userID, categories, summary.URLsSeen, summary.Extracted, summary.Saved, summary.Rejected, summary.PerCategory)

	e.publishEnvelope(ctx, userID, summary)
	return summary, nil
}

// fanOut runs one search per category concurrently and returns the
// canonically deduplicated URL set, first-discovering category attached.
func (e *Engine) fanOut(ctx context.Context, categories []string, location string, summary *Summary) []categoryHit {
	type catResult struct {
		category string
		urls     []string
		failure  string
	}
	results := make([]catResult, len(categories))

	g, gctx := errgroup.WithContext(ctx)
	for i, category := range categories {
		i, category := i, category
		g.Go(func() error {
			query := categorySeeds[category]
			if location != "" {
				query += " " + location
			}
			found, err := e.search.Search(gctx, query, e.opts.SearchSize)
			if err != nil {
				logger.Warn("category search failed", "category", category, "error", err.Error())
				// One bad category never sinks the batch.
				results[i] = catResult{category: category, failure: category + ": " + domain.CodeOf(err)}
				return nil
			}
			urls := make([]string, 0, len(found))
			for _, r := range found {
				urls = append(urls, r.URL)
			}
			results[i] = catResult{category: category, urls: urls}
			return nil
		})
	}
	g.Wait()

	seen := map[string]bool{}
	var hits []categoryHit
	for _, res := range results {
		if res.failure != "" {
			summaryAppendFailure(summary, res.failure)
		}
		for _, u := range res.urls {
			canon := extractors.CanonicalURL(u)
			if canon == "" || seen[canon] {
				continue
			}
			seen[canon] = true
			hits = append(hits, categoryHit{url: canon, category: res.category})
		}
	}
	return hits
}

// processURL scrapes one URL, dispatches extraction, completes partial
// results via the second hop, and saves what validates.
func (e *Engine) processURL(ctx context.Context, userID string, hit categoryHit, summary *Summary, maxResults int) {
	page, err := e.scraper.Fetch(ctx, hit.url)
	if err != nil {
		summaryAppendFailure(summary, hit.url+": "+domain.CodeOf(err))
		return
	}

	ext := e.registry.For(hit.url)
	// Staff pages on program sites only reveal themselves by content.
	if ext.Name() == "generic" {
		if tc := (&extractors.TreatmentCenter{}); tc.MatchesContent(page.HTML) {
			ext = tc
		}
	}

	results, err := ext.Extract(ctx, page.HTML, hit.url, hit.category)
	if err != nil {
		summaryAppendFailure(summary, hit.url+": extract_failed")
		return
	}

	hopsLeft := e.opts.MaxPerHop
	for _, res := range results {
		if ctx.Err() != nil || summary.Saved >= maxResults {
			return
		}
		if res.Partial {
			if hopsLeft <= 0 {
				continue
			}
			hopsLeft--
			completed := e.secondHop(ctx, res, hit.category)
			if completed == nil {
				continue
			}
			res = *completed
		}
		summary.Extracted++
		e.saveProspect(ctx, userID, res.Prospect, summary)
	}
}

// secondHop scrapes a partial result's profile URL and re-extracts.
func (e *Engine) secondHop(ctx context.Context, partial extractors.Result, category string) *extractors.Result {
	page, err := e.scraper.Fetch(ctx, partial.ProfileURL)
	if err != nil {
		return nil
	}
	results, err := e.registry.Extract(ctx, page.HTML, partial.ProfileURL, category)
	if err != nil || len(results) == 0 {
		// Keep the listing-level partial: the validator decides its fate.
		return &extractors.Result{Prospect: partial.Prospect}
	}
	full := results[0]
	if full.Prospect.Name == "" {
		full.Prospect.Name = partial.Prospect.Name
	}
	if full.Prospect.JobTitle == "" {
		full.Prospect.JobTitle = partial.Prospect.JobTitle
	}
	return &full
}

// blockedOrgPlaceholders reject junk organizations at save time.
var blockedOrgPlaceholders = map[string]bool{
	"example": true, "localhost": true, "test": true, "unknown": true,
	"n/a": true, "none": true,
}

func (e *Engine) saveProspect(ctx context.Context, userID string, p domain.DiscoveredProspect, summary *Summary) {
	if !extractors.ValidPersonName(p.Name) {
		summary.Rejected++
		return
	}
	if !p.HasContactChannel() {
		summary.Rejected++
		return
	}
	if blockedOrgPlaceholders[strings.ToLower(p.Organization)] {
		summary.Rejected++
		return
	}

	p.UserID = userID
	p.ProspectID = uuid.NewString()
	p.ApprovalStatus = domain.ApprovalPending
	p.InfluenceScore = InfluenceScore(&p)
	p.Scores = ComponentScores(&p)
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	if err := e.gw.SaveProspect(ctx, &p); err != nil {
		summaryAppendFailure(summary, p.Name+": save_failed")
		return
	}
	summary.Saved++
	summary.PerCategory[p.Category]++
}

func (e *Engine) publishEnvelope(ctx context.Context, userID string, summary *Summary) {
	if e.events == nil {
		return
	}
	e.events.Publish(ctx, &domain.ActivityEvent{
		ID:      uuid.NewString(),
		UserID:  userID,
		Type:    domain.ActivityProspect,
		Title:   "Prospect discovery complete",
		Message: "Discovery finished",
		Metadata: map[string]interface{}{
			"categories":   summary.Categories,
			"saved":        summary.Saved,
			"rejected":     summary.Rejected,
			"urls_seen":    summary.URLsSeen,
			"per_category": summary.PerCategory,
			"failures":     len(summary.Failures),
		},
		Timestamp: time.Now().UTC(),
	})
}

func summaryAppendFailure(summary *Summary, failure string) {
	if len(summary.Failures) < 50 {
		summary.Failures = append(summary.Failures, failure)
	}
}
