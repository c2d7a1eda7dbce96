package research

import (
	"context"
	"strings"
	"time"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
	"github.com/jrfdy6/aiclone-sub001/internal/providers"
)

// llmSynthesis is the JSON shape the LLM source asks for.
type llmSynthesis struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
	Tags      []string `json:"tags"`
}

func (p *Pipeline) llmSource(ctx context.Context, topic string, pillar domain.Pillar) (*domain.ResearchSource, error) {
	prompt := []providers.ChatMessage{
		{Role: "system", Content: "You are a research analyst. Respond with a JSON object: " +
			`{"summary": string, "key_points": [string], "tags": [string]}. ` +
			"Key points are concrete, citable facts. Name specific people with their role and organization where possible."},
		{Role: "user", Content: "Research the topic \"" + topic + "\" for the " + string(pillar) +
			" content pillar aimed at " + strings.Join(domain.AudiencesFor(pillar), ", ") + "."},
	}

	var out llmSynthesis
	if err := p.llm.CompleteJSON(ctx, prompt, &out); err != nil {
		return nil, err
	}
	if out.Summary == "" && len(out.KeyPoints) == 0 {
		return nil, domain.E(domain.KindPermanent, "llm_empty_synthesis", "LLM returned an empty synthesis", nil)
	}
	return &domain.ResearchSource{
		Type:        "llm",
		Summary:     out.Summary,
		KeyPoints:   out.KeyPoints,
		CollectedAt: time.Now().UTC(),
	}, nil
}

// webSource searches the topic and scrapes the top results, folding page
// leads into key points.
func (p *Pipeline) webSource(ctx context.Context, topic string) (*domain.ResearchSource, error) {
	limit := 5
	if p.opts.BatchMode && limit > p.opts.BatchItemCap {
		limit = p.opts.BatchItemCap
	}
	results, err := p.search.Search(ctx, topic, limit)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, domain.E(domain.KindUnavailable, "web_no_results", "no search results for topic", nil)
	}

	src := &domain.ResearchSource{
		Type:        "web",
		URL:         results[0].URL,
		CollectedAt: time.Now().UTC(),
	}
	scraped := 0
	for _, r := range results {
		if scraped >= 3 {
			break
		}
		page, err := p.scraper.Fetch(ctx, r.URL)
		if err != nil {
			if domain.KindOf(err) == domain.KindQuota {
				break // scrape budget gone, keep what we have
			}
			continue
		}
		scraped++
		for _, lead := range pageLeads(page, 4) {
			src.KeyPoints = append(src.KeyPoints, lead)
		}
	}
	for _, r := range results {
		if r.Snippet != "" {
			src.KeyPoints = append(src.KeyPoints, r.Snippet)
		}
	}
	if len(src.KeyPoints) == 0 {
		return nil, domain.E(domain.KindUnavailable, "web_nothing_extracted", "no usable content from web results", nil)
	}
	src.Summary = src.KeyPoints[0]
	return src, nil
}

// siteSearchSource runs pillar-targeted site-restricted queries and uses
// the snippets directly; cheaper than scraping and a useful third voice.
func (p *Pipeline) siteSearchSource(ctx context.Context, topic string, pillar domain.Pillar) (*domain.ResearchSource, error) {
	restrict := siteRestrictFor(pillar)
	results, err := p.search.Search(ctx, topic+" "+restrict, 5)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, domain.E(domain.KindUnavailable, "site_search_no_results", "no site-restricted results", nil)
	}
	src := &domain.ResearchSource{
		Type:        "site_search",
		URL:         results[0].URL,
		CollectedAt: time.Now().UTC(),
	}
	for _, r := range results {
		if r.Snippet != "" {
			src.KeyPoints = append(src.KeyPoints, r.Snippet)
		}
	}
	if len(src.KeyPoints) == 0 {
		return nil, domain.E(domain.KindUnavailable, "site_search_empty", "site-restricted results had no snippets", nil)
	}
	src.Summary = src.KeyPoints[0]
	return src, nil
}

func (p *Pipeline) newsSource(ctx context.Context, topic string) (*domain.ResearchSource, error) {
	limit := 8
	if p.opts.BatchMode && limit > p.opts.BatchItemCap {
		limit = p.opts.BatchItemCap
	}
	items, err := p.feed.Recent(ctx, topic, limit)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, domain.E(domain.KindUnavailable, "newsfeed_empty", "no recent news for topic", nil)
	}
	src := &domain.ResearchSource{
		Type:        "newsfeed",
		URL:         items[0].URL,
		Summary:     items[0].Title,
		CollectedAt: time.Now().UTC(),
	}
	for _, item := range items {
		src.KeyPoints = append(src.KeyPoints, item.Title)
	}
	return src, nil
}

func siteRestrictFor(pillar domain.Pillar) string {
	switch pillar {
	case domain.PillarReferral:
		return "site:psychologytoday.com OR site:nais.org"
	case domain.PillarThoughtLeadership:
		return "site:edsurge.com OR site:edweek.org"
	case domain.PillarStealthFounder:
		return "site:techcrunch.com OR site:ycombinator.com"
	default:
		return ""
	}
}

// pageLeads pulls the first substantial lines from a scraped page's
// markdown as key-point candidates.
func pageLeads(page *providers.ScrapedPage, max int) []string {
	text := page.Markdown
	if text == "" {
		text = page.Title
	}
	var leads []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "#*->_ "))
		if len(line) < 40 || len(line) > 300 {
			continue
		}
		leads = append(leads, line)
		if len(leads) >= max {
			break
		}
	}
	return leads
}
