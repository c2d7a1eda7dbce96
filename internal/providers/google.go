package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
	"github.com/jrfdy6/aiclone-sub001/internal/pkg/httpretry"
	"github.com/jrfdy6/aiclone-sub001/internal/pkg/logger"
)

const googleSearchEndpoint = "https://www.googleapis.com/customsearch/v1"

// GoogleSearch adapts the Google Custom Search JSON API to WebSearch.
// Requests are field-restricted to keep responses small; a 403 carrying
// dailyLimitExceeded is surfaced as a quota error so callers can degrade
// for the rest of the day.
type GoogleSearch struct {
	apiKey   string
	engineID string
	client   httpretry.HTTPDoer
	endpoint string
	sems     *Semaphores
	limiter  *RateLimiter
}

// NewGoogleSearch builds the adapter. client may be nil (a retrying default
// is used); sems and limiter may be nil when the caller handles gating.
func NewGoogleSearch(apiKey, engineID string, client httpretry.HTTPDoer, sems *Semaphores, limiter *RateLimiter) *GoogleSearch {
	if client == nil {
		client = httpretry.New(nil, 3)
	}
	return &GoogleSearch{
		apiKey:   apiKey,
		engineID: engineID,
		client:   client,
		endpoint: googleSearchEndpoint,
		sems:     sems,
		limiter:  limiter,
	}
}

// Enabled reports whether credentials are configured.
func (g *GoogleSearch) Enabled() bool { return g.apiKey != "" && g.engineID != "" }

type googleSearchResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}

// Search runs one query. The API caps num at 10 per request; larger limits
// are clamped rather than paginated, callers wanting more issue more
// focused queries.
func (g *GoogleSearch) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if !g.Enabled() {
		return nil, domain.E(domain.KindConfig, "search_not_configured", "web search credentials missing", nil)
	}
	if limit <= 0 || limit > 10 {
		limit = 10
	}

	if g.sems != nil {
		if err := g.sems.Search.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer g.sems.Search.Release(1)
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx, "google"); err != nil {
			return nil, err
		}
	}

	params := url.Values{}
	params.Set("key", g.apiKey)
	params.Set("cx", g.engineID)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(limit))
	params.Set("fields", "items(title,link,snippet)")

	// The transport negotiates gzip on its own; setting Accept-Encoding
	// here would disable its transparent decompression.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.E(domain.KindCancelled, "search_cancelled", "search cancelled", err)
		}
		return nil, domain.E(domain.KindTransient, "google_unreachable", "google search unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, domain.E(domain.KindTransient, "google_read_failed", "reading google response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, httpretry.ClassifyResponse("google", resp.StatusCode, body)
	}

	var parsed googleSearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, domain.E(domain.KindPermanent, "google_bad_response",
			fmt.Sprintf("unparseable google response (%d bytes)", len(body)), err)
	}

	results := make([]SearchResult, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item.Link == "" {
			continue
		}
		results = append(results, SearchResult{Title: item.Title, URL: item.Link, Snippet: item.Snippet})
	}

	logger.Debug("google search complete", "query", query, "results", len(results))
	return results, nil
}
