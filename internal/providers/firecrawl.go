package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
	"github.com/jrfdy6/aiclone-sub001/internal/pkg/httpretry"
	"github.com/jrfdy6/aiclone-sub001/internal/pkg/logger"
)

const defaultScrapeBaseURL = "https://api.firecrawl.dev/v1"

// hostState tracks per-host politeness and breaker state.
type hostState struct {
	mu          sync.Mutex // serializes fetches to the host
	lastFetch   time.Time
	consecutive int
	openUntil   time.Time
}

// FirecrawlScraper adapts a Firecrawl-compatible scrape API to Scrape.
//
// It tries the cheap fetch path first and escalates to stealth only after
// a cheap-path failure. Per host it allows one in-flight fetch with a
// minimum gap between fetches, and opens a circuit after consecutive
// failures so a dead host stops burning scrape credits.
type FirecrawlScraper struct {
	apiKey  string
	baseURL string
	client  httpretry.HTTPDoer
	clock   Clock
	sems    *Semaphores
	limiter *RateLimiter

	hostGap          time.Duration
	breakerThreshold int
	breakerCooldown  time.Duration

	mu    sync.Mutex
	hosts map[string]*hostState
}

// ScrapeOptions tunes a FirecrawlScraper.
type ScrapeOptions struct {
	BaseURL          string
	HostGap          time.Duration // default 500ms
	BreakerThreshold int           // default 2
	BreakerCooldown  time.Duration // default 5m
	Clock            Clock
	Client           httpretry.HTTPDoer
	Semaphores       *Semaphores
	Limiter          *RateLimiter
}

// NewFirecrawlScraper builds the adapter.
func NewFirecrawlScraper(apiKey string, opts ScrapeOptions) *FirecrawlScraper {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultScrapeBaseURL
	}
	if opts.HostGap <= 0 {
		opts.HostGap = 500 * time.Millisecond
	}
	if opts.BreakerThreshold <= 0 {
		opts.BreakerThreshold = 2
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = 5 * time.Minute
	}
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}
	if opts.Client == nil {
		opts.Client = httpretry.New(nil, 3)
	}
	return &FirecrawlScraper{
		apiKey:           apiKey,
		baseURL:          strings.TrimRight(opts.BaseURL, "/"),
		client:           opts.Client,
		clock:            opts.Clock,
		sems:             opts.Semaphores,
		limiter:          opts.Limiter,
		hostGap:          opts.HostGap,
		breakerThreshold: opts.BreakerThreshold,
		breakerCooldown:  opts.BreakerCooldown,
		hosts:            make(map[string]*hostState),
	}
}

// Enabled reports whether the scrape API key is configured.
func (f *FirecrawlScraper) Enabled() bool { return f.apiKey != "" }

func (f *FirecrawlScraper) host(rawURL string) (*hostState, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, "", domain.E(domain.KindValidation, "scrape_bad_url", "unparseable scrape url", err)
	}
	h := strings.ToLower(u.Host)
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.hosts[h]
	if !ok {
		st = &hostState{}
		f.hosts[h] = st
	}
	return st, h, nil
}

// Fetch scrapes one URL.
func (f *FirecrawlScraper) Fetch(ctx context.Context, rawURL string) (*ScrapedPage, error) {
	if !f.Enabled() {
		return nil, domain.E(domain.KindConfig, "scrape_not_configured", "scrape API key missing", nil)
	}

	st, hostname, err := f.host(rawURL)
	if err != nil {
		return nil, err
	}

	if f.sems != nil {
		if err := f.sems.Scrape.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer f.sems.Scrape.Release(1)
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, "scrape"); err != nil {
			return nil, err
		}
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	now := f.clock.Now()
	if now.Before(st.openUntil) {
		return nil, domain.E(domain.KindUnavailable, "scrape_host_cooling",
			"host "+hostname+" is in breaker cooldown", nil)
	}
	if gap := f.hostGap - now.Sub(st.lastFetch); gap > 0 {
		f.clock.Sleep(gap)
	}
	st.lastFetch = f.clock.Now()

	page, err := f.scrapeOnce(ctx, rawURL, false)
	if err != nil && ctx.Err() == nil && domain.KindOf(err) != domain.KindQuota {
		logger.Debug("cheap scrape failed, escalating to stealth", "url", rawURL, "error", err.Error())
		page, err = f.scrapeOnce(ctx, rawURL, true)
	}

	if err != nil {
		st.consecutive++
		if st.consecutive >= f.breakerThreshold {
			st.openUntil = f.clock.Now().Add(f.breakerCooldown)
			st.consecutive = 0
			logger.Warn("scrape breaker opened", "host", hostname, "cooldown", f.breakerCooldown.String())
		}
		return nil, err
	}

	st.consecutive = 0
	return page, nil
}

type firecrawlRequest struct {
	URL     string   `json:"url"`
	Formats []string `json:"formats"`
	Proxy   string   `json:"proxy,omitempty"`
}

type firecrawlResponse struct {
	Success bool `json:"success"`
	Data    struct {
		HTML     string `json:"html"`
		Markdown string `json:"markdown"`
		Metadata struct {
			Title string `json:"title"`
		} `json:"metadata"`
	} `json:"data"`
	Error string `json:"error"`
}

func (f *FirecrawlScraper) scrapeOnce(ctx context.Context, rawURL string, stealth bool) (*ScrapedPage, error) {
	payload := firecrawlRequest{URL: rawURL, Formats: []string{"html", "markdown"}}
	if stealth {
		payload.Proxy = "stealth"
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/scrape", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.apiKey)
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.E(domain.KindCancelled, "scrape_cancelled", "scrape cancelled", err)
		}
		return nil, domain.E(domain.KindTransient, "scrape_unreachable", "scrape API unreachable", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, domain.E(domain.KindTransient, "scrape_read_failed", "reading scrape response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, httpretry.ClassifyResponse("scrape", resp.StatusCode, respBody)
	}

	var parsed firecrawlResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, domain.E(domain.KindPermanent, "scrape_bad_response", "unparseable scrape response", err)
	}
	if !parsed.Success {
		return nil, domain.E(domain.KindTransient, "scrape_failed", "scrape API reported failure: "+parsed.Error, nil)
	}

	return &ScrapedPage{
		URL:      rawURL,
		HTML:     parsed.Data.HTML,
		Markdown: parsed.Data.Markdown,
		Title:    parsed.Data.Metadata.Title,
		Stealth:  stealth,
	}, nil
}
