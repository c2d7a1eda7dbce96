// Package providers holds the outbound adapters for web search, page
// scraping, LLM completion, and news feeds, plus the shared concurrency
// and rate-limit plumbing in front of them.
package providers

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// SearchResult is one hit from a web-search provider.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// WebSearch executes a query against a search provider and returns up to
// limit results.
type WebSearch interface {
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

// ScrapedPage is the outcome of fetching one URL.
type ScrapedPage struct {
	URL      string `json:"url"`
	HTML     string `json:"html"`
	Markdown string `json:"markdown,omitempty"`
	Title    string `json:"title,omitempty"`
	Stealth  bool   `json:"stealth"` // fetched via the expensive path
}

// Scrape fetches a page, escalating from the cheap path to stealth only
// after a cheap-path failure.
type Scrape interface {
	Fetch(ctx context.Context, url string) (*ScrapedPage, error)
}

// ChatMessage is one turn of an LLM conversation.
type ChatMessage struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// LLM completes a chat prompt. CompleteJSON additionally instructs the
// model to emit a JSON object and unmarshals it into out; a response that
// does not parse is a permanent error.
type LLM interface {
	Complete(ctx context.Context, messages []ChatMessage) (string, error)
	CompleteJSON(ctx context.Context, messages []ChatMessage, out interface{}) error
}

// FeedItem is one entry from a news feed.
type FeedItem struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Summary   string `json:"summary"`
	Published string `json:"published,omitempty"`
}

// NewsFeed pulls recent items for a topic.
type NewsFeed interface {
	Recent(ctx context.Context, topic string, limit int) ([]FeedItem, error)
}

// Semaphores caps in-flight calls per provider class so a fan-out cannot
// starve the process or trip provider abuse detection.
type Semaphores struct {
	Search *semaphore.Weighted
	Scrape *semaphore.Weighted
	LLM    *semaphore.Weighted
}

// NewSemaphores builds the per-class caps; non-positive values fall back
// to the defaults (search 4, scrape 2, llm 4).
func NewSemaphores(search, scrape, llm int) *Semaphores {
	if search <= 0 {
		search = 4
	}
	if scrape <= 0 {
		scrape = 2
	}
	if llm <= 0 {
		llm = 4
	}
	return &Semaphores{
		Search: semaphore.NewWeighted(int64(search)),
		Scrape: semaphore.NewWeighted(int64(scrape)),
		LLM:    semaphore.NewWeighted(int64(llm)),
	}
}
