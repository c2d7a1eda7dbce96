package providers

import (
	"context"
	"net/url"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
)

const googleNewsRSS = "https://news.google.com/rss/search"

// GoogleNewsFeed pulls recent coverage for a topic from the Google News RSS
// endpoint. It is a free supplemental research source: no API key, so it
// stays enabled even when every paid provider is exhausted.
type GoogleNewsFeed struct {
	parser  *gofeed.Parser
	baseURL string
}

// NewGoogleNewsFeed builds the feed source.
func NewGoogleNewsFeed() *GoogleNewsFeed {
	return &GoogleNewsFeed{parser: gofeed.NewParser(), baseURL: googleNewsRSS}
}

// Recent returns up to limit items for the topic, newest first as the feed
// orders them.
func (g *GoogleNewsFeed) Recent(ctx context.Context, topic string, limit int) ([]FeedItem, error) {
	if limit <= 0 {
		limit = 10
	}

	q := url.Values{}
	q.Set("q", topic)
	q.Set("hl", "en-US")
	q.Set("gl", "US")
	q.Set("ceid", "US:en")

	feed, err := g.parser.ParseURLWithContext(g.baseURL+"?"+q.Encode(), ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.E(domain.KindCancelled, "newsfeed_cancelled", "news feed fetch cancelled", err)
		}
		return nil, domain.E(domain.KindTransient, "newsfeed_fetch_failed", "fetching news feed", err)
	}

	items := make([]FeedItem, 0, limit)
	for _, entry := range feed.Items {
		if len(items) >= limit {
			break
		}
		item := FeedItem{Title: entry.Title, URL: entry.Link, Summary: entry.Description}
		if entry.PublishedParsed != nil {
			item.Published = entry.PublishedParsed.UTC().Format(time.RFC3339)
		}
		items = append(items, item)
	}
	return items, nil
}
