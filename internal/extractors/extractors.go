// Package extractors turns scraped HTML into prospect candidates. A
// registry dispatches each URL to the first matching site-specialized
// extractor, falling back to the generic one. Listing pages yield partial
// results carrying profile URLs for the discovery engine's second hop.
package extractors

import (
	"context"
	"strings"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
)

// Result is one extracted candidate. A partial result has no contacts yet;
// ProfileURL points at the page the engine should scrape to complete it.
type Result struct {
	Prospect   domain.DiscoveredProspect
	ProfileURL string
	Partial    bool
}

// Extractor extracts prospect candidates from one page. The category is
// the one whose fan-out discovered the URL and is stamped onto every
// result untouched.
type Extractor interface {
	Name() string
	Matches(url string) bool
	Extract(ctx context.Context, html, pageURL, category string) ([]Result, error)
}

// Registry dispatches URLs to extractors in registration order.
type Registry struct {
	extractors []Extractor
	fallback   Extractor
}

// NewRegistry builds the default registry with all site extractors and the
// generic fallback.
func NewRegistry() *Registry {
	return &Registry{
		extractors: []Extractor{
			&PsychologyToday{},
			&DoctorDirectory{},
			&TreatmentCenter{},
			&Embassy{},
			&YouthSports{},
		},
		fallback: &Generic{},
	}
}

// For returns the extractor responsible for url.
func (r *Registry) For(url string) Extractor {
	lower := strings.ToLower(url)
	for _, e := range r.extractors {
		if e.Matches(lower) {
			return e
		}
	}
	return r.fallback
}

// Extract dispatches and runs extraction for one page.
func (r *Registry) Extract(ctx context.Context, html, pageURL, category string) ([]Result, error) {
	return r.For(pageURL).Extract(ctx, html, pageURL, category)
}
