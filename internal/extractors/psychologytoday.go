package extractors

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
)

// PsychologyToday handles psychologytoday.com therapist listings and
// profiles. Listing pages produce partial results with profile URLs for
// the second hop; profile pages produce complete prospects.
type PsychologyToday struct{}

func (e *PsychologyToday) Name() string { return "psychology-today" }

func (e *PsychologyToday) Matches(url string) bool {
	return strings.Contains(url, "psychologytoday.com")
}

func (e *PsychologyToday) Extract(_ context.Context, html, pageURL, category string) ([]Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	if e.isListing(pageURL, doc) {
		return e.extractListing(doc, pageURL, category), nil
	}
	return e.extractProfile(doc, html, pageURL, category), nil
}

func (e *PsychologyToday) isListing(pageURL string, doc *goquery.Document) bool {
	if strings.Contains(strings.ToLower(pageURL), "/therapists") && !strings.Contains(pageURL, "/therapists/") {
		return true
	}
	return doc.Find(".results-row, [data-testid='results-row'], .profile-listing").Length() > 0
}

func (e *PsychologyToday) extractListing(doc *goquery.Document, pageURL, category string) []Result {
	var results []Result
	doc.Find(".results-row, [data-testid='results-row'], .profile-listing").Each(func(_ int, row *goquery.Selection) {
		nameSel := row.Find(".profile-title, h2 a, h3 a").First()
		name := CleanName(nameSel.Text())
		if !ValidPersonName(name) {
			return
		}
		href, _ := nameSel.Attr("href")
		if href == "" {
			href, _ = row.Find("a").First().Attr("href")
		}
		if href == "" {
			return
		}
		results = append(results, Result{
			Prospect: domain.DiscoveredProspect{
				Name:      name,
				JobTitle:  strings.TrimSpace(row.Find(".profile-subtitle, .credentials").First().Text()),
				SourceURL: pageURL,
				Source:    e.Name(),
				Category:  category,
			},
			ProfileURL: AbsoluteURL(pageURL, href),
			Partial:    true,
		})
	})
	return dedupeResults(results)
}

func (e *PsychologyToday) extractProfile(doc *goquery.Document, html, pageURL, category string) []Result {
	name := CleanName(doc.Find("h1").First().Text())
	if !ValidPersonName(name) {
		return nil
	}

	p := domain.DiscoveredProspect{
		Name:           name,
		JobTitle:       strings.TrimSpace(doc.Find(".profile-title-credentials, .suffix, h2").First().Text()),
		Organization:   ResolveOrganization(doc, pageURL),
		SourceURL:      pageURL,
		Source:         e.Name(),
		Category:       category,
		ApprovalStatus: domain.ApprovalPending,
		CreatedAt:      time.Now().UTC(),
	}
	if emails := MineEmails(doc.Selection, html); len(emails) > 0 {
		p.Contact.Email = emails[0]
	}
	if phones := MinePhones(doc.Selection, html); len(phones) > 0 {
		p.Contact.Phone = phones[0]
	}
	return []Result{{Prospect: p}}
}
