package extractors

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
)

// Generic is the fallback extractor for pages no specialist claims. It
// looks for name-shaped headings with a nearby role line and mines the
// page for contacts. Precision over recall: a page yielding nothing is
// better than a page yielding furniture.
type Generic struct{}

func (e *Generic) Name() string { return "generic" }

func (e *Generic) Matches(string) bool { return true }

var genericRoleTokens = []string{
	"director", "founder", "ceo", "president", "principal", "head",
	"psychologist", "psychiatrist", "therapist", "counselor", "coach",
	"consultant", "officer", "manager", "dean", "chair",
}

func (e *Generic) Extract(_ context.Context, html, pageURL, category string) ([]Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	org := ResolveOrganization(doc, pageURL)
	sharedEmails := MineEmails(doc.Selection, html)
	sharedPhones := MinePhones(doc.Selection, html)

	var results []Result
	doc.Find("h1, h2, h3, h4, .name, strong").Each(func(_ int, heading *goquery.Selection) {
		name := CleanName(heading.Text())
		if !ValidPersonName(name) {
			return
		}
		role := nearbyRole(heading)
		if role == "" {
			return
		}

		p := domain.DiscoveredProspect{
			Name:           name,
			JobTitle:       role,
			Organization:   org,
			SourceURL:      pageURL,
			Source:         e.Name(),
			Category:       category,
			ApprovalStatus: domain.ApprovalPending,
			CreatedAt:      time.Now().UTC(),
		}
		if len(sharedEmails) > 0 {
			p.Contact.Email = sharedEmails[0]
		}
		if len(sharedPhones) > 0 {
			p.Contact.Phone = sharedPhones[0]
		}
		results = append(results, Result{Prospect: p})
	})
	return dedupeResults(results), nil
}

// nearbyRole returns the first role-looking sibling line after a heading.
func nearbyRole(heading *goquery.Selection) string {
	for _, sel := range []*goquery.Selection{heading.Next(), heading.Parent().Find(".title, .role, em").First()} {
		text := strings.TrimSpace(sel.Text())
		if text != "" && len(text) <= 80 && hasAnyToken(text, genericRoleTokens) {
			return text
		}
	}
	return ""
}
