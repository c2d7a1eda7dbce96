package extractors

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
)

// Embassy extracts consular and cultural staff from embassy and consulate
// sites. These pages are sparse: often just a name list with a shared
// switchboard number, so the organization requirement usually carries the
// save-time validation.
type Embassy struct{}

func (e *Embassy) Name() string { return "embassy" }

func (e *Embassy) Matches(url string) bool {
	for _, marker := range []string{"embassy", "consulate", "emb.", ".emb-", "embajada", "ambassade"} {
		if strings.Contains(url, marker) {
			return true
		}
	}
	return false
}

var diplomaticRoleTokens = []string{
	"ambassador", "consul", "attache", "attaché", "secretary", "counselor",
	"counsellor", "cultural", "education", "minister", "chargé", "charge",
}

func (e *Embassy) Extract(_ context.Context, html, pageURL, category string) ([]Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	org := ResolveOrganization(doc, pageURL)
	sharedPhones := MinePhones(doc.Selection, html)
	sharedEmails := MineEmails(doc.Selection, html)

	var results []Result
	doc.Find("li, tr, .staff, .contact-item, p").Each(func(_ int, item *goquery.Selection) {
		text := strings.TrimSpace(item.Text())
		if text == "" || len(text) > 200 {
			return
		}
		if !hasAnyToken(text, diplomaticRoleTokens) {
			return
		}
		name := embassyNameFromLine(text)
		if !ValidPersonName(name) {
			return
		}

		p := domain.DiscoveredProspect{
			Name:           name,
			JobTitle:       embassyRoleFromLine(text, name),
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

// embassyNameFromLine handles both "Jane Doe, Cultural Attaché" and
// "Cultural Attaché: Jane Doe" orderings.
func embassyNameFromLine(line string) string {
	if i := strings.Index(line, ":"); i >= 0 {
		return CleanName(line[i+1:])
	}
	if i := strings.Index(line, ","); i >= 0 {
		return CleanName(line[:i])
	}
	if i := strings.Index(line, " - "); i >= 0 {
		return CleanName(line[:i])
	}
	return CleanName(line)
}

func embassyRoleFromLine(line, name string) string {
	role := strings.ReplaceAll(line, name, "")
	role = strings.Trim(role, " :,-–")
	if len(role) > 80 {
		return ""
	}
	return role
}
