package extractors

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
)

// treatmentVocabulary marks residential/outpatient program sites.
var treatmentVocabulary = []string{
	"residential treatment", "rtc", "php", "iop",
	"partial hospitalization", "intensive outpatient", "wilderness therapy",
	"therapeutic boarding",
}

var staffPathMarkers = []string{"/team", "/staff", "/leadership", "/our-team", "/about/team", "/clinical-team"}

// TreatmentCenter extracts clinical leadership from treatment-program
// team/staff pages. There is no second hop: staff pages carry names, roles
// and usually a shared admissions contact.
type TreatmentCenter struct{}

func (e *TreatmentCenter) Name() string { return "treatment-center" }

func (e *TreatmentCenter) Matches(url string) bool {
	hasStaffPath := false
	for _, marker := range staffPathMarkers {
		if strings.Contains(url, marker) {
			hasStaffPath = true
			break
		}
	}
	if !hasStaffPath {
		return false
	}
	for _, word := range []string{"treatment", "recovery", "behavioral", "wilderness", "academy", "rtc"} {
		if strings.Contains(url, word) {
			return true
		}
	}
	return false
}

// MatchesContent is the content-side check the discovery engine applies to
// generic staff pages: program vocabulary promotes them to this extractor.
func (e *TreatmentCenter) MatchesContent(html string) bool {
	lower := strings.ToLower(html)
	for _, term := range treatmentVocabulary {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

var clinicalRoleTokens = []string{
	"director", "clinical", "therapist", "counselor", "psychologist",
	"psychiatrist", "admissions", "program", "founder", "executive",
}

func (e *TreatmentCenter) Extract(_ context.Context, html, pageURL, category string) ([]Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	org := ResolveOrganization(doc, pageURL)
	sharedEmails := MineEmails(doc.Selection, html)
	sharedPhones := MinePhones(doc.Selection, html)

	var results []Result
	doc.Find(".team-member, .staff-member, .bio, .person, article").Each(func(_ int, card *goquery.Selection) {
		name := CleanName(card.Find("h2, h3, h4, .name").First().Text())
		if !ValidPersonName(name) {
			return
		}
		role := strings.TrimSpace(card.Find(".title, .role, .position, p").First().Text())
		if len(role) > 80 {
			role = ""
		}
		if role != "" && !hasAnyToken(role, clinicalRoleTokens) {
			// Non-clinical staff (chefs, drivers) are not referral targets.
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
		if emails := MineEmails(card, cardHTML(card)); len(emails) > 0 {
			p.Contact.Email = emails[0]
		} else if len(sharedEmails) > 0 {
			p.Contact.Email = sharedEmails[0]
		}
		if phones := MinePhones(card, cardHTML(card)); len(phones) > 0 {
			p.Contact.Phone = phones[0]
		} else if len(sharedPhones) > 0 {
			p.Contact.Phone = sharedPhones[0]
		}
		results = append(results, Result{Prospect: p})
	})
	return dedupeResults(results), nil
}

func hasAnyToken(s string, tokens []string) bool {
	lower := strings.ToLower(s)
	for _, tok := range tokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return false
}

// cardHTML renders one card's subtree for the regex miners.
func cardHTML(sel *goquery.Selection) string {
	html, err := sel.Html()
	if err != nil {
		return ""
	}
	return html
}
