package extractors

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
)

var sportsVocabulary = []string{
	"soccer", "football", "basketball", "baseball", "lacrosse", "tennis",
	"swim", "hockey", "volleyball", "athletic", "fc", "academy", "club",
}

// YouthSports extracts coaching staff from club and academy rosters.
type YouthSports struct{}

func (e *YouthSports) Name() string { return "youth-sports" }

func (e *YouthSports) Matches(url string) bool {
	hasCoachPath := strings.Contains(url, "/coaches") || strings.Contains(url, "/coaching-staff") ||
		(strings.Contains(url, "/team") && !strings.Contains(url, "/teams/"))
	if !hasCoachPath {
		return false
	}
	return hasAnyToken(url, sportsVocabulary)
}

var coachingRoleTokens = []string{
	"coach", "director", "trainer", "manager", "coordinator",
}

func (e *YouthSports) Extract(_ context.Context, html, pageURL, category string) ([]Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	org := ResolveOrganization(doc, pageURL)
	sharedEmails := MineEmails(doc.Selection, html)
	sharedPhones := MinePhones(doc.Selection, html)

	var results []Result
	doc.Find(".coach, .staff-member, .team-member, .roster-item, li, article").Each(func(_ int, card *goquery.Selection) {
		name := CleanName(card.Find("h2, h3, h4, .name, strong").First().Text())
		if name == "" {
			// Roster lines like "Jane Doe — Head Coach U14".
			text := strings.TrimSpace(card.Text())
			if len(text) > 120 || !hasAnyToken(text, coachingRoleTokens) {
				return
			}
			for _, sep := range []string{" — ", " - ", " – ", ":"} {
				if i := strings.Index(text, sep); i > 0 {
					name = CleanName(text[:i])
					break
				}
			}
		}
		if !ValidPersonName(name) {
			return
		}

		role := strings.TrimSpace(card.Find(".title, .role, .position, em, p").First().Text())
		if role == "" || len(role) > 80 {
			role = "Coach"
		}
		if !hasAnyToken(role, coachingRoleTokens) {
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
