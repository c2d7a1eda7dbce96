package extractors

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
)

var doctorDirectoryHosts = []string{
	"healthgrades.com", "zocdoc.com", "vitals.com", "webmd.com", "docspot",
}

// DoctorDirectory handles the big medical directory sites. Their listing
// markup differs but all link doctor cards to /doctor|/physician|/provider
// profile paths.
type DoctorDirectory struct{}

func (e *DoctorDirectory) Name() string { return "doctor-directory" }

func (e *DoctorDirectory) Matches(url string) bool {
	for _, host := range doctorDirectoryHosts {
		if strings.Contains(url, host) {
			return true
		}
	}
	return false
}

func (e *DoctorDirectory) Extract(_ context.Context, html, pageURL, category string) ([]Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var results []Result
	doc.Find("a").Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		if !isProfilePath(href) {
			return
		}
		name := CleanName(link.Text())
		if !ValidPersonName(name) {
			return
		}
		results = append(results, Result{
			Prospect: domain.DiscoveredProspect{
				Name:      name,
				SourceURL: pageURL,
				Source:    e.Name(),
				Category:  category,
			},
			ProfileURL: AbsoluteURL(pageURL, href),
			Partial:    true,
		})
	})

	// A profile page itself: h1 is the doctor, contacts are minable.
	if len(results) == 0 {
		if name := CleanName(doc.Find("h1").First().Text()); ValidPersonName(name) {
			p := domain.DiscoveredProspect{
				Name:           name,
				JobTitle:       strings.TrimSpace(doc.Find(".specialty, [data-qa-target='provider-specialty']").First().Text()),
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
			results = append(results, Result{Prospect: p})
		}
	}
	return dedupeResults(results), nil
}

func isProfilePath(href string) bool {
	lower := strings.ToLower(href)
	for _, marker := range []string{"/doctor/", "/physician/", "/provider/", "/doctors/", "/profile/"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
