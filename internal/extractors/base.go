package extractors

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// credentialTokens are degree/credential strings that look like capitalized
// names but are not.
var credentialTokens = map[string]bool{
	"phd": true, "psyd": true, "md": true, "do": true, "lcsw": true,
	"lmft": true, "lpc": true, "lpcc": true, "msw": true, "rn": true,
	"np": true, "pa": true, "ma": true, "ms": true, "edd": true,
	"mba": true, "cfa": true, "esq": true, "jr": true, "sr": true,
	"ii": true, "iii": true, "iv": true,
}

// nameBadWords reject common page furniture that passes the shape check.
var nameBadWords = map[string]bool{
	"privacy": true, "policy": true, "terms": true, "conditions": true,
	"contact": true, "about": true, "home": true, "services": true,
	"insurance": true, "appointment": true, "appointments": true,
	"treatment": true, "center": true, "clinic": true, "hospital": true,
	"therapy": true, "counseling": true, "admissions": true,
	"verified": true, "sponsored": true, "featured": true, "read": true,
	"more": true, "view": true, "profile": true, "learn": true,
	"find": true, "search": true, "browse": true, "login": true,
	"academy": true, "institute": true, "university": true, "school": true,
	"staff": true, "team": true, "directory": true, "locations": true,
}

// streetSuffixes flag address-like strings; a handful of real surname
// collisions stay allowed.
var streetSuffixes = map[string]bool{
	"street": true, "avenue": true, "boulevard": true, "drive": true,
	"lane": true, "road": true, "court": true, "plaza": true,
	"suite": true, "floor": true, "heights": true,
}

var surnameAllowList = map[string]bool{
	"lane": true, "court": true,
}

// verbStarters catch sentence fragments like "Meet Our" or "Schedule A".
var verbStarters = map[string]bool{
	"meet": true, "schedule": true, "book": true, "call": true,
	"get": true, "start": true, "join": true, "request": true,
	"welcome": true, "discover": true, "explore": true,
}

var nameParticles = map[string]bool{
	"van": true, "von": true, "de": true, "del": true, "der": true,
	"da": true, "di": true, "la": true, "le": true, "mc": true, "st": true,
}

// normalizeNameToken strips credentials and punctuation from one token.
func normalizeNameToken(tok string) string {
	return strings.Trim(tok, ".,()|-–")
}

// ValidPersonName reports whether s looks like a real person's name:
// at least two capitalized words, none a credential or bad word, not an
// address, not a verb phrase. Trailing credential tokens ("Jane Doe, PhD")
// are tolerated but do not count toward the two words.
func ValidPersonName(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 60 {
		return false
	}
	// Drop everything after the first comma: credentials live there.
	if i := strings.Index(s, ","); i > 0 {
		s = s[:i]
	}

	tokens := strings.Fields(s)
	if len(tokens) < 2 || len(tokens) > 5 {
		return false
	}
	if verbStarters[strings.ToLower(tokens[0])] {
		return false
	}

	capitalized := 0
	for _, tok := range tokens {
		tok = normalizeNameToken(tok)
		if tok == "" {
			return false
		}
		lower := strings.ToLower(tok)
		if credentialTokens[lower] {
			continue
		}
		if nameBadWords[lower] {
			return false
		}
		if streetSuffixes[lower] && !surnameAllowList[lower] {
			return false
		}
		if containsDigit(tok) {
			return false
		}
		if nameParticles[lower] {
			capitalized++ // "van", "de" etc. count without capitalization
			continue
		}
		r := rune(tok[0])
		if r < 'A' || r > 'Z' {
			return false
		}
		capitalized++
	}
	return capitalized >= 2
}

func containsDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}

// CleanName normalizes a raw extracted name: trims honorifics ("Dr."),
// whitespace, and trailing credential lists.
func CleanName(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"Dr. ", "Dr ", "Prof. ", "Prof "} {
		s = strings.TrimPrefix(s, prefix)
	}
	if i := strings.Index(s, ","); i > 0 {
		s = s[:i]
	}
	return strings.Join(strings.Fields(s), " ")
}

var (
	emailRE      = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	obfuscatedRE = regexp.MustCompile(`(?i)([a-zA-Z0-9._%+-]+)\s*[\(\[]\s*at\s*[\)\]]\s*([a-zA-Z0-9.-]+)\s*[\(\[]\s*dot\s*[\)\]]\s*([a-zA-Z]{2,})`)
)

// genericEmailPrefixes are demoted: kept only when nothing better exists.
var genericEmailPrefixes = map[string]bool{
	"info": true, "contact": true, "admin": true, "office": true,
	"hello": true, "support": true, "admissions": true, "frontdesk": true,
	"noreply": true, "no-reply": true, "webmaster": true,
}

// MineEmails returns candidate emails from a parsed page or fragment,
// best first. It checks mailto links, visible text, and (at)/[dot]
// obfuscations, and demotes generic prefixes behind personal ones.
func MineEmails(doc *goquery.Selection, rawHTML string) []string {
	seen := map[string]bool{}
	var personal, generic []string

	add := func(email string) {
		email = strings.ToLower(strings.TrimSpace(email))
		if email == "" || seen[email] {
			return
		}
		// Obvious image/asset false positives from the regex.
		for _, ext := range []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp"} {
			if strings.HasSuffix(email, ext) {
				return
			}
		}
		seen[email] = true
		prefix := email[:strings.Index(email, "@")]
		if genericEmailPrefixes[prefix] {
			generic = append(generic, email)
		} else {
			personal = append(personal, email)
		}
	}

	doc.Find(`a[href^="mailto:"]`).Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		addr := strings.TrimPrefix(href, "mailto:")
		if i := strings.Index(addr, "?"); i >= 0 {
			addr = addr[:i]
		}
		add(addr)
	})

	for _, m := range emailRE.FindAllString(rawHTML, 20) {
		add(m)
	}
	for _, m := range obfuscatedRE.FindAllStringSubmatch(rawHTML, 10) {
		add(m[1] + "@" + m[2] + "." + m[3])
	}

	return append(personal, generic...)
}

var phoneDigitsRE = regexp.MustCompile(`[\d\+\(\)\-\.\s]{10,}`)

// NormalizePhone canonicalizes a raw phone string to an E.164-like form.
// Ten-digit US numbers gain +1; numbers already carrying a country code
// keep it. Returns "" when the digit count is implausible.
func NormalizePhone(raw string) string {
	var digits strings.Builder
	hasPlus := strings.HasPrefix(strings.TrimSpace(raw), "+")
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	switch {
	case len(d) == 10:
		return "+1" + d
	case len(d) == 11 && strings.HasPrefix(d, "1"):
		return "+" + d
	case len(d) >= 11 && len(d) <= 15 && hasPlus:
		return "+" + d
	default:
		return ""
	}
}

// MinePhones returns normalized phone candidates from tel: links and text.
func MinePhones(doc *goquery.Selection, rawHTML string) []string {
	seen := map[string]bool{}
	var out []string

	add := func(raw string) {
		if p := NormalizePhone(raw); p != "" && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	doc.Find(`a[href^="tel:"]`).Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		add(strings.TrimPrefix(href, "tel:"))
	})
	for _, m := range phoneDigitsRE.FindAllString(rawHTML, 20) {
		add(m)
	}
	return out
}

// directoryBrands are aggregator names that must never be taken as a
// prospect's organization.
var directoryBrands = map[string]bool{
	"psychology today": true, "healthgrades": true, "zocdoc": true,
	"vitals": true, "webmd": true, "docspot": true, "yelp": true,
	"google": true, "linkedin": true, "facebook": true, "yellowpages": true,
}

var practicePatternRE = regexp.MustCompile(`(?i)([A-Z][A-Za-z&'\. ]{2,60}(?:Center|Clinic|Practice|Associates|Group|Institute|Academy|Wellness|Counseling|Psychiatry|Psychology|Therapy))`)

// ResolveOrganization walks the resolution chain: og:site_name → JSON-LD →
// title/h1 → breadcrumb → practice-name patterns → domain fallback.
// Directory brand names are discarded at every step.
func ResolveOrganization(doc *goquery.Document, pageURL string) string {
	if org := metaContent(doc, `meta[property="og:site_name"]`); acceptOrg(org) {
		return org
	}
	if org := jsonLDOrgName(doc); acceptOrg(org) {
		return org
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		if org := orgFromTitle(title); acceptOrg(org) {
			return org
		}
		// Separator-free titles name the site itself unless they are a
		// person's profile.
		if acceptOrg(title) && !ValidPersonName(title) {
			return title
		}
	}
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" && !ValidPersonName(h1) {
		if acceptOrg(h1) {
			return h1
		}
	}
	if crumb := lastBreadcrumb(doc); acceptOrg(crumb) {
		return crumb
	}
	if html, err := doc.Html(); err == nil {
		if m := practicePatternRE.FindString(html); acceptOrg(m) {
			return strings.TrimSpace(m)
		}
	}
	return orgFromDomain(pageURL)
}

// genericOrgWords are page furniture that sometimes lands in the title or
// og:site_name slot.
var genericOrgWords = map[string]bool{
	"staff": true, "team": true, "our team": true, "leadership": true,
	"home": true, "about": true, "about us": true, "contact": true,
	"contact us": true, "directory": true,
}

func acceptOrg(org string) bool {
	org = strings.TrimSpace(org)
	if org == "" || len(org) > 80 {
		return false
	}
	lower := strings.ToLower(org)
	return !directoryBrands[lower] && !genericOrgWords[lower]
}

func metaContent(doc *goquery.Document, selector string) string {
	content, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(content)
}

// jsonLDOrgName pulls the name from the first Organization-typed JSON-LD
// block on the page.
func jsonLDOrgName(doc *goquery.Document) string {
	var name string
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		var payload struct {
			Type string `json:"@type"`
			Name string `json:"name"`
		}
		if err := json.Unmarshal([]byte(sel.Text()), &payload); err != nil {
			return true
		}
		switch payload.Type {
		case "Organization", "MedicalOrganization", "MedicalClinic", "LocalBusiness", "Physician":
			if payload.Name != "" {
				name = payload.Name
				return false
			}
		}
		return true
	})
	return strings.TrimSpace(name)
}

// orgFromTitle takes the segment after the last separator: profile titles
// read "Jane Doe, PhD | Lakeside Wellness Center".
func orgFromTitle(title string) string {
	for _, sep := range []string{" | ", " — ", " - ", " – "} {
		if i := strings.LastIndex(title, sep); i >= 0 {
			return strings.TrimSpace(title[i+len(sep):])
		}
	}
	return ""
}

func lastBreadcrumb(doc *goquery.Document) string {
	var crumb string
	doc.Find(`nav[aria-label="breadcrumb"] li, .breadcrumb li, .breadcrumbs li`).Each(func(_ int, sel *goquery.Selection) {
		if text := strings.TrimSpace(sel.Text()); text != "" {
			crumb = text
		}
	})
	return crumb
}

// orgFromDomain derives a last-resort organization from the hostname:
// "lakesidewellness.com" → "Lakesidewellness".
func orgFromDomain(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	if i := strings.Index(host, "."); i > 0 {
		host = host[:i]
	}
	if host == "" || directoryBrands[host] {
		return ""
	}
	return strings.ToUpper(host[:1]) + host[1:]
}

// AbsoluteURL resolves href against the page URL.
func AbsoluteURL(pageURL, href string) string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// CanonicalURL lowercases host, strips fragments, query trackers, and a
// trailing slash so the same page never enters the pipeline twice.
func CanonicalURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	q := u.Query()
	for key := range q {
		if strings.HasPrefix(key, "utm_") || key == "ref" || key == "fbclid" || key == "gclid" {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}

// dedupeResults drops later duplicates by (name, organization).
func dedupeResults(results []Result) []Result {
	seen := map[string]bool{}
	out := results[:0]
	for _, r := range results {
		key := strings.ToLower(r.Prospect.Name) + "\x00" + strings.ToLower(r.Prospect.Organization)
		if r.Prospect.Name != "" && seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}
