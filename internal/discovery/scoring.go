package discovery

import (
	"strings"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
)

// categoryWeights bias influence toward categories with high referral
// capacity for the practice.
var categoryWeights = map[string]float64{
	"psychologists":         0.9,
	"psychiatrists":         0.9,
	"therapists":            0.8,
	"treatment_centers":     1.0,
	"private_school_admins": 0.9,
	"school_counselors":     0.8,
	"embassy_contacts":      0.7,
	"youth_sports_coaches":  0.6,
	"edtech_executives":     0.7,
}

var seniorityTokens = []string{
	"director", "head", "chief", "founder", "president", "principal",
	"owner", "partner", "lead", "senior", "executive", "dean",
	"superintendent", "ambassador", "consul",
}

// InfluenceScore combines category weight, role seniority, contact
// completeness, and organization specificity into [0,100]. Deterministic
// given the prospect's fields.
func InfluenceScore(p *domain.DiscoveredProspect) float64 {
	weight, ok := categoryWeights[p.Category]
	if !ok {
		weight = 0.5
	}
	score := 30 * weight

	lowerTitle := strings.ToLower(p.JobTitle)
	for _, tok := range seniorityTokens {
		if strings.Contains(lowerTitle, tok) {
			score += 25
			break
		}
	}

	if p.Contact.Email != "" {
		score += 15
	}
	if p.Contact.Phone != "" {
		score += 10
	}

	score += orgSpecificity(p.Organization) * 20

	if score > 100 {
		score = 100
	}
	return score
}

// orgSpecificity rates how informative the organization string is, 0..1.
// A multi-word named practice beats a bare domain-derived word.
func orgSpecificity(org string) float64 {
	org = strings.TrimSpace(org)
	if org == "" {
		return 0
	}
	words := len(strings.Fields(org))
	switch {
	case words >= 3:
		return 1.0
	case words == 2:
		return 0.7
	default:
		return 0.3
	}
}

// ComponentScores derives the prioritization inputs the outreach engine
// weighs. All three live in [0,1].
func ComponentScores(p *domain.DiscoveredProspect) domain.ProspectScores {
	weight, ok := categoryWeights[p.Category]
	if !ok {
		weight = 0.5
	}

	fit := weight
	lowerTitle := strings.ToLower(p.JobTitle)
	for _, tok := range seniorityTokens {
		if strings.Contains(lowerTitle, tok) {
			fit = clamp01(fit + 0.1)
			break
		}
	}

	referral := weight * 0.8
	if p.Contact.Email != "" || p.Contact.Phone != "" {
		referral = clamp01(referral + 0.2)
	}

	signal := 0.3
	if p.Organization != "" {
		signal += orgSpecificity(p.Organization) * 0.4
	}
	if p.Contact.Email != "" {
		signal += 0.2
	}

	return domain.ProspectScores{
		Fit:              clamp01(fit),
		ReferralCapacity: clamp01(referral),
		SignalStrength:   clamp01(signal),
	}
}

func clamp01(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}
