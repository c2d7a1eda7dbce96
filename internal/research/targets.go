package research

import (
	"regexp"
	"sort"
	"strings"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
)

// pillarVocabulary maps each pillar to the role keywords that make a
// candidate relevant to its audiences.
var pillarVocabulary = map[domain.Pillar][]string{
	domain.PillarReferral: {
		"psychologist", "psychiatrist", "therapist", "counselor",
		"clinical", "admissions", "school", "headmaster", "principal",
		"treatment", "director", "social worker", "mental health",
	},
	domain.PillarThoughtLeadership: {
		"ceo", "founder", "executive", "edtech", "education", "ai",
		"product", "superintendent", "dean", "professor", "researcher",
		"chief", "vp", "head of",
	},
	domain.PillarStealthFounder: {
		"founder", "investor", "angel", "venture", "partner", "builder",
		"entrepreneur", "operator", "advisor",
	},
}

var credentialRE = regexp.MustCompile(`(?i)\b(phd|psyd|md|lcsw|lmft|lpc|edd|mba|ms|ma)\b`)

// personMentionRE matches "Jane Doe, Clinical Director at Lakeside" and the
// looser "Jane Doe of Lakeside" shapes that LLM and news summaries use.
var personMentionRE = regexp.MustCompile(
	`\b([A-Z][a-z]+(?: [A-Z][a-z]+){1,2}),? (?:(?:who is |is )?(?:the |a |an )?([A-Za-z][A-Za-z /&-]{2,40}?) (?:at|of|for) )?([A-Z][A-Za-z0-9&'\. ]{2,50}?)(?:[\.,;\)]|$)`,
)

// ExtractProspectTargets mines candidate people from the sources' text and
// scores them for the pillar, keeping the top keep candidates distinct by
// (name, organization).
func ExtractProspectTargets(sources []domain.ResearchSource, pillar domain.Pillar, keep int) []domain.ProspectTarget {
	if keep <= 0 {
		keep = 20
	}

	type keyed struct {
		target domain.ProspectTarget
	}
	byKey := map[string]keyed{}

	for _, src := range sources {
		text := src.Summary + "\n" + strings.Join(src.KeyPoints, "\n")
		for _, m := range personMentionRE.FindAllStringSubmatch(text, 60) {
			name, role, org := strings.TrimSpace(m[1]), strings.TrimSpace(m[2]), strings.TrimSpace(m[3])
			if role == "" && org == "" {
				continue
			}
			// The loose grammar sometimes captures a sentence tail as org.
			if len(strings.Fields(org)) > 7 {
				org = ""
			}
			if role == "" && looksLikeRole(org, pillar) {
				role, org = org, ""
			}

			t := domain.ProspectTarget{
				Name:            name,
				Role:            role,
				Organization:    org,
				URL:             src.URL,
				PillarRelevance: []domain.Pillar{pillar},
				RelevanceScore:  scoreTarget(name, role, org, src.URL, pillar),
			}
			if t.RelevanceScore <= 0 {
				continue
			}
			key := strings.ToLower(name) + "\x00" + strings.ToLower(org)
			if existing, ok := byKey[key]; !ok || t.RelevanceScore > existing.target.RelevanceScore {
				byKey[key] = keyed{target: t}
			}
		}
	}

	targets := make([]domain.ProspectTarget, 0, len(byKey))
	for _, k := range byKey {
		targets = append(targets, k.target)
	}
	sort.SliceStable(targets, func(i, j int) bool {
		if targets[i].RelevanceScore != targets[j].RelevanceScore {
			return targets[i].RelevanceScore > targets[j].RelevanceScore
		}
		return targets[i].Name < targets[j].Name
	})
	if len(targets) > keep {
		targets = targets[:keep]
	}
	return targets
}

func looksLikeRole(s string, pillar domain.Pillar) bool {
	lower := strings.ToLower(s)
	for _, kw := range pillarVocabulary[pillar] {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// scoreTarget weighs pillar-vocabulary overlap, org+url completeness, and
// credential tokens into [0,1].
func scoreTarget(name, role, org, url string, pillar domain.Pillar) float64 {
	score := 0.0
	lowerRole := strings.ToLower(role)
	for _, kw := range pillarVocabulary[pillar] {
		if strings.Contains(lowerRole, kw) {
			score += 0.5
			break
		}
	}
	if org != "" && url != "" {
		score += 0.3
	} else if org != "" {
		score += 0.15
	}
	if credentialRE.MatchString(name) || credentialRE.MatchString(role) {
		score += 0.2
	}
	if score > 1 {
		score = 1
	}
	return score
}
