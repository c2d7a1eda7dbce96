package outreach

import (
	"math"
	"sort"
	"strings"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
)

// segmentAffinity maps role/industry vocabulary to the segment a prospect
// naturally belongs to. First match wins within a segment list; segment
// order decides cross-segment collisions.
var segmentAffinity = []struct {
	segment domain.Segment
	tokens  []string
}{
	{domain.SegmentStealthFounder, []string{
		"founder", "ceo", "cto", "startup", "edtech", "investor",
	}},
	{domain.SegmentReferralNetwork, []string{
		"psycholog", "psychiatr", "therap", "counsel", "clinical",
		"treatment", "admissions", "social worker", "behavioral",
	}},
	{domain.SegmentThoughtLeadership, []string{
		"head of school", "principal", "dean", "superintendent",
		"teacher", "educator", "coach", "attache", "ambassador",
		"consul", "director",
	}},
}

// AssignSegment returns the prospect's primary-affinity segment based on
// role and category vocabulary. Deterministic: same prospect, same answer.
func AssignSegment(p *domain.DiscoveredProspect) domain.Segment {
	haystack := strings.ToLower(p.JobTitle + " " + p.Category + " " + p.Organization)
	for _, aff := range segmentAffinity {
		for _, tok := range aff.tokens {
			if strings.Contains(haystack, tok) {
				return aff.segment
			}
		}
	}
	return domain.SegmentReferralNetwork
}

// segmentTargets converts the target mix into absolute caps for n
// prospects. The stealth share is carved out first (config-overridable),
// the remainder splits evenly between referral and thought leadership,
// extra seat to referral.
func segmentTargets(n int, stealthRatio float64) map[domain.Segment]int {
	if stealthRatio <= 0 {
		stealthRatio = domain.DefaultSegmentDistribution[domain.SegmentStealthFounder]
	}
	stealth := int(math.Round(float64(n) * stealthRatio))
	if stealth > n {
		stealth = n
	}
	rest := n - stealth
	referral := (rest + 1) / 2
	return map[domain.Segment]int{
		domain.SegmentStealthFounder:    stealth,
		domain.SegmentReferralNetwork:   referral,
		domain.SegmentThoughtLeadership: rest - referral,
	}
}

// FitSegments assigns every prospect a segment, fitting the target
// distribution while preserving primary affinity where the caps allow.
// Processing order is influence desc, prospect_id asc, so the assignment
// is stable across runs. The input slice is mutated in place and returned
// grouped by segment.
func FitSegments(prospects []domain.DiscoveredProspect, stealthRatio float64) map[domain.Segment][]domain.DiscoveredProspect {
	sort.SliceStable(prospects, func(i, j int) bool {
		if prospects[i].InfluenceScore != prospects[j].InfluenceScore {
			return prospects[i].InfluenceScore > prospects[j].InfluenceScore
		}
		return prospects[i].ProspectID < prospects[j].ProspectID
	})

	targets := segmentTargets(len(prospects), stealthRatio)
	counts := map[domain.Segment]int{}
	out := map[domain.Segment][]domain.DiscoveredProspect{}

	for i := range prospects {
		seg := AssignSegment(&prospects[i])
		if counts[seg] >= targets[seg] {
			seg = mostUnderTarget(counts, targets)
		}
		counts[seg]++
		prospects[i].Segment = seg
		out[seg] = append(out[seg], prospects[i])
	}
	return out
}

// mostUnderTarget picks the segment with the largest remaining headroom,
// canonical segment order breaking ties.
func mostUnderTarget(counts, targets map[domain.Segment]int) domain.Segment {
	best := domain.Segments[0]
	bestRoom := targets[best] - counts[best]
	for _, seg := range domain.Segments[1:] {
		if room := targets[seg] - counts[seg]; room > bestRoom {
			best, bestRoom = seg, room
		}
	}
	return best
}

// Prioritize filters prospects whose priority score clears the configured
// minimum and orders them score desc, prospect_id asc.
func Prioritize(prospects []domain.DiscoveredProspect, minScore float64) []domain.DiscoveredProspect {
	kept := make([]domain.DiscoveredProspect, 0, len(prospects))
	for _, p := range prospects {
		if p.PriorityScore() >= minScore {
			kept = append(kept, p)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		si, sj := kept[i].PriorityScore(), kept[j].PriorityScore()
		if si != sj {
			return si > sj
		}
		return kept[i].ProspectID < kept[j].ProspectID
	})
	return kept
}
