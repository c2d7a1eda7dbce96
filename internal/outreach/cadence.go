package outreach

import (
	"hash/fnv"
	"sort"
	"time"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
)

var cadenceDays = []string{"Mon", "Tue", "Wed", "Thu", "Fri"}

var cadenceTimes = []string{"09:00", "10:30", "12:00", "14:00", "16:00"}

// CadenceTargets size one user-week of outreach.
type CadenceTargets struct {
	ConnectionRequests int `json:"target_connection_requests"`
	Followups          int `json:"target_followups"`
}

// BuildWeeklyCadence slots one week of outreach across Mon–Fri. The plan
// is fully deterministic given (userID, weekStart, prospect set): the same
// inputs always produce the same entries in the same order. Connection
// requests are allocated across segments proportional to the target
// distribution; followups go to the highest-priority prospects first.
// currentSteps carries each prospect's sequence position (0 when absent).
func BuildWeeklyCadence(userID string, weekStart time.Time, prospects []domain.DiscoveredProspect, targets CadenceTargets, currentSteps map[string]int, variantsPerStep int) *domain.WeeklyCadence {
	if variantsPerStep < 2 {
		variantsPerStep = 2
	}

	ordered := make([]domain.DiscoveredProspect, len(prospects))
	copy(ordered, prospects)
	sort.SliceStable(ordered, func(i, j int) bool {
		si, sj := ordered[i].PriorityScore(), ordered[j].PriorityScore()
		if si != sj {
			return si > sj
		}
		return ordered[i].ProspectID < ordered[j].ProspectID
	})

	bySegment := map[domain.Segment][]domain.DiscoveredProspect{}
	for _, p := range ordered {
		seg := p.Segment
		if !seg.Valid() {
			seg = AssignSegment(&p)
		}
		bySegment[seg] = append(bySegment[seg], p)
	}

	cadence := &domain.WeeklyCadence{UserID: userID, WeekStart: weekStart}
	seed := fnvHash(userID + weekStart.UTC().Format("2006-01-02"))

	// Connection requests: proportional per-segment quota, spill to other
	// segments when one runs out of prospects.
	quota := segmentQuota(targets.ConnectionRequests)
	taken := map[string]bool{}
	for _, seg := range domain.Segments {
		want := quota[seg]
		for _, p := range bySegment[seg] {
			if want == 0 {
				break
			}
			cadence.Entries = append(cadence.Entries, entryFor(p, "connection_request", 0, seed, variantsPerStep))
			taken[p.ProspectID] = true
			want--
		}
		quota[seg] = want
	}
	for _, p := range ordered {
		if remaining(quota) == 0 {
			break
		}
		if taken[p.ProspectID] {
			continue
		}
		cadence.Entries = append(cadence.Entries, entryFor(p, "connection_request", 0, seed, variantsPerStep))
		taken[p.ProspectID] = true
		drainOne(quota)
	}
	cadence.ConnectionRequests = len(cadence.Entries)

	// Followups: top-priority prospects, cycling when the pool is smaller
	// than the target.
	if len(ordered) > 0 {
		for i := 0; i < targets.Followups; i++ {
			p := ordered[i%len(ordered)]
			step := currentSteps[p.ProspectID]
			if step == 0 {
				step = 1
			}
			cadence.Entries = append(cadence.Entries, entryFor(p, "followup", step, seed, variantsPerStep))
		}
	}
	cadence.Followups = len(cadence.Entries) - cadence.ConnectionRequests

	// Slot assignment: round-robin over weekdays, time row advancing once
	// per full day cycle, offset by the user/week seed.
	for i := range cadence.Entries {
		cadence.Entries[i].Day = cadenceDays[i%len(cadenceDays)]
		cadence.Entries[i].TimeOfDay = cadenceTimes[(int(seed)+i/len(cadenceDays))%len(cadenceTimes)]
	}
	return cadence
}

func entryFor(p domain.DiscoveredProspect, outreachType string, stepIndex int, seed uint32, variantsPerStep int) domain.CadenceEntry {
	seg := p.Segment
	if !seg.Valid() {
		seg = AssignSegment(&p)
	}
	return domain.CadenceEntry{
		ProspectID:   p.ProspectID,
		Segment:      seg,
		OutreachType: outreachType,
		StepIndex:    stepIndex,
		VariantIndex: int((seed + fnvHash(p.ProspectID) + uint32(stepIndex)) % uint32(variantsPerStep)),
	}
}

// segmentQuota splits n connection requests across segments proportional
// to the normalized target distribution, largest remainder keeping the
// total exact.
func segmentQuota(n int) map[domain.Segment]int {
	var total float64
	for _, w := range domain.DefaultSegmentDistribution {
		total += w
	}
	quota := map[domain.Segment]int{}
	type rem struct {
		seg  domain.Segment
		frac float64
	}
	var rems []rem
	assigned := 0
	for _, seg := range domain.Segments {
		exact := float64(n) * domain.DefaultSegmentDistribution[seg] / total
		whole := int(exact)
		quota[seg] = whole
		assigned += whole
		rems = append(rems, rem{seg, exact - float64(whole)})
	}
	sort.SliceStable(rems, func(i, j int) bool { return rems[i].frac > rems[j].frac })
	for i := 0; assigned < n; i++ {
		quota[rems[i%len(rems)].seg]++
		assigned++
	}
	return quota
}

func remaining(quota map[domain.Segment]int) int {
	n := 0
	for _, v := range quota {
		n += v
	}
	return n
}

func drainOne(quota map[domain.Segment]int) {
	for _, seg := range domain.Segments {
		if quota[seg] > 0 {
			quota[seg]--
			return
		}
	}
}

func fnvHash(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}
