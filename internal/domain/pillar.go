package domain

// Pillar is a strategic content axis. Every insight, draft, and learning
// pattern hangs off exactly one pillar.
type Pillar string

const (
	PillarReferral          Pillar = "referral"
	PillarThoughtLeadership Pillar = "thought_leadership"
	PillarStealthFounder    Pillar = "stealth_founder"
)

// Valid reports whether p is one of the known pillars.
func (p Pillar) Valid() bool {
	switch p {
	case PillarReferral, PillarThoughtLeadership, PillarStealthFounder:
		return true
	}
	return false
}

// Pillars lists all pillars in canonical order.
var Pillars = []Pillar{PillarReferral, PillarThoughtLeadership, PillarStealthFounder}

// AudienceMap is the deterministic pillar → audience-tag mapping.
// Insight.Audiences must always equal AudienceMap[pillar].
var AudienceMap = map[Pillar][]string{
	PillarReferral: {
		"private_school_admins",
		"mental_health_professionals",
		"treatment_centers",
		"school_counselors",
	},
	PillarThoughtLeadership: {
		"edtech_business_leaders",
		"ai_savvy_executives",
		"educators",
	},
	PillarStealthFounder: {
		"early_adopters",
		"investors",
		"stealth_founders",
	},
}

// AudiencesFor returns a copy of the audience tags for a pillar.
func AudiencesFor(p Pillar) []string {
	src := AudienceMap[p]
	out := make([]string, len(src))
	copy(out, src)
	return out
}

// Segment is an outreach audience class with its own templates and
// cadence weights. Assigned by the outreach engine, never at discovery.
type Segment string

const (
	SegmentReferralNetwork   Segment = "referral_network"
	SegmentThoughtLeadership Segment = "thought_leadership"
	SegmentStealthFounder    Segment = "stealth_founder"
)

// Segments lists all segments in canonical order.
var Segments = []Segment{SegmentReferralNetwork, SegmentThoughtLeadership, SegmentStealthFounder}

// Valid reports whether s is one of the known segments.
func (s Segment) Valid() bool {
	switch s {
	case SegmentReferralNetwork, SegmentThoughtLeadership, SegmentStealthFounder:
		return true
	}
	return false
}

// DefaultSegmentDistribution is the canonical target mix for segmentation.
// Stealth founder appears in some planning docs at 10%; the canonical value
// is 5% and is overridable via config.
var DefaultSegmentDistribution = map[Segment]float64{
	SegmentReferralNetwork:   0.50,
	SegmentThoughtLeadership: 0.50,
	SegmentStealthFounder:    0.05,
}

// PACERMix is the default content-generation distribution across pillars.
var PACERMix = map[Pillar]float64{
	PillarReferral:          0.40,
	PillarThoughtLeadership: 0.50,
	PillarStealthFounder:    0.10,
}

// ProspectCategories are the discovery categories the engine can fan out
// across. The extractor tags prospects with the category that discovered
// them; callers never set it directly.
var ProspectCategories = []string{
	"psychologists",
	"psychiatrists",
	"therapists",
	"treatment_centers",
	"private_school_admins",
	"school_counselors",
	"embassy_contacts",
	"youth_sports_coaches",
	"edtech_executives",
}
