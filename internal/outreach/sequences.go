package outreach

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/osteele/liquid"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
)

// templateFamilies hold the per-segment message variants, keyed by step
// family (connection_request, initial_dm, followup). Followup steps past
// the family size cycle through the followup variants.
var templateFamilies = map[domain.Segment]map[string][]string{
	domain.SegmentReferralNetwork: {
		"connection_request": {
			"Hi {{ name }}, I work with families navigating adolescent mental health and keep hearing good things about {{ company }}. Would love to connect.",
			"Hi {{ name }}, your work as {{ role }} at {{ company }} overlaps a lot with the families I support. Connecting so we can compare notes.",
		},
		"initial_dm": {
			"Thanks for connecting, {{ name }}. I partner with clinicians on {{ outreach_angle }} — would a short call to see if there's a fit be useful?",
			"Appreciate the connection, {{ name }}. I'm building {{ outreach_angle }} and {{ company }} comes up often as a trusted name. Open to a quick chat?",
			"Hi {{ name }} — many of the families I work with need exactly what {{ company }} offers. I'd love 15 minutes to talk about {{ outreach_angle }}.",
		},
		"followup": {
			"Hi {{ name }}, circling back on my last note about {{ outreach_angle }}. Happy to share how other practices are using it.",
			"{{ name }}, no rush — just keeping this on your radar. The referral fit with {{ company }} still looks strong to me.",
			"Last nudge from me, {{ name }}. If the timing is wrong for {{ company }}, say the word and I'll check back next quarter.",
		},
	},
	domain.SegmentThoughtLeadership: {
		"connection_request": {
			"Hi {{ name }}, I write about AI in education and your perspective as {{ role }} at {{ company }} is one I'd like in my network.",
			"Hi {{ name }}, I follow the conversation {{ company }} is shaping in education — connecting to keep learning from it.",
		},
		"initial_dm": {
			"Thanks for connecting, {{ name }}. I'm publishing a series on {{ outreach_angle }} and would value your take as {{ role }}.",
			"{{ name }}, I'm collecting practitioner views on {{ outreach_angle }} for an upcoming piece. Could I ask you two questions?",
			"Glad to be connected, {{ name }}. Your angle from {{ company }} on {{ outreach_angle }} would make the discussion much sharper.",
		},
		"followup": {
			"Hi {{ name }}, following up — the piece on {{ outreach_angle }} is taking shape and a quote from {{ company }} would land well.",
			"{{ name }}, still keen to include your perspective on {{ outreach_angle }}. Even a two-line reply works.",
		},
	},
	domain.SegmentStealthFounder: {
		"connection_request": {
			"Hi {{ name }}, building something new at the edge of AI and adolescent education — your work at {{ company }} is exactly the world it lives in.",
			"Hi {{ name }}, fellow builder here. Connecting with {{ role }}s who understand this space before we announce.",
		},
		"initial_dm": {
			"Thanks for connecting, {{ name }}. We're quietly working on {{ outreach_angle }} and I'd value an early reaction from someone at {{ company }}.",
			"{{ name }}, we're pre-launch on {{ outreach_angle }}. Would you be open to a candid 20-minute feedback call under the radar?",
		},
		"followup": {
			"Hi {{ name }}, still heads-down on {{ outreach_angle }} — the offer of an early look stands.",
			"{{ name }}, one more ping before we open the beta. Early access for {{ company }} is on the table.",
		},
	},
}

// outreachAngles phrase the value proposition per segment.
var outreachAngles = map[domain.Segment]string{
	domain.SegmentReferralNetwork:   "a referral partnership for families navigating adolescent mental health and school placement",
	domain.SegmentThoughtLeadership: "how AI is changing personalized education",
	domain.SegmentStealthFounder:    "an AI-driven personalized education platform",
}

var liquidEngine = liquid.NewEngine()

// GenerateSequence renders a full outreach sequence for one prospect.
// Each step carries variantsPerStep rendered variants (clamped to 2..3,
// bounded by the template family size).
func GenerateSequence(p *domain.DiscoveredProspect, seqType domain.SequenceType, variantsPerStep int, now time.Time) (*domain.OutreachSequence, error) {
	if !seqType.Valid() {
		return nil, domain.E(domain.KindValidation, "outreach_bad_sequence_type", "unknown sequence type "+string(seqType), nil)
	}
	seg := p.Segment
	if !seg.Valid() {
		seg = AssignSegment(p)
	}
	if variantsPerStep < 2 {
		variantsPerStep = 2
	}
	if variantsPerStep > 3 {
		variantsPerStep = 3
	}

	bindings := liquid.Bindings{
		"name":           firstName(p.Name),
		"role":           defaultStr(p.JobTitle, "your role"),
		"company":        defaultStr(p.Organization, "your organization"),
		"outreach_angle": outreachAngles[seg],
	}

	family := templateFamilies[seg]
	stepNames := seqType.StepNames()
	steps := make([]domain.SequenceStep, 0, len(stepNames))
	for i, stepName := range stepNames {
		variants, err := renderVariants(family[familyKey(stepName)], i, variantsPerStep, bindings)
		if err != nil {
			return nil, domain.E(domain.KindPermanent, "outreach_template_failed", "rendering "+stepName, err)
		}
		steps = append(steps, domain.SequenceStep{
			Name:     stepName,
			Variants: variants,
			SendAt:   now.AddDate(0, 0, i*3),
			Status:   domain.StepNotSent,
		})
	}

	return &domain.OutreachSequence{
		UserID:       p.UserID,
		SequenceID:   uuid.NewString(),
		ProspectID:   p.ProspectID,
		SequenceType: seqType,
		Segment:      seg,
		Steps:        steps,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// familyKey collapses followup_N steps onto the shared followup family.
func familyKey(stepName string) string {
	if strings.HasPrefix(stepName, "followup") {
		return "followup"
	}
	return stepName
}

// renderVariants renders count variants, rotating the family by stepIndex
// so consecutive followups don't repeat the same opener.
func renderVariants(family []string, stepIndex, count int, bindings liquid.Bindings) ([]string, error) {
	if len(family) == 0 {
		return nil, domain.E(domain.KindPermanent, "outreach_no_templates", "empty template family", nil)
	}
	if count > len(family) {
		count = len(family)
	}
	out := make([]string, 0, count)
	for v := 0; v < count; v++ {
		tpl := family[(stepIndex+v)%len(family)]
		rendered, err := liquidEngine.ParseAndRenderString(tpl, bindings)
		if err != nil {
			return nil, err
		}
		out = append(out, rendered)
	}
	return out, nil
}

func firstName(full string) string {
	fields := strings.Fields(full)
	if len(fields) == 0 {
		return "there"
	}
	return fields[0]
}

func defaultStr(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
