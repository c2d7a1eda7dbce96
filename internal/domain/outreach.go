package domain

import "time"

// SequenceType selects the step set of an outreach sequence.
type SequenceType string

const (
	SequenceThreeStep SequenceType = "3-step"
	SequenceFiveStep  SequenceType = "5-step"
	SequenceSevenStep SequenceType = "7-step"
	SequenceSoftNudge SequenceType = "soft_nudge"
	SequenceDirectCTA SequenceType = "direct_cta"
)

// Valid reports whether t is a known sequence type.
func (t SequenceType) Valid() bool {
	switch t {
	case SequenceThreeStep, SequenceFiveStep, SequenceSevenStep, SequenceSoftNudge, SequenceDirectCTA:
		return true
	}
	return false
}

// StepNames returns the ordered step identifiers for the sequence type.
// Every sequence opens with a connection request and an initial DM;
// followups fill out the remaining steps.
func (t SequenceType) StepNames() []string {
	switch t {
	case SequenceThreeStep:
		return []string{"connection_request", "initial_dm", "followup_1"}
	case SequenceFiveStep:
		return []string{"connection_request", "initial_dm", "followup_1", "followup_2", "followup_3"}
	case SequenceSevenStep:
		return []string{"connection_request", "initial_dm", "followup_1", "followup_2", "followup_3", "followup_4", "followup_5"}
	case SequenceSoftNudge:
		return []string{"connection_request", "initial_dm", "followup_1", "followup_2"}
	case SequenceDirectCTA:
		return []string{"connection_request", "initial_dm"}
	}
	return nil
}

// StepStatus is the per-step delivery state machine:
// not_sent → sent → delivered → (opened)? → (replied | no_response)
// → (meeting_booked | not_interested).
type StepStatus string

const (
	StepNotSent       StepStatus = "not_sent"
	StepSent          StepStatus = "sent"
	StepDelivered     StepStatus = "delivered"
	StepOpened        StepStatus = "opened"
	StepReplied       StepStatus = "replied"
	StepNoResponse    StepStatus = "no_response"
	StepMeetingBooked StepStatus = "meeting_booked"
	StepNotInterested StepStatus = "not_interested"
)

var stepStatusOrder = map[StepStatus]int{
	StepNotSent:       0,
	StepSent:          1,
	StepDelivered:     2,
	StepOpened:        3,
	StepReplied:       4,
	StepNoResponse:    4,
	StepMeetingBooked: 5,
	StepNotInterested: 5,
}

// StepStatusAdvances reports whether moving from from to next is a forward
// transition in the step state machine.
func StepStatusAdvances(from, next StepStatus) bool {
	return stepStatusOrder[next] > stepStatusOrder[from]
}

// SequenceStep is one rung of an outreach sequence with its rendered
// message variants and scheduled send time.
type SequenceStep struct {
	Name     string     `json:"name"` // connection_request, initial_dm, followup_N
	Variants []string   `json:"variants"`
	SendAt   time.Time  `json:"send_at"`
	Status   StepStatus `json:"status"`
}

// OutreachSequence is a per-prospect generated message plan.
type OutreachSequence struct {
	UserID       string         `json:"user_id"`
	SequenceID   string         `json:"sequence_id"`
	ProspectID   string         `json:"prospect_id"`
	SequenceType SequenceType   `json:"sequence_type"`
	Segment      Segment        `json:"segment"`
	Steps        []SequenceStep `json:"steps"`
	CurrentStep  int            `json:"current_step"` // advances only on sent
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// CadenceEntry is one scheduled outreach slot in a weekly cadence.
type CadenceEntry struct {
	Day          string  `json:"day"`         // Mon..Fri
	TimeOfDay    string  `json:"time_of_day"` // HH:MM, user-local
	ProspectID   string  `json:"prospect_id"`
	Segment      Segment `json:"segment"`
	OutreachType string  `json:"outreach_type"` // connection_request or followup
	StepIndex    int     `json:"step_index"`
	VariantIndex int     `json:"variant_index"`
}

// WeeklyCadence is the full slotted plan for one user-week.
type WeeklyCadence struct {
	UserID             string         `json:"user_id"`
	WeekStart          time.Time      `json:"week_start"`
	Entries            []CadenceEntry `json:"entries"`
	ConnectionRequests int            `json:"connection_requests"`
	Followups          int            `json:"followups"`
}
