package domain

import "time"

// ApprovalStatus gates discovered prospects before outreach may touch them.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Valid reports whether a is a known approval status.
func (a ApprovalStatus) Valid() bool {
	switch a {
	case ApprovalPending, ApprovalApproved, ApprovalRejected:
		return true
	}
	return false
}

// ContactInfo holds mined contact channels. At save time at least one of
// email/phone or a non-empty organization must be present.
type ContactInfo struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// ProspectScores are the component scores behind prioritization.
type ProspectScores struct {
	Fit              float64 `json:"fit"`
	ReferralCapacity float64 `json:"referral_capacity"`
	SignalStrength   float64 `json:"signal_strength"`
}

// DiscoveredProspect is a person extracted from the open web, validated and
// persisted pending user approval.
type DiscoveredProspect struct {
	UserID       string `json:"user_id"`
	ProspectID   string `json:"prospect_id"`
	Name         string `json:"name"`
	Organization string `json:"organization,omitempty"`
	JobTitle     string `json:"job_title,omitempty"`
	SourceURL    string `json:"source_url"`
	Source       string `json:"source"`   // provider label, e.g. "google"
	Category     string `json:"category"` // set by the extractor, never the caller

	Contact        ContactInfo    `json:"contact"`
	InfluenceScore float64        `json:"influence_score"` // [0,100]
	Segment        Segment        `json:"segment,omitempty"`
	ApprovalStatus ApprovalStatus `json:"approval_status"`
	Scores         ProspectScores `json:"scores"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasContactChannel reports whether the save-time contact requirement holds.
func (p *DiscoveredProspect) HasContactChannel() bool {
	return p.Contact.Email != "" || p.Contact.Phone != "" || p.Organization != ""
}

// PriorityScore is the weighted prioritization score used by the outreach
// engine: 0.5·fit + 0.3·referral_capacity + 0.2·signal_strength.
func (p *DiscoveredProspect) PriorityScore() float64 {
	return 0.5*p.Scores.Fit + 0.3*p.Scores.ReferralCapacity + 0.2*p.Scores.SignalStrength
}
