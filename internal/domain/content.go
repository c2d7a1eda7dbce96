package domain

import "time"

// DraftStatus tracks a content draft toward publication. Publishing itself
// happens outside this system.
type DraftStatus string

const (
	DraftStatusDraft     DraftStatus = "draft"
	DraftStatusApproved  DraftStatus = "approved"
	DraftStatusScheduled DraftStatus = "scheduled"
	DraftStatusPublished DraftStatus = "published"
)

// ContentDraft is a generated post draft linked back to the insights that
// informed it. LinkedResearchIDs must reference insights in
// ready_for_content_generation status.
type ContentDraft struct {
	UserID            string      `json:"user_id"`
	DraftID           string      `json:"draft_id"`
	Pillar            Pillar      `json:"pillar"`
	Topic             string      `json:"topic"`
	TemplateID        string      `json:"template_id"`
	Content           string      `json:"content"`
	SuggestedHashtags []string    `json:"suggested_hashtags"`
	EngagementHook    string      `json:"engagement_hook"`
	Status            DraftStatus `json:"status"`
	LinkedResearchIDs []string    `json:"linked_research_ids"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// ScheduleFrequency is how often a scheduled topic plan replays research.
type ScheduleFrequency string

const (
	FrequencyDaily   ScheduleFrequency = "daily"
	FrequencyWeekly  ScheduleFrequency = "weekly"
	FrequencyMonthly ScheduleFrequency = "monthly"
)

// Valid reports whether f is a known frequency.
func (f ScheduleFrequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

// Interval returns the replay interval for the frequency.
func (f ScheduleFrequency) Interval() time.Duration {
	switch f {
	case FrequencyDaily:
		return 24 * time.Hour
	case FrequencyWeekly:
		return 7 * 24 * time.Hour
	case FrequencyMonthly:
		return 30 * 24 * time.Hour
	}
	return 24 * time.Hour
}

// ScheduledTopicPlan is a stored plan for periodic research replay.
type ScheduledTopicPlan struct {
	UserID    string            `json:"user_id"`
	PlanID    string            `json:"plan_id"`
	Topics    []string          `json:"topics"`
	Frequency ScheduleFrequency `json:"frequency"`
	Pillar    Pillar            `json:"pillar"`
	LastRunAt time.Time         `json:"last_run_at"`
	CreatedAt time.Time         `json:"created_at"`
}

// Due reports whether the plan should run again at now.
func (p *ScheduledTopicPlan) Due(now time.Time) bool {
	if p.LastRunAt.IsZero() {
		return true
	}
	return now.Sub(p.LastRunAt) >= p.Frequency.Interval()
}
