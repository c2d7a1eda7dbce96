package domain

import "time"

// ActivityType categorizes realtime events.
type ActivityType string

const (
	ActivityProspect   ActivityType = "prospect"
	ActivityOutreach   ActivityType = "outreach"
	ActivityResearch   ActivityType = "research"
	ActivityInsight    ActivityType = "insight"
	ActivityContent    ActivityType = "content"
	ActivityAutomation ActivityType = "automation"
	ActivityError      ActivityType = "error"
)

// ActivityEvent is one entry in a user's durable activity feed. Events are
// also fanned out to WebSocket clients and matching webhooks.
type ActivityEvent struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"user_id"`
	Type      ActivityType           `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Link      string                 `json:"link,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Read      bool                   `json:"read"`
}

// DefaultWebhookDisableThreshold is how many consecutive delivery failures
// flip a webhook inactive.
const DefaultWebhookDisableThreshold = 5

// Webhook is a per-user outbound delivery target.
type Webhook struct {
	ID                    string         `json:"id"`
	UserID                string         `json:"user_id"`
	URL                   string         `json:"url"`
	EventTypes            []ActivityType `json:"event_types"`
	Secret                string         `json:"secret,omitempty"`
	Active                bool           `json:"active"`
	ConsecutiveFailures   int            `json:"consecutive_failures"`
	DisabledAfterFailures int            `json:"disabled_after_failures"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

// Subscribed reports whether the webhook wants events of type t.
func (w *Webhook) Subscribed(t ActivityType) bool {
	if len(w.EventTypes) == 0 {
		return true
	}
	for _, et := range w.EventTypes {
		if et == t {
			return true
		}
	}
	return false
}
