package api

import (
	"net/http"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
)

type completeWorkflowRequest struct {
	UserID   string        `json:"user_id"`
	Topic    string        `json:"topic"`
	Pillar   domain.Pillar `json:"pillar"`
	Industry string        `json:"industry"`
}

// CompleteWorkflow runs the full research flow for one topic.
func (h *Handlers) CompleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if h.svc.Research == nil {
		respondError(w, domain.E(domain.KindConfig, "research_disabled", "research pipeline is not configured", nil))
		return
	}
	var req completeWorkflowRequest
	if err := decode(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.UserID == "" {
		respondValidation(w, "missing_user_id", "user_id is required")
		return
	}
	topic := req.Topic
	if topic == "" && req.Industry != "" {
		topic = req.Industry + " trends"
	}
	pillar := req.Pillar
	if pillar == "" {
		pillar = domain.PillarThoughtLeadership
	}

	insight, cached, err := h.svc.Research.CompleteWorkflow(r.Context(), req.UserID, topic, pillar)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, map[string]interface{}{"insight": insight, "cached": cached})
}

type scheduleTopicsRequest struct {
	UserID    string                   `json:"user_id"`
	Topics    []string                 `json:"topics"`
	Frequency domain.ScheduleFrequency `json:"frequency"`
	Pillar    domain.Pillar            `json:"pillar"`
}

// ScheduleTopics stores a replay plan.
func (h *Handlers) ScheduleTopics(w http.ResponseWriter, r *http.Request) {
	if h.svc.Scheduler == nil {
		respondError(w, domain.E(domain.KindConfig, "scheduler_disabled", "scheduler is not configured", nil))
		return
	}
	var req scheduleTopicsRequest
	if err := decode(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.UserID == "" {
		respondValidation(w, "missing_user_id", "user_id is required")
		return
	}
	plan, err := h.svc.Scheduler.ScheduleTopics(r.Context(), req.UserID, req.Topics, req.Frequency, req.Pillar)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, map[string]interface{}{"plan_id": plan.PlanID, "plan": plan})
}

// RunScheduled replays due plans for ?user_id&frequency.
func (h *Handlers) RunScheduled(w http.ResponseWriter, r *http.Request) {
	if h.svc.Scheduler == nil {
		respondError(w, domain.E(domain.KindConfig, "scheduler_disabled", "scheduler is not configured", nil))
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		respondValidation(w, "missing_user_id", "user_id is required")
		return
	}
	freq := domain.ScheduleFrequency(r.URL.Query().Get("frequency"))
	ran, err := h.svc.Scheduler.RunScheduled(r.Context(), userID, freq)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, map[string]interface{}{"ran": ran})
}

type autoDiscoverRequest struct {
	UserID    string        `json:"user_id"`
	Pillar    domain.Pillar `json:"pillar"`
	Topic     string        `json:"topic"`
	Audiences []string      `json:"audiences"`
	Limit     int           `json:"limit"`
}

// AutoDiscover scans seed topics into ranked briefs and researches the
// strongest ones. Cancellation returns the insights already committed.
func (h *Handlers) AutoDiscover(w http.ResponseWriter, r *http.Request) {
	if h.svc.Research == nil || h.svc.Intelligence == nil {
		respondError(w, domain.E(domain.KindConfig, "research_disabled", "research and intelligence are not configured", nil))
		return
	}
	var req autoDiscoverRequest
	if err := decode(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.UserID == "" {
		respondValidation(w, "missing_user_id", "user_id is required")
		return
	}
	pillar := req.Pillar
	if pillar == "" {
		pillar = domain.PillarThoughtLeadership
	}

	seeds := req.Audiences
	if req.Topic != "" {
		seeds = append([]string{req.Topic}, seeds...)
	}
	if len(seeds) == 0 {
		seeds = domain.AudiencesFor(pillar)
	}

	briefs, err := h.svc.Intelligence.Briefs(r.Context(), seeds, pillar)
	if err != nil {
		respondError(w, err)
		return
	}
	if req.Limit > 0 && len(briefs) > req.Limit {
		briefs = briefs[:req.Limit]
	}

	topics := make([]string, 0, len(briefs))
	for _, b := range briefs {
		topics = append(topics, b.Topic)
	}
	insights, err := h.svc.Research.RunBatch(r.Context(), req.UserID, topics, pillar)
	if err != nil && domain.KindOf(err) != domain.KindCancelled {
		respondError(w, err)
		return
	}
	respondOK(w, map[string]interface{}{
		"briefs":    briefs,
		"insights":  insights,
		"cancelled": domain.KindOf(err) == domain.KindCancelled,
	})
}
