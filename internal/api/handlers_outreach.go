package api

import (
	"net/http"
	"time"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
	"github.com/jrfdy6/aiclone-sub001/internal/outreach"
)

type userRequest struct {
	UserID string `json:"user_id"`
}

// SegmentProspects assigns segments to every approved prospect.
func (h *Handlers) SegmentProspects(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := decode(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.UserID == "" {
		respondValidation(w, "missing_user_id", "user_id is required")
		return
	}
	segments, err := h.svc.Outreach.SegmentProspects(r.Context(), req.UserID)
	if err != nil {
		respondError(w, err)
		return
	}
	counts := map[domain.Segment]int{}
	for seg, list := range segments {
		counts[seg] = len(list)
	}
	respondOK(w, map[string]interface{}{"segments": segments, "counts": counts})
}

// PrioritizeProspects returns approved prospects above the score floor,
// strongest first.
func (h *Handlers) PrioritizeProspects(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := decode(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.UserID == "" {
		respondValidation(w, "missing_user_id", "user_id is required")
		return
	}
	prospects, err := h.svc.Outreach.PrioritizeProspects(r.Context(), req.UserID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, map[string]interface{}{"prospects": prospects, "total": len(prospects)})
}

type generateSequenceRequest struct {
	UserID       string              `json:"user_id"`
	ProspectID   string              `json:"prospect_id"`
	SequenceType domain.SequenceType `json:"sequence_type"`
}

// GenerateSequence builds and persists a message sequence for a prospect.
func (h *Handlers) GenerateSequence(w http.ResponseWriter, r *http.Request) {
	var req generateSequenceRequest
	if err := decode(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.UserID == "" || req.ProspectID == "" {
		respondValidation(w, "missing_fields", "user_id and prospect_id are required")
		return
	}
	seq, err := h.svc.Outreach.BuildSequence(r.Context(), req.UserID, req.ProspectID, req.SequenceType)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, map[string]interface{}{"sequence": seq})
}

type weeklyCadenceRequest struct {
	UserID             string    `json:"user_id"`
	WeekStart          time.Time `json:"week_start"`
	ConnectionRequests int       `json:"target_connection_requests"`
	Followups          int       `json:"target_followups"`
}

// WeeklyCadence plans the week's slot schedule. Defaults are the standing
// weekly targets: 40 connection requests, 30 followups.
func (h *Handlers) WeeklyCadence(w http.ResponseWriter, r *http.Request) {
	var req weeklyCadenceRequest
	if err := decode(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.UserID == "" {
		respondValidation(w, "missing_user_id", "user_id is required")
		return
	}
	if req.ConnectionRequests <= 0 {
		req.ConnectionRequests = 40
	}
	if req.Followups <= 0 {
		req.Followups = 30
	}
	weekStart := req.WeekStart
	if weekStart.IsZero() {
		weekStart = time.Now().UTC()
	}
	cadence, err := h.svc.Outreach.PlanWeek(r.Context(), req.UserID, weekStart, outreach.CadenceTargets{
		ConnectionRequests: req.ConnectionRequests,
		Followups:          req.Followups,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, map[string]interface{}{"cadence": cadence})
}

type trackEngagementRequest struct {
	UserID string `json:"user_id"`
	outreach.TrackRequest
}

// TrackEngagement applies one engagement event idempotently.
func (h *Handlers) TrackEngagement(w http.ResponseWriter, r *http.Request) {
	var req trackEngagementRequest
	if err := decode(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.UserID == "" {
		respondValidation(w, "missing_user_id", "user_id is required")
		return
	}
	metric, err := h.svc.Outreach.TrackEngagement(r.Context(), req.UserID, req.TrackRequest)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, map[string]interface{}{"metric": metric})
}

type outreachMetricsRequest struct {
	UserID string    `json:"user_id"`
	Since  time.Time `json:"since"`
}

// OutreachMetrics lists prospect metrics updated since the given time
// (default: last 30 days).
func (h *Handlers) OutreachMetrics(w http.ResponseWriter, r *http.Request) {
	var req outreachMetricsRequest
	if err := decode(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.UserID == "" {
		respondValidation(w, "missing_user_id", "user_id is required")
		return
	}
	since := req.Since
	if since.IsZero() {
		since = time.Now().UTC().AddDate(0, 0, -30)
	}
	metrics, err := h.svc.Gateway.ListProspectMetricsSince(r.Context(), req.UserID, since)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, map[string]interface{}{"metrics": metrics, "total": len(metrics)})
}
