package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/jrfdy6/aiclone-sub001/internal/content"
	"github.com/jrfdy6/aiclone-sub001/internal/domain"
)

// UpdateContentMetric ingests one content performance snapshot. The
// engagement rate is recomputed server-side regardless of what the body
// carries.
func (h *Handlers) UpdateContentMetric(w http.ResponseWriter, r *http.Request) {
	var m domain.ContentMetric
	if err := decode(r, &m); err != nil {
		respondError(w, err)
		return
	}
	saved, err := h.svc.Learning.IngestContentMetric(r.Context(), &m)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, map[string]interface{}{"metric": saved})
}

type prospectMetricUpdate struct {
	UserID                string                 `json:"user_id"`
	ProspectID            string                 `json:"prospect_id"`
	SequenceID            string                 `json:"sequence_id"`
	ConnectionRequestSent *bool                  `json:"connection_request_sent"`
	ConnectionAccepted    *bool                  `json:"connection_accepted"`
	DMsSent               []domain.DMRecord      `json:"dm_sent"`
	MeetingsBooked        []domain.MeetingRecord `json:"meetings_booked"`
}

// UpdateProspectMetric upserts outreach counters for one prospect/sequence
// pair. Only fields present in the body are written; rates are derived.
func (h *Handlers) UpdateProspectMetric(w http.ResponseWriter, r *http.Request) {
	var req prospectMetricUpdate
	if err := decode(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.UserID == "" || req.ProspectID == "" {
		respondValidation(w, "missing_fields", "user_id and prospect_id are required")
		return
	}
	metric, err := h.svc.Gateway.UpsertProspectMetric(r.Context(), req.UserID, req.ProspectID, req.SequenceID, func(m *domain.ProspectMetric) error {
		if req.ConnectionRequestSent != nil {
			m.ConnectionRequestSent = *req.ConnectionRequestSent
		}
		if req.ConnectionAccepted != nil {
			m.ConnectionAccepted = *req.ConnectionAccepted
		}
		if req.DMsSent != nil {
			m.DMsSent = req.DMsSent
		}
		if req.MeetingsBooked != nil {
			m.MeetingsBooked = req.MeetingsBooked
		}
		return nil
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, map[string]interface{}{"metric": metric})
}

type updatePatternsRequest struct {
	UserID      string             `json:"user_id"`
	PatternType domain.PatternType `json:"pattern_type"`
}

// UpdatePatterns re-aggregates learning patterns, optionally restricted to
// one pattern type.
func (h *Handlers) UpdatePatterns(w http.ResponseWriter, r *http.Request) {
	var req updatePatternsRequest
	if err := decode(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.UserID == "" {
		respondValidation(w, "missing_user_id", "user_id is required")
		return
	}
	if req.PatternType != "" && !req.PatternType.Valid() {
		respondValidation(w, "bad_pattern_type", "unknown pattern type "+string(req.PatternType))
		return
	}
	if err := h.svc.Learning.UpdatePatterns(r.Context(), req.UserID, req.PatternType); err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, map[string]interface{}{"updated": true})
}

// ListPatterns returns learning patterns for ?user_id&pattern_type&limit.
func (h *Handlers) ListPatterns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := q.Get("user_id")
	if userID == "" {
		respondValidation(w, "missing_user_id", "user_id is required")
		return
	}
	patternType := domain.PatternType(q.Get("pattern_type"))
	if patternType != "" && !patternType.Valid() {
		respondValidation(w, "bad_pattern_type", "unknown pattern type "+string(patternType))
		return
	}
	limit := 50
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondValidation(w, "bad_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}
	patterns, err := h.svc.Gateway.ListPatterns(r.Context(), userID, patternType, limit)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, map[string]interface{}{"patterns": patterns, "total": len(patterns)})
}

type weeklyReportRequest struct {
	UserID    string    `json:"user_id"`
	WeekStart time.Time `json:"week_start"`
}

// WeeklyReport builds (and archives) the weekly report on demand.
func (h *Handlers) WeeklyReport(w http.ResponseWriter, r *http.Request) {
	var req weeklyReportRequest
	if err := decode(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.UserID == "" {
		respondValidation(w, "missing_user_id", "user_id is required")
		return
	}
	weekStart := req.WeekStart
	if weekStart.IsZero() {
		weekStart = time.Now().UTC().AddDate(0, 0, -7)
	}
	report, err := h.svc.Learning.BuildWeeklyReport(r.Context(), req.UserID, weekStart)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, map[string]interface{}{"report": report})
}

type createDraftRequest struct {
	UserID string `json:"user_id"`
	content.DraftRequest
}

// CreateDraft creates a content draft, auto-linking ready insights when
// the caller supplies none.
func (h *Handlers) CreateDraft(w http.ResponseWriter, r *http.Request) {
	var req createDraftRequest
	if err := decode(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.UserID == "" {
		respondValidation(w, "missing_user_id", "user_id is required")
		return
	}
	draft, err := h.svc.Content.CreateDraft(r.Context(), req.UserID, req.DraftRequest)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, map[string]interface{}{"draft": draft})
}
