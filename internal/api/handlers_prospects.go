package api

import (
	"net/http"
	"time"

	"github.com/jrfdy6/aiclone-sub001/internal/discovery"
	"github.com/jrfdy6/aiclone-sub001/internal/domain"
	"github.com/jrfdy6/aiclone-sub001/internal/pkg/logger"
)

type discoverRequest struct {
	UserID     string   `json:"user_id"`
	Industry   string   `json:"industry"`
	Categories []string `json:"categories"`
	Location   string   `json:"location"`
	MaxResults int      `json:"max_results"`
}

// DiscoverProspects runs the discovery workflow. A cancelled run still
// returns the envelope: saved prospects stay saved.
func (h *Handlers) DiscoverProspects(w http.ResponseWriter, r *http.Request) {
	if h.svc.Discovery == nil {
		respondError(w, domain.E(domain.KindConfig, "discover_disabled", "discovery is not configured", nil))
		return
	}
	var req discoverRequest
	if err := decode(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.UserID == "" {
		respondValidation(w, "missing_user_id", "user_id is required")
		return
	}
	categories := req.Categories
	if len(categories) == 0 && req.Industry != "" {
		categories = []string{req.Industry}
	}

	summary, err := h.svc.Discovery.Discover(r.Context(), req.UserID, categories, req.Location, req.MaxResults)
	if err != nil {
		respondError(w, err)
		return
	}
	cancelled := false
	for _, f := range summary.Failures {
		if f == "cancelled" {
			cancelled = true
			break
		}
	}
	respondOK(w, map[string]interface{}{"summary": summary, "cancelled": cancelled})
}

type approveRequest struct {
	UserID         string                `json:"user_id"`
	ProspectIDs    []string              `json:"prospect_ids"`
	ApprovalStatus domain.ApprovalStatus `json:"approval_status"`
}

// ApproveProspects transitions approval status for a batch. One bad
// prospect never blocks the rest.
func (h *Handlers) ApproveProspects(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := decode(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.UserID == "" || len(req.ProspectIDs) == 0 {
		respondValidation(w, "missing_fields", "user_id and prospect_ids are required")
		return
	}
	if !req.ApprovalStatus.Valid() {
		respondValidation(w, "bad_approval_status", "unknown approval status "+string(req.ApprovalStatus))
		return
	}

	updated := make([]string, 0, len(req.ProspectIDs))
	failed := map[string]string{}
	for _, id := range req.ProspectIDs {
		err := h.svc.Gateway.UpdateProspect(r.Context(), req.UserID, id, func(p *domain.DiscoveredProspect) error {
			p.ApprovalStatus = req.ApprovalStatus
			p.UpdatedAt = time.Now().UTC()
			return nil
		})
		if err != nil {
			logger.Warn("prospect approval failed", "prospect_id", id, "error", err.Error())
			failed[id] = errCode(err)
			continue
		}
		updated = append(updated, id)
	}
	respondOK(w, map[string]interface{}{"updated": updated, "failed": failed})
}

type scoreRequest struct {
	UserID      string   `json:"user_id"`
	ProspectIDs []string `json:"prospect_ids"`
}

// ScoreProspects recomputes component and influence scores for a batch.
func (h *Handlers) ScoreProspects(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := decode(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.UserID == "" || len(req.ProspectIDs) == 0 {
		respondValidation(w, "missing_fields", "user_id and prospect_ids are required")
		return
	}

	scored := make([]domain.DiscoveredProspect, 0, len(req.ProspectIDs))
	failed := map[string]string{}
	for _, id := range req.ProspectIDs {
		var after domain.DiscoveredProspect
		err := h.svc.Gateway.UpdateProspect(r.Context(), req.UserID, id, func(p *domain.DiscoveredProspect) error {
			p.Scores = discovery.ComponentScores(p)
			p.InfluenceScore = discovery.InfluenceScore(p)
			p.UpdatedAt = time.Now().UTC()
			after = *p
			return nil
		})
		if err != nil {
			logger.Warn("prospect scoring failed", "prospect_id", id, "error", err.Error())
			failed[id] = errCode(err)
			continue
		}
		scored = append(scored, after)
	}
	respondOK(w, map[string]interface{}{"prospects": scored, "failed": failed})
}
