package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
	"github.com/jrfdy6/aiclone-sub001/internal/pkg/logger"
)

// ServeWS upgrades the connection and registers it with the hub.
func (h *Handlers) ServeWS(w http.ResponseWriter, r *http.Request) {
	if h.svc.Hub == nil {
		respondError(w, domain.E(domain.KindConfig, "realtime_disabled", "realtime hub is not configured", nil))
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		respondValidation(w, "missing_user_id", "user_id is required")
		return
	}
	if err := h.svc.Hub.ServeWS(w, r, userID); err != nil {
		// The upgrader already wrote the handshake failure.
		logger.Warn("websocket upgrade failed", "user_id", userID, "error", err.Error())
	}
}

// ListActivities returns the newest activities for ?user_id&limit.
func (h *Handlers) ListActivities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := q.Get("user_id")
	if userID == "" {
		respondValidation(w, "missing_user_id", "user_id is required")
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
	activities, err := h.svc.Gateway.ListActivities(r.Context(), userID, limit)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, map[string]interface{}{"activities": activities, "total": len(activities)})
}

// MarkActivityRead flags one activity as read.
func (h *Handlers) MarkActivityRead(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		respondValidation(w, "missing_user_id", "user_id is required")
		return
	}
	activityID := chi.URLParam(r, "activity_id")
	if err := h.svc.Gateway.MarkActivityRead(r.Context(), userID, activityID); err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, map[string]interface{}{"read": true})
}

type webhookRequest struct {
	UserID                string                `json:"user_id"`
	URL                   string                `json:"url"`
	EventTypes            []domain.ActivityType `json:"event_types"`
	Secret                string                `json:"secret"`
	Active                *bool                 `json:"active"`
	DisabledAfterFailures int                   `json:"disabled_after_failures"`
}

// CreateWebhook registers a per-user webhook config.
func (h *Handlers) CreateWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := decode(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.UserID == "" || req.URL == "" {
		respondValidation(w, "missing_fields", "user_id and url are required")
		return
	}
	threshold := req.DisabledAfterFailures
	if threshold <= 0 {
		threshold = domain.DefaultWebhookDisableThreshold
	}
	now := time.Now().UTC()
	hook := &domain.Webhook{
		ID:                    uuid.NewString(),
		UserID:                req.UserID,
		URL:                   req.URL,
		EventTypes:            req.EventTypes,
		Secret:                req.Secret,
		Active:                true,
		DisabledAfterFailures: threshold,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if req.Active != nil {
		hook.Active = *req.Active
	}
	if err := h.svc.Gateway.SaveWebhook(r.Context(), hook); err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, map[string]interface{}{"webhook": hook})
}

// ListWebhooks returns all webhook configs for ?user_id.
func (h *Handlers) ListWebhooks(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		respondValidation(w, "missing_user_id", "user_id is required")
		return
	}
	hooks, err := h.svc.Gateway.ListWebhooks(r.Context(), userID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, map[string]interface{}{"webhooks": hooks, "total": len(hooks)})
}

// UpdateWebhook rewrites mutable fields of one webhook. Re-activating a
// disabled webhook resets its failure counter.
func (h *Handlers) UpdateWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := decode(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.UserID == "" {
		respondValidation(w, "missing_user_id", "user_id is required")
		return
	}
	webhookID := chi.URLParam(r, "webhook_id")
	var after domain.Webhook
	err := h.svc.Gateway.UpdateWebhook(r.Context(), req.UserID, webhookID, func(hook *domain.Webhook) error {
		if req.URL != "" {
			hook.URL = req.URL
		}
		if req.EventTypes != nil {
			hook.EventTypes = req.EventTypes
		}
		if req.Secret != "" {
			hook.Secret = req.Secret
		}
		if req.DisabledAfterFailures > 0 {
			hook.DisabledAfterFailures = req.DisabledAfterFailures
		}
		if req.Active != nil {
			hook.Active = *req.Active
			if *req.Active {
				hook.ConsecutiveFailures = 0
			}
		}
		hook.UpdatedAt = time.Now().UTC()
		after = *hook
		return nil
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, map[string]interface{}{"webhook": after})
}

// DeleteWebhook removes one webhook config.
func (h *Handlers) DeleteWebhook(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		respondValidation(w, "missing_user_id", "user_id is required")
		return
	}
	webhookID := chi.URLParam(r, "webhook_id")
	if err := h.svc.Gateway.DeleteWebhook(r.Context(), userID, webhookID); err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, map[string]interface{}{"deleted": true})
}
