package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
	"github.com/jrfdy6/aiclone-sub001/internal/pkg/logger"
	"github.com/jrfdy6/aiclone-sub001/internal/store"
)

// apiError is the wire shape of a failure. Code is stable and
// machine-readable; Message is human-readable and never carries a stack
// trace or wrapped-cause chain.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("response encode failed", "error", err.Error())
	}
}

// respondOK wraps a payload in the success envelope. Extra keys merge into
// the top level, so handlers stay in control of their payload names.
func respondOK(w http.ResponseWriter, payload map[string]interface{}) {
	body := map[string]interface{}{"success": true}
	for k, v := range payload {
		body[k] = v
	}
	respondJSON(w, http.StatusOK, body)
}

// respondError maps the domain error kind onto an HTTP status and emits
// the failure envelope.
func respondError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		respondJSON(w, http.StatusNotFound, map[string]interface{}{
			"success": false,
			"error":   apiError{Code: "not_found", Message: "document not found"},
		})
		return
	}
	code := domain.CodeOf(err)
	message := "internal error"
	var de *domain.Error
	if errors.As(err, &de) {
		message = de.Message
	}
	kind := domain.KindOf(err)
	body := map[string]interface{}{
		"success": false,
		"error":   apiError{Code: code, Message: message},
	}
	if kind == domain.KindCancelled {
		// Partial results already committed stay committed.
		body["cancelled"] = true
	}
	respondJSON(w, statusFor(kind), body)
}

func respondValidation(w http.ResponseWriter, code, message string) {
	respondError(w, domain.E(domain.KindValidation, code, message, nil))
}

// statusFor implements the propagation policy: configuration and
// circuit-broken providers are 503-class, quota is 429, validation is the
// caller's fault, everything upstream-shaped is a gateway error.
func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindQuota:
		return http.StatusTooManyRequests
	case domain.KindConfig, domain.KindUnavailable:
		return http.StatusServiceUnavailable
	case domain.KindConsistency:
		return http.StatusConflict
	case domain.KindCancelled:
		return http.StatusRequestTimeout
	case domain.KindTransient, domain.KindPermanent:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errCode returns the stable code for batch per-item failure maps.
func errCode(err error) string {
	if errors.Is(err, store.ErrNotFound) {
		return "not_found"
	}
	return domain.CodeOf(err)
}

// decode reads a JSON body into dst. A syntactically broken body is a
// validation failure, not a 500.
func decode(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domain.E(domain.KindValidation, "bad_json", "request body is not valid JSON", err)
	}
	return nil
}
