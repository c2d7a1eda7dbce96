package outreach

import (
	"context"
	"time"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
	"github.com/jrfdy6/aiclone-sub001/internal/pkg/logger"
)

// TrackRequest describes one engagement event against a prospect.
type TrackRequest struct {
	ProspectID   string              `json:"prospect_id"`
	OutreachType string              `json:"outreach_type"` // connection_request or dm
	Status       domain.StepStatus   `json:"status"`
	MessageID    string              `json:"message_id,omitempty"`
	ResponseType domain.ResponseType `json:"response_type,omitempty"`
	MeetingAt    *time.Time          `json:"meeting_at,omitempty"`
}

// TrackEngagement applies one engagement event: the prospect metric is
// mutated idempotently per (message_id, status), the sequence step
// advances on sent, and the learning core is notified. A learning failure
// is logged, never surfaced: the metric write has already committed.
func (e *Engine) TrackEngagement(ctx context.Context, userID string, req TrackRequest) (*domain.ProspectMetric, error) {
	if req.ProspectID == "" {
		return nil, domain.E(domain.KindValidation, "track_missing_prospect", "prospect_id is required", nil)
	}
	if req.Status == "" {
		return nil, domain.E(domain.KindValidation, "track_missing_status", "status is required", nil)
	}

	sequenceID := ""
	seq, err := e.gw.FindSequenceByProspect(ctx, userID, req.ProspectID)
	if err == nil && seq != nil {
		sequenceID = seq.SequenceID
	}

	applied := false
	metric, err := e.gw.UpsertProspectMetric(ctx, userID, req.ProspectID, sequenceID, func(m *domain.ProspectMetric) error {
		applied = applyEngagement(m, req)
		m.RecomputeRates()
		return nil
	})
	if err != nil {
		return nil, err
	}

	if applied && req.Status == domain.StepSent && sequenceID != "" {
		if err := e.advanceStep(ctx, userID, sequenceID); err != nil {
			logger.Warn("sequence step advance failed", "user_id", userID, "sequence_id", sequenceID, "error", err.Error())
		}
	}

	if e.learner != nil {
		if err := e.learner.RecordEngagement(ctx, userID, metric); err != nil {
			logger.Warn("learning update failed", "user_id", userID, "prospect_id", req.ProspectID, "error", err.Error())
		}
	}

	e.publish(ctx, userID, "Engagement tracked", map[string]interface{}{
		"prospect_id":   req.ProspectID,
		"outreach_type": req.OutreachType,
		"status":        string(req.Status),
	})
	return metric, nil
}

// applyEngagement folds one event into the metric and reports whether it
// was new. Re-delivery of the same (message_id, status) pair is a no-op,
// including the downstream step advance.
func applyEngagement(m *domain.ProspectMetric, req TrackRequest) bool {
	switch {
	case req.OutreachType == "connection_request":
		switch req.Status {
		case domain.StepSent:
			if m.ConnectionRequestSent {
				return false
			}
			m.ConnectionRequestSent = true
			return true
		case domain.StepReplied, domain.StepOpened:
			if m.ConnectionAccepted {
				return false
			}
			m.ConnectionAccepted = true
			return true
		}
		return false

	case req.Status == domain.StepSent:
		if req.MessageID == "" || findDM(m, req.MessageID) != nil {
			return false
		}
		m.DMsSent = append(m.DMsSent, domain.DMRecord{
			MessageID: req.MessageID,
			SentAt:    time.Now().UTC(),
		})
		return true

	case req.Status == domain.StepReplied:
		dm := findDM(m, req.MessageID)
		if dm == nil || dm.ResponseReceivedAt != nil {
			return false
		}
		now := time.Now().UTC()
		dm.ResponseReceivedAt = &now
		dm.ResponseType = req.ResponseType
		return true

	case req.Status == domain.StepMeetingBooked:
		for _, mb := range m.MeetingsBooked {
			if mb.Source == req.MessageID && req.MessageID != "" {
				return false
			}
		}
		at := time.Now().UTC()
		if req.MeetingAt != nil {
			at = *req.MeetingAt
		}
		m.MeetingsBooked = append(m.MeetingsBooked, domain.MeetingRecord{
			BookedAt: at,
			Source:   req.MessageID,
		})
		return true
	}
	return false
}

func findDM(m *domain.ProspectMetric, messageID string) *domain.DMRecord {
	if messageID == "" {
		return nil
	}
	for i := range m.DMsSent {
		if m.DMsSent[i].MessageID == messageID {
			return &m.DMsSent[i]
		}
	}
	return nil
}

// advanceStep marks the current step sent and moves the cursor forward.
// CurrentStep only ever advances; a replayed sent for an already-sent
// step leaves the sequence untouched.
func (e *Engine) advanceStep(ctx context.Context, userID, sequenceID string) error {
	return e.gw.UpdateSequence(ctx, userID, sequenceID, func(seq *domain.OutreachSequence) error {
		if seq.CurrentStep >= len(seq.Steps) {
			return nil
		}
		step := &seq.Steps[seq.CurrentStep]
		if !domain.StepStatusAdvances(step.Status, domain.StepSent) {
			return nil
		}
		step.Status = domain.StepSent
		seq.CurrentStep++
		seq.UpdatedAt = e.opts.Clock.Now().UTC()
		return nil
	})
}
