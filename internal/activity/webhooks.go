package activity

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
	"github.com/jrfdy6/aiclone-sub001/internal/pkg/logger"
	"github.com/jrfdy6/aiclone-sub001/internal/providers"
	"github.com/jrfdy6/aiclone-sub001/internal/store"
)

// retrySchedule spaces delivery attempts; five attempts total.
var retrySchedule = []time.Duration{
	time.Second, 5 * time.Second, 30 * time.Second, 2 * time.Minute, 10 * time.Minute,
}

// webhookPayload is the wire envelope posted to subscriber URLs.
type webhookPayload struct {
	Event   string                `json:"event"`
	Payload *domain.ActivityEvent `json:"payload"`
}

// Dispatcher posts published events to each user's active, subscribed
// webhooks. Retries for one delivery are serialized; deliveries for
// different events run in parallel. It implements Sink.
type Dispatcher struct {
	gw             *store.Gateway
	client         *http.Client
	clock          providers.Clock
	attemptTimeout time.Duration
	disableAfter   int

	wg sync.WaitGroup
}

// NewDispatcher builds a dispatcher. client may be nil (a 10s-timeout
// default is used); disableAfter ≤ 0 falls back to the domain default.
func NewDispatcher(gw *store.Gateway, client *http.Client, clock providers.Clock, attemptTimeout time.Duration, disableAfter int) *Dispatcher {
	if attemptTimeout <= 0 {
		attemptTimeout = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: attemptTimeout}
	}
	if clock == nil {
		clock = providers.RealClock{}
	}
	if disableAfter <= 0 {
		disableAfter = domain.DefaultWebhookDisableThreshold
	}
	return &Dispatcher{
		gw:             gw,
		client:         client,
		clock:          clock,
		attemptTimeout: attemptTimeout,
		disableAfter:   disableAfter,
	}
}

// Deliver matches the event against the user's webhooks and spawns one
// delivery goroutine per match.
func (d *Dispatcher) Deliver(e *domain.ActivityEvent) {
	ctx := context.Background()
	hooks, err := d.gw.ListWebhooks(ctx, e.UserID)
	if err != nil {
		logger.Error("webhook listing failed", "user_id", e.UserID, "error", err.Error())
		return
	}
	for i := range hooks {
		hook := hooks[i]
		if !hook.Active || !hook.Subscribed(e.Type) {
			continue
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.deliverOne(ctx, &hook, e)
		}()
	}
}

// Wait blocks until all in-flight deliveries finish.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// deliverOne runs the serialized retry loop for one (webhook, event) pair
// and records the outcome on the webhook document.
func (d *Dispatcher) deliverOne(ctx context.Context, hook *domain.Webhook, e *domain.ActivityEvent) {
	body, err := json.Marshal(webhookPayload{Event: string(e.Type), Payload: e})
	if err != nil {
		return
	}

	var lastErr error
	for attempt := 0; attempt < len(retrySchedule); attempt++ {
		if attempt > 0 {
			d.clock.Sleep(retrySchedule[attempt-1])
		}
		if lastErr = d.post(ctx, hook, body); lastErr == nil {
			d.recordOutcome(ctx, hook, true)
			return
		}
		logger.Warn("webhook delivery attempt failed",
			"user_id", hook.UserID, "webhook_id", hook.ID,
			"attempt", attempt+1, "error", lastErr.Error())
	}
	d.recordOutcome(ctx, hook, false)
}

func (d *Dispatcher) post(ctx context.Context, hook *domain.Webhook, body []byte) error {
	attemptCtx, cancel := context.WithTimeout(ctx, d.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return domain.E(domain.KindPermanent, "webhook_bad_url", hook.URL, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if hook.Secret != "" {
		req.Header.Set("X-Signature", Sign(hook.Secret, body))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return domain.E(domain.KindTransient, "webhook_unreachable", hook.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.E(domain.KindTransient, "webhook_rejected", resp.Status, nil)
	}
	return nil
}

// recordOutcome updates the failure counter; crossing the threshold flips
// the webhook inactive.
func (d *Dispatcher) recordOutcome(ctx context.Context, hook *domain.Webhook, success bool) {
	err := d.gw.UpdateWebhook(ctx, hook.UserID, hook.ID, func(w *domain.Webhook) error {
		if success {
			w.ConsecutiveFailures = 0
			return nil
		}
		w.ConsecutiveFailures++
		threshold := w.DisabledAfterFailures
		if threshold <= 0 {
			threshold = d.disableAfter
		}
		if w.ConsecutiveFailures >= threshold {
			w.Active = false
			logger.Warn("webhook disabled after consecutive failures",
				"user_id", w.UserID, "webhook_id", w.ID, "failures", w.ConsecutiveFailures)
		}
		return nil
	})
	if err != nil {
		logger.Error("webhook outcome update failed", "webhook_id", hook.ID, "error", err.Error())
	}
}

// Sign computes the hex HMAC-SHA256 signature carried in X-Signature.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
