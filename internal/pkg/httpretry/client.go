// Package httpretry provides an HTTP client with automatic retry logic,
// exponential backoff, and jitter for resilient provider calls. It also
// classifies quota-exhausted responses so callers can degrade gracefully
// instead of hammering a spent provider.
package httpretry

import (
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
	"github.com/jrfdy6/aiclone-sub001/internal/pkg/logger"
)

// HTTPDoer is the interface for executing HTTP requests.
// Both *http.Client and *RetryClient satisfy this interface.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RetryClient wraps an HTTPDoer with retry logic using exponential backoff
// and full jitter. Retries 429 and transient 5xx; never retries other 4xx.
type RetryClient struct {
	client     HTTPDoer
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// New creates a RetryClient around the given HTTPDoer.
// If client is nil, a default http.Client with a 30s timeout is used.
// maxRetries is the number of retry attempts after the initial request
// (default 3).
func New(client HTTPDoer, maxRetries int) *RetryClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &RetryClient{
		client:     client,
		maxRetries: maxRetries,
		baseDelay:  2 * time.Second,
		maxDelay:   30 * time.Second,
	}
}

// Do executes the HTTP request with retry logic. On the final attempt the
// response is returned as-is so the caller can inspect status and body.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= rc.maxRetries; attempt++ {
		if req.Context().Err() != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, req.Context().Err()
		}

		if attempt > 0 {
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("httpretry: reset request body: %w", err)
				}
				req.Body = body
			}

			delay := rc.backoff(attempt)
			logger.Debug("httpretry: retrying",
				"attempt", attempt, "max", rc.maxRetries,
				"method", req.Method, "host", req.URL.Host, "wait", delay.String())

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-req.Context().Done():
				timer.Stop()
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, req.Context().Err()
			}
		}

		resp, err := rc.client.Do(req)
		if err != nil {
			lastErr = err
			if req.Context().Err() != nil {
				return nil, err
			}
			// Network/connection/timeout error, retry.
			continue
		}

		if !isRetryableStatus(resp.StatusCode) {
			return resp, nil
		}
		if attempt == rc.maxRetries {
			return resp, nil
		}

		// Drain for connection reuse before retrying.
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("httpretry: server returned retryable status %d", resp.StatusCode)
	}

	return nil, lastErr
}

// backoff returns the delay for the given retry attempt:
// random(0, min(maxDelay, baseDelay·2^(attempt-1))), floor 100ms.
func (rc *RetryClient) backoff(attempt int) time.Duration {
	exp := float64(rc.baseDelay) * math.Pow(2, float64(attempt-1))
	if exp > float64(rc.maxDelay) {
		exp = float64(rc.maxDelay)
	}
	jittered := time.Duration(rand.Float64() * exp)
	if jittered < 100*time.Millisecond {
		jittered = 100 * time.Millisecond
	}
	return jittered
}

func isRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// quotaMarkers are body substrings providers use to signal an exhausted
// quota rather than a throttle. Google returns dailyLimitExceeded inside a
// 403; others use explicit quota/billing phrasing.
var quotaMarkers = []string{
	"dailylimitexceeded",
	"quota exceeded",
	"quotaexceeded",
	"insufficient_quota",
	"billing hard limit",
	"out of searches",
}

// ClassifyResponse converts a non-2xx provider response into a domain
// error. The body should already be read by the caller; pass it in so the
// response can still be consumed once.
func ClassifyResponse(provider string, statusCode int, body []byte) error {
	lower := strings.ToLower(string(body))
	for _, marker := range quotaMarkers {
		if strings.Contains(lower, marker) {
			return domain.E(domain.KindQuota, provider+"_quota_exhausted",
				fmt.Sprintf("%s quota exhausted (status %d)", provider, statusCode), nil)
		}
	}
	switch {
	case statusCode == http.StatusPaymentRequired:
		return domain.E(domain.KindQuota, provider+"_quota_exhausted",
			fmt.Sprintf("%s quota exhausted (status %d)", provider, statusCode), nil)
	case isRetryableStatus(statusCode):
		return domain.E(domain.KindTransient, provider+"_transient",
			fmt.Sprintf("%s transient failure (status %d)", provider, statusCode), nil)
	case statusCode >= 400 && statusCode < 500:
		return domain.E(domain.KindPermanent, provider+"_request_rejected",
			fmt.Sprintf("%s rejected request (status %d)", provider, statusCode), nil)
	default:
		return domain.E(domain.KindTransient, provider+"_transient",
			fmt.Sprintf("%s failure (status %d)", provider, statusCode), nil)
	}
}
