// Package webhook delivers submission events to an HTTP endpoint.
//
// Every attempt for one event carries the event's delivery key as its
// Idempotency-Key, and a 409 Conflict answer means the receiver already
// holds that delivery. When a secret is configured the body is signed with
// HMAC-SHA256. Throttled (429) and 5xx answers are retried, honoring
// Retry-After up to MaxRetryAfter; any other 4xx is final.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Brightspace/test-reporting-action/adapter"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 10 * time.Second

// MaxRetryAfter caps the wait a receiver can request.
const MaxRetryAfter = 30 * time.Second

// Request headers.
const (
	HeaderEvent          = "X-Test-Reporting-Event"
	HeaderOutcome        = "X-Test-Reporting-Outcome"
	HeaderSignature      = "X-Test-Reporting-Signature"
	HeaderIdempotencyKey = "Idempotency-Key"
)

// Config configures the webhook adapter.
type Config struct {
	// URL is the http or https endpoint to POST to (required).
	URL string
	// Headers are custom HTTP headers added to each request.
	Headers map[string]string
	// Secret signs request bodies when set.
	Secret string
	// Timeout is the per-request timeout (default 10s).
	Timeout time.Duration
	// Retries is the number of extra attempts on failure (default 0).
	Retries int
}

// Adapter publishes events via HTTP POST.
type Adapter struct {
	config Config
	client *http.Client
}

// New creates a webhook adapter from the given config.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook adapter requires a URL")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("webhook adapter URL %q must be an absolute http(s) URL", cfg.URL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}

	return &Adapter{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// StatusError is returned for non-2xx HTTP responses.
type StatusError struct {
	Code int
	// RetryAfter is the receiver's requested wait, zero when absent.
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// Temporary reports whether the receiver may accept a later attempt.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Publish POSTs the event, retrying temporary failures.
func (a *Adapter) Publish(ctx context.Context, event *adapter.SubmissionEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}
	header := a.header(event, body)

	var lastErr error
	attempts := 1 + a.config.Retries

	for i := range attempts {
		if i > 0 {
			if err := adapter.Sleep(ctx, retryDelay(i, lastErr)); err != nil {
				return fmt.Errorf("webhook: context canceled during backoff: %w", err)
			}
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("webhook: context canceled: %w", err)
		}

		lastErr = a.post(ctx, header, body)
		if lastErr == nil {
			return nil
		}

		var statusErr *StatusError
		if errors.As(lastErr, &statusErr) {
			if statusErr.Code == http.StatusConflict {
				return nil
			}
			if !statusErr.Temporary() {
				return fmt.Errorf("webhook: delivery %s refused: %w", event.DeliveryKey, lastErr)
			}
		}
	}

	if attempts == 1 {
		return fmt.Errorf("webhook: %w", lastErr)
	}
	return fmt.Errorf("webhook: failed after %d attempts: %w", attempts, lastErr)
}

// header builds the request headers shared by every attempt.
func (a *Adapter) header(event *adapter.SubmissionEvent, body []byte) http.Header {
	h := make(http.Header)
	for k, v := range a.config.Headers {
		h.Set(k, v)
	}
	h.Set("Content-Type", "application/json")
	h.Set(HeaderEvent, event.EventType)
	h.Set(HeaderOutcome, string(event.Outcome))
	h.Set(HeaderIdempotencyKey, event.DeliveryKey)
	if a.config.Secret != "" {
		h.Set(HeaderSignature, Sign(a.config.Secret, body))
	}
	return h
}

// retryDelay is the wait before attempt n, preferring the receiver's
// Retry-After when it asked for longer than the backoff.
func retryDelay(n int, lastErr error) time.Duration {
	d := adapter.Backoff(n)
	var statusErr *StatusError
	if errors.As(lastErr, &statusErr) && statusErr.RetryAfter > d {
		d = statusErr.RetryAfter
	}
	return d
}

// parseRetryAfter reads delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	var d time.Duration
	if secs, err := strconv.Atoi(v); err == nil {
		d = time.Duration(secs) * time.Second
	} else if at, err := http.ParseTime(v); err == nil {
		d = at.Sub(now)
	}
	return min(max(d, 0), MaxRetryAfter)
}

// post performs a single HTTP POST and returns nil on 2xx.
func (a *Adapter) post(ctx context.Context, header http.Header, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header = header.Clone()

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{
			Code:       resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	}
	return nil
}

// Close releases adapter resources.
func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
