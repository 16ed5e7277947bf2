// Package redis appends submission events to per-repository Redis streams.
//
// The stream key comes from a template over the event's organization,
// repository and outcome, so consumers can follow one repository without
// filtering. Streams are trimmed to about MaxLen entries. A delivery marker
// keyed by the event's delivery key is claimed with SET NX before the
// append, which makes republishing the same job attempt a no-op.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Brightspace/test-reporting-action/adapter"
)

const (
	// DefaultStream is the default stream key template.
	DefaultStream = "test-reporting:{organization}:{repository}"
	// DefaultMaxLen is the default approximate stream length.
	DefaultMaxLen = 1000
	// DefaultTimeout is the default per-attempt timeout.
	DefaultTimeout = 5 * time.Second
	// DeliveredTTL is how long a delivery marker suppresses republishing.
	DeliveredTTL = 7 * 24 * time.Hour

	deliveredPrefix = "test-reporting:delivered:"
)

// Config configures the Redis stream adapter.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Stream is the stream key template. {organization}, {repository} and
	// {outcome} are replaced from the event.
	Stream string
	// MaxLen trims each stream to about this many entries (default 1000).
	MaxLen int64
	// Timeout is the per-attempt timeout (default 5s).
	Timeout time.Duration
	// Retries is the number of extra attempts on failure (default 0).
	Retries int
}

// Adapter appends events via XADD.
type Adapter struct {
	config Config
	client *goredis.Client
}

// New creates a Redis stream adapter from the given config.
// The connection is established lazily on first publish.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}

	if cfg.Stream == "" {
		cfg.Stream = DefaultStream
	}
	if strings.ContainsAny(placeholders.Replace(cfg.Stream), "{}") {
		return nil, fmt.Errorf("redis adapter: stream template %q has an unknown placeholder", cfg.Stream)
	}
	if cfg.MaxLen == 0 {
		cfg.MaxLen = DefaultMaxLen
	}
	if cfg.MaxLen < 0 {
		return nil, fmt.Errorf("max length must be > 0, got %d", cfg.MaxLen)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}

	return &Adapter{
		config: cfg,
		client: goredis.NewClient(opts),
	}, nil
}

var placeholders = strings.NewReplacer("{organization}", "", "{repository}", "", "{outcome}", "")

// StreamKey returns the stream the event is appended to.
func (a *Adapter) StreamKey(event *adapter.SubmissionEvent) string {
	return strings.NewReplacer(
		"{organization}", strings.ToLower(event.Organization),
		"{repository}", strings.ToLower(event.Repository),
		"{outcome}", string(event.Outcome),
	).Replace(a.config.Stream)
}

// DeliveredKey returns the marker key for a delivery key.
func DeliveredKey(deliveryKey string) string {
	return deliveredPrefix + deliveryKey
}

// errDelivered reports that the marker was already claimed.
var errDelivered = errors.New("already delivered")

// Publish appends the event to its repository stream.
func (a *Adapter) Publish(ctx context.Context, event *adapter.SubmissionEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}

	var lastErr error
	attempts := 1 + a.config.Retries

	for i := range attempts {
		if i > 0 {
			if err := adapter.Wait(ctx, i); err != nil {
				return fmt.Errorf("redis: context canceled during backoff: %w", err)
			}
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("redis: context canceled: %w", err)
		}

		lastErr = a.append(ctx, event, body)
		if lastErr == nil || errors.Is(lastErr, errDelivered) {
			return nil
		}
	}

	return fmt.Errorf("redis: failed after %d attempts: %w", attempts, lastErr)
}

// append claims the delivery marker and adds the stream entry. The marker
// is released when the append fails so a retry can claim it again.
func (a *Adapter) append(ctx context.Context, event *adapter.SubmissionEvent, body []byte) error {
	attemptCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	marker := DeliveredKey(event.DeliveryKey)
	claimed, err := a.client.SetNX(attemptCtx, marker, event.Timestamp, DeliveredTTL).Result()
	if err != nil {
		return fmt.Errorf("claim %s: %w", marker, err)
	}
	if !claimed {
		return errDelivered
	}

	stream := a.StreamKey(event)
	err = a.client.XAdd(attemptCtx, &goredis.XAddArgs{
		Stream: stream,
		MaxLen: a.config.MaxLen,
		Approx: true,
		Values: []any{
			"event_type", event.EventType,
			"outcome", string(event.Outcome),
			"report_id", event.ReportID,
			"delivery_key", event.DeliveryKey,
			"payload", body,
		},
	}).Err()
	if err != nil {
		releaseCtx, release := context.WithTimeout(context.WithoutCancel(ctx), a.config.Timeout)
		defer release()
		_ = a.client.Del(releaseCtx, marker).Err()
		return fmt.Errorf("append to %s: %w", stream, err)
	}
	return nil
}

// Close releases adapter resources.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)
