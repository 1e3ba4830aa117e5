package backend

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/stacklok/envector-mcp/pkg/logger"
)

const (
	defaultRetryInterval = 500 * time.Millisecond
	maxRetryCount        = 10
)

// RetryConfig controls the optional retry decorator.
type RetryConfig struct {
	// MaxRetries is the number of attempts after the first. Zero disables retries.
	MaxRetries int
	// InitialInterval is the first backoff delay.
	InitialInterval time.Duration
}

type retryingAdapter struct {
	next   Adapter
	config RetryConfig
}

// WithRetry wraps adapter so that timeouts and unavailability are retried
// with exponential backoff. Every other error is returned on first sight.
// With MaxRetries == 0 the adapter is returned unchanged.
func WithRetry(adapter Adapter, config RetryConfig) Adapter {
	if config.MaxRetries <= 0 {
		return adapter
	}
	if config.MaxRetries > maxRetryCount {
		config.MaxRetries = maxRetryCount
	}
	if config.InitialInterval <= 0 {
		config.InitialInterval = defaultRetryInterval
	}
	return &retryingAdapter{next: adapter, config: config}
}

func retry[T any](ctx context.Context, cfg RetryConfig, op string, fn func() (T, error)) (T, error) {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = cfg.InitialInterval
	expBackoff.MaxInterval = 30 * cfg.InitialInterval
	expBackoff.Reset()

	attempt := 0
	operation := func() (T, error) {
		attempt++
		v, err := fn()
		if err == nil {
			return v, nil
		}
		if !retryable(err) {
			return v, backoff.Permanent(err)
		}
		logger.Warnf("%s failed (attempt %d/%d): %v", op, attempt, cfg.MaxRetries+1, err)
		return v, err
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(uint(cfg.MaxRetries+1)), // #nosec G115 -- capped by maxRetryCount
		backoff.WithNotify(func(_ error, d time.Duration) {
			logger.Debugf("Retrying %s after %v", op, d)
		}),
	)
}

func retryable(err error) bool {
	return errors.Is(err, ErrBackendTimeout) || errors.Is(err, ErrBackendUnavailable)
}

func (r *retryingAdapter) ListIndexes(ctx context.Context) ([]Index, error) {
	return retry(ctx, r.config, "list indexes", func() ([]Index, error) {
		return r.next.ListIndexes(ctx)
	})
}

func (r *retryingAdapter) DescribeIndex(ctx context.Context, name string) (*Index, error) {
	return retry(ctx, r.config, "describe index "+name, func() (*Index, error) {
		return r.next.DescribeIndex(ctx, name)
	})
}

func (r *retryingAdapter) CreateIndex(ctx context.Context, spec IndexSpec) (*Index, error) {
	return retry(ctx, r.config, "create index "+spec.Name, func() (*Index, error) {
		return r.next.CreateIndex(ctx, spec)
	})
}

func (r *retryingAdapter) Insert(ctx context.Context, index string, records []Record) (int, error) {
	// Fix generated ids up front so a retried batch overwrites instead of duplicating.
	withIDs := make([]Record, len(records))
	for i, rec := range records {
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		withIDs[i] = rec
	}
	return retry(ctx, r.config, "insert into "+index, func() (int, error) {
		return r.next.Insert(ctx, index, withIDs)
	})
}

func (r *retryingAdapter) Search(ctx context.Context, index string, query []float32, topK int, filter Filter) ([]SearchResult, error) {
	return retry(ctx, r.config, "search "+index, func() ([]SearchResult, error) {
		return r.next.Search(ctx, index, query, topK, filter)
	})
}

func (r *retryingAdapter) Close() error {
	return r.next.Close()
}
