package drivers

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy defines how to retry failed store operations
type RetryPolicy struct {
	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
	jitter       bool
	logger       *zap.Logger
}

// RetryOption configures retry behavior
type RetryOption func(*RetryPolicy)

// WithMaxAttempts sets maximum attempts, the first one included
func WithMaxAttempts(n int) RetryOption {
	return func(p *RetryPolicy) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithInitialDelay sets the initial retry delay
func WithInitialDelay(d time.Duration) RetryOption {
	return func(p *RetryPolicy) {
		p.initialDelay = d
	}
}

// WithMaxDelay sets the maximum retry delay
func WithMaxDelay(d time.Duration) RetryOption {
	return func(p *RetryPolicy) {
		p.maxDelay = d
	}
}

// WithJitter spreads retries of concurrent workers apart
func WithJitter(enabled bool) RetryOption {
	return func(p *RetryPolicy) {
		p.jitter = enabled
	}
}

// WithLogger adds logging to retry attempts
func WithLogger(logger *zap.Logger) RetryOption {
	return func(p *RetryPolicy) {
		p.logger = logger
	}
}

// NewRetryPolicy creates a new retry policy
func NewRetryPolicy(opts ...RetryOption) *RetryPolicy {
	p := &RetryPolicy{
		maxAttempts:  3,
		initialDelay: 100 * time.Millisecond,
		maxDelay:     5 * time.Second,
		multiplier:   2.0,
		jitter:       true,
		logger:       zap.NewNop(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Execute runs fn until it succeeds, returns a permanent error, or the
// attempts run out.
func (p *RetryPolicy) Execute(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lastErr = fn()
		if lastErr == nil {
			if attempt > 0 {
				p.logger.Debug("store operation succeeded after retry",
					zap.Int("attempt", attempt+1))
			}
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}

		if attempt == p.maxAttempts-1 {
			break
		}

		delay := p.calculateDelay(attempt)
		p.logger.Debug("store operation failed, retrying",
			zap.Error(lastErr),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", p.maxAttempts),
			zap.Duration("delay", delay))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	p.logger.Warn("store operation failed after all retries",
		zap.Error(lastErr),
		zap.Int("attempts", p.maxAttempts))

	return lastErr
}

// calculateDelay computes the delay for the given attempt
func (p *RetryPolicy) calculateDelay(attempt int) time.Duration {
	delay := float64(p.initialDelay) * math.Pow(p.multiplier, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}

	// between 0.5x and 1.5x
	if p.jitter {
		delay *= 0.5 + rand.Float64()
	}

	return time.Duration(delay)
}

// retryable reports whether another attempt could succeed
func retryable(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrPermission):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	default:
		return true
	}
}

// RetryingStore retries transient failures of an ObjectStore. Put is passed
// through once because its reader cannot be replayed.
type RetryingStore struct {
	store  ObjectStore
	policy *RetryPolicy
}

// NewRetryingStore wraps store with policy
func NewRetryingStore(store ObjectStore, policy *RetryPolicy) *RetryingStore {
	return &RetryingStore{store: store, policy: policy}
}

func (r *RetryingStore) List(ctx context.Context, prefix string) ([]string, error) {
	var result []string
	err := r.policy.Execute(ctx, func() error {
		var err error
		result, err = r.store.List(ctx, prefix)
		return err
	})
	return result, err
}

func (r *RetryingStore) Head(ctx context.Context, path string) (ObjectInfo, error) {
	var result ObjectInfo
	err := r.policy.Execute(ctx, func() error {
		var err error
		result, err = r.store.Head(ctx, path)
		return err
	})
	return result, err
}

func (r *RetryingStore) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	var result io.ReadCloser
	err := r.policy.Execute(ctx, func() error {
		var err error
		result, err = r.store.Get(ctx, path)
		return err
	})
	return result, err
}

func (r *RetryingStore) Put(ctx context.Context, path string, data io.Reader) error {
	return r.store.Put(ctx, path, data)
}

func (r *RetryingStore) Delete(ctx context.Context, path string) error {
	return r.policy.Execute(ctx, func() error {
		return r.store.Delete(ctx, path)
	})
}

func (r *RetryingStore) Archive(ctx context.Context, path string) error {
	return r.policy.Execute(ctx, func() error {
		return r.store.Archive(ctx, path)
	})
}

func (r *RetryingStore) Restore(ctx context.Context, path string) error {
	return r.policy.Execute(ctx, func() error {
		return r.store.Restore(ctx, path)
	})
}

func (r *RetryingStore) Protect(ctx context.Context, path string, at time.Time) error {
	return r.policy.Execute(ctx, func() error {
		return r.store.Protect(ctx, path, at)
	})
}

var _ ObjectStore = (*RetryingStore)(nil)
