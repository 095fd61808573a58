package middleware

import (
	"context"
	"log/slog"
	"time"

	"mtoken/internal/ratelimit/metrics"
	"mtoken/internal/ratelimit/models"
	"mtoken/pkg/platform/circuit"
)

// BucketStore counts requests per key in fixed windows.
type BucketStore interface {
	Allow(ctx context.Context, key string, limit int, period time.Duration) (*models.Result, error)
}

// Limiter checks the primary store and switches to an in-memory fallback
// while the breaker is open. Degraded reports whether the fallback answered.
type Limiter struct {
	primary  BucketStore
	fallback BucketStore
	breaker  *circuit.Breaker
	limit    int
	period   time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type LimiterOption func(*Limiter)

func WithFallback(store BucketStore) LimiterOption {
	return func(l *Limiter) {
		l.fallback = store
	}
}

func WithBreaker(b *circuit.Breaker) LimiterOption {
	return func(l *Limiter) {
		l.breaker = b
	}
}

func WithLimiterLogger(logger *slog.Logger) LimiterOption {
	return func(l *Limiter) {
		l.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) LimiterOption {
	return func(l *Limiter) {
		l.metrics = m
	}
}

// NewLimiter allows limit requests per period per key.
func NewLimiter(primary BucketStore, limit int, period time.Duration, opts ...LimiterOption) *Limiter {
	l := &Limiter{
		primary: primary,
		limit:   limit,
		period:  period,
		breaker: circuit.New("ratelimit"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check counts one request for key. Without a fallback a primary failure is
// returned to the caller.
func (l *Limiter) Check(ctx context.Context, key string) (res *models.Result, degraded bool, err error) {
	if l.fallback == nil {
		res, err = l.primary.Allow(ctx, key, l.limit, l.period)
		return res, false, err
	}

	res, err = l.primary.Allow(ctx, key, l.limit, l.period)
	if err != nil {
		if l.metrics != nil {
			l.metrics.IncrementStoreErrors()
		}
		useFallback, change := l.breaker.RecordFailure()
		l.logChange(ctx, change, err)
		if !useFallback {
			return nil, false, err
		}
		res, err = l.fallback.Allow(ctx, key, l.limit, l.period)
		return res, true, err
	}

	usePrimary, change := l.breaker.RecordSuccess()
	l.logChange(ctx, change, nil)
	if usePrimary {
		return res, false, nil
	}
	// Still half-recovered: keep the fallback count authoritative.
	res, err = l.fallback.Allow(ctx, key, l.limit, l.period)
	return res, true, err
}

func (l *Limiter) logChange(ctx context.Context, change circuit.Change, cause error) {
	switch {
	case change.Opened:
		l.logger.WarnContext(ctx, "rate limit store unavailable, using in-memory fallback",
			"breaker", l.breaker.Name(),
			"error", cause,
		)
		if l.metrics != nil {
			l.metrics.SetDegraded(true)
		}
	case change.Closed:
		l.logger.InfoContext(ctx, "rate limit store recovered", "breaker", l.breaker.Name())
		if l.metrics != nil {
			l.metrics.SetDegraded(false)
		}
	}
}
