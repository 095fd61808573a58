package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"mtoken/internal/ratelimit/metrics"
	"mtoken/internal/ratelimit/models"
	"mtoken/internal/ratelimit/observability"
	dErrors "mtoken/pkg/domain-errors"
	"mtoken/pkg/platform/audit"
	"mtoken/pkg/platform/httputil"
	"mtoken/pkg/requestcontext"
)

type Middleware struct {
	limiter      *Limiter
	logger       *slog.Logger
	publisher    audit.Publisher
	auditTimeout time.Duration
	metrics      *metrics.Metrics
	disabled     bool
}

type Option func(*Middleware)

// WithDisabled disables rate limiting entirely (for testing/demo mode).
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func WithAuditPublisher(p audit.Publisher) Option {
	return func(m *Middleware) {
		m.publisher = p
	}
}

// WithAuditTimeout bounds how long a rejected request waits on the publisher.
func WithAuditTimeout(d time.Duration) Option {
	return func(m *Middleware) {
		m.auditTimeout = d
	}
}

func WithMiddlewareMetrics(mt *metrics.Metrics) Option {
	return func(m *Middleware) {
		m.metrics = mt
	}
}

func New(limiter *Limiter, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		limiter:      limiter,
		logger:       logger,
		auditTimeout: audit.DefaultEmitTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// RateLimit limits requests per client IP and route. Store failures without
// a usable fallback let the request through.
func (m *Middleware) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.disabled {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		ip := requestcontext.ClientIP(ctx)
		route := routeOf(r)

		result, degraded, err := m.limiter.Check(ctx, models.Key(route, ip))
		if err != nil {
			m.logger.ErrorContext(ctx, "failed to check rate limit",
				"request_id", requestcontext.RequestID(ctx),
				"route", route,
				"error", err,
			)
			next.ServeHTTP(w, r)
			return
		}

		addRateLimitHeaders(w, result, degraded)

		if !result.Allowed {
			if m.metrics != nil {
				m.metrics.IncrementRejections(route)
			}
			observability.LogAudit(ctx, m.logger, m.publisher, m.auditTimeout, audit.EventRateLimitExceeded, route, ip, map[string]string{
				"limit":       strconv.Itoa(result.Limit),
				"retry_after": strconv.Itoa(result.RetryAfter),
			})
			w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
			httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "Too many requests. Please try again later."))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// routeOf prefers the matched chi pattern so path parameters share a bucket.
func routeOf(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.Result, degraded bool) {
	if result == nil {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
	if degraded {
		w.Header().Set("X-RateLimit-Status", "degraded")
	}
}
