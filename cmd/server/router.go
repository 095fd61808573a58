package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	identityHandler "mtoken/internal/identity/handler"
	"mtoken/internal/notify"
	"mtoken/internal/platform/config"
	platformMetrics "mtoken/internal/platform/metrics"
	"mtoken/internal/platform/middleware"
	"mtoken/internal/platform/redis"
	rateLimitMetrics "mtoken/internal/ratelimit/metrics"
	rateLimitMW "mtoken/internal/ratelimit/middleware"
	"mtoken/internal/ratelimit/store/bucket"
	"mtoken/pkg/platform/audit"
	"mtoken/pkg/platform/httputil"
)

type routerDeps struct {
	cfg            config.Config
	trustedProxies []netip.Prefix
	logger         *slog.Logger
	registry       *prometheus.Registry
	metrics        *platformMetrics.Metrics
	redis          *redis.Client
	publisher      audit.Publisher
	identity       *identityHandler.Handler
	notify         *notify.Handler
	ready          func(context.Context) error
}

func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(d.logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientMetadata(d.trustedProxies))
	r.Use(middleware.Logger(d.logger, d.metrics))
	r.MethodNotAllowed(middleware.MethodNotAllowed)
	r.NotFound(middleware.NotFound)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := d.ready(ctx); err != nil {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "reason": err.Error()})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	r.Handle("/metrics", platformMetrics.Handler(d.registry))

	limiter := newRateLimiter(d)
	r.Group(func(api chi.Router) {
		api.Use(middleware.Timeout(d.cfg.Server.RequestTimeout))
		api.Use(limiter.RateLimit)
		d.identity.Register(api)
		d.notify.Register(api)
	})
	return r
}

// newRateLimiter counts in Redis when it is configured, falling back to
// process memory while Redis is unreachable.
func newRateLimiter(d routerDeps) *rateLimitMW.Middleware {
	m := rateLimitMetrics.New(d.registry)
	cfg := d.cfg.RateLimit

	opts := []rateLimitMW.LimiterOption{
		rateLimitMW.WithLimiterLogger(d.logger),
		rateLimitMW.WithMetrics(m),
	}
	var primary rateLimitMW.BucketStore = bucket.New()
	if d.redis != nil {
		primary = bucket.NewRedis(d.redis.Client)
		opts = append(opts, rateLimitMW.WithFallback(bucket.New()))
	}

	return rateLimitMW.New(
		rateLimitMW.NewLimiter(primary, cfg.RequestsPerWindow, cfg.Window, opts...),
		d.logger,
		rateLimitMW.WithDisabled(cfg.Disabled),
		rateLimitMW.WithAuditPublisher(d.publisher),
		rateLimitMW.WithMiddlewareMetrics(m),
	)
}
