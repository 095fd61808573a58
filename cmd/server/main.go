package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"mtoken/internal/authority"
	identityHandler "mtoken/internal/identity/handler"
	identityMetrics "mtoken/internal/identity/metrics"
	identityService "mtoken/internal/identity/service"
	identityStore "mtoken/internal/identity/store"
	"mtoken/internal/notify"
	"mtoken/internal/platform/config"
	"mtoken/internal/platform/httpserver"
	"mtoken/internal/platform/kafka"
	"mtoken/internal/platform/logger"
	platformMetrics "mtoken/internal/platform/metrics"
	"mtoken/internal/platform/middleware"
	"mtoken/internal/platform/postgres"
	"mtoken/internal/platform/redis"
	"mtoken/internal/profile"
	"mtoken/pkg/platform/audit"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}
	log := logger.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// identityBackend is what the service needs from a store plus provisioning.
type identityBackend interface {
	identityService.Store
	EnsureSchema(ctx context.Context) error
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	procMetrics := platformMetrics.New(reg)

	trustedProxies, err := middleware.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	var (
		store   identityBackend
		db      *sql.DB
		monitor *postgres.Monitor
	)
	switch cfg.Database.Backend {
	case "memory":
		log.Warn("using in-memory identity store; records are lost on restart")
		store = identityStore.NewInMemory()
	default:
		db, err = postgres.Open(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()
		monitor = postgres.NewMonitor(db, cfg.Database.HealthCheckInterval, cfg.Database.BrokenConnPolicy, log,
			postgres.WithHealthRecorder(procMetrics),
		)
		g.Go(func() error { return monitor.Run(ctx) })
		store = identityStore.NewPostgres(db, cfg.Database.Table)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		// Provisioning is retried lazily on first use.
		log.Warn("identity schema not provisioned at startup", "error", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	publisher, closePublisher, err := newAuditPublisher(ctx, cfg.Kafka, log)
	if err != nil {
		return err
	}
	defer closePublisher()

	svc := identityService.New(
		authority.New(cfg.Authority),
		profile.New(cfg.Profile, cfg.Authority.ConsumerKey, cfg.Authority.InsecureSkipVerify),
		store,
		identityService.WithLogger(log),
		identityService.WithAuditPublisher(publisher),
		identityService.WithMetrics(identityMetrics.New(reg)),
		identityService.WithTimeouts(identityService.Timeouts{
			Authority: cfg.Authority.Timeout,
			Profile:   cfg.Profile.Timeout,
			Store:     cfg.Database.StoreTimeout,
		}),
	)

	router := newRouter(routerDeps{
		cfg:            cfg,
		trustedProxies: trustedProxies,
		logger:         log,
		registry:  reg,
		metrics:   procMetrics,
		redis:     redisClient,
		publisher: publisher,
		identity:  identityHandler.New(svc, log),
		notify: notify.NewHandler(
			notify.New(cfg.Notifier, cfg.Server.DefaultAppID),
			log,
			notify.WithAuditPublisher(publisher),
		),
		ready: readiness(monitor, redisClient),
	})

	srv := httpserver.New(cfg.Server.Addr, router, cfg.Server.RequestTimeout)

	g.Go(func() error {
		log.Info("starting mtoken gateway", "addr", cfg.Server.Addr, "store", cfg.Database.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// newAuditPublisher returns a Kafka publisher when brokers are configured,
// otherwise one that writes to the log.
func newAuditPublisher(ctx context.Context, cfg config.KafkaConfig, log *slog.Logger) (audit.Publisher, func(), error) {
	cl, err := kafka.NewClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	if cl == nil {
		log.Info("no kafka brokers configured; audit events go to the log")
		return audit.NewLogPublisher(log), func() {}, nil
	}
	if err := kafka.EnsureTopic(ctx, cl, cfg); err != nil {
		cl.Close()
		return nil, nil, err
	}
	return audit.NewKafkaPublisher(cl, cfg.AuditTopic, audit.WithLogger(log)), cl.Close, nil
}

// readiness reports whether the process can serve identity requests.
func readiness(monitor *postgres.Monitor, rc *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if monitor != nil && !monitor.Healthy() {
			return errors.New("database unavailable")
		}
		if err := rc.Health(ctx); err != nil {
			return fmt.Errorf("redis unavailable: %w", err)
		}
		return nil
	}
}
