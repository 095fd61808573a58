// Package postgres owns the identity database handle: construction with pool
// limits and a health monitor that applies the configured policy when pooled
// connections break.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"mtoken/internal/platform/config"
)

// ErrConnectionBroken is returned by Monitor.Run under the restart policy.
var ErrConnectionBroken = errors.New("database connection broken")

// Open builds a pooled *sql.DB and verifies it with a ping.
func Open(ctx context.Context, cfg config.Database) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Pinger is the part of *sql.DB the monitor needs.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthRecorder receives check outcomes.
type HealthRecorder interface {
	SetDatabaseUp(up bool)
}

// DefaultHealthInterval applies when NewMonitor is given a non-positive interval.
const DefaultHealthInterval = 15 * time.Second

// Monitor pings the database periodically.
type Monitor struct {
	db       Pinger
	interval time.Duration
	timeout  time.Duration
	policy   config.BrokenConnPolicy
	logger   *slog.Logger
	recorder HealthRecorder

	healthy atomic.Bool
}

type MonitorOption func(*Monitor)

func WithHealthRecorder(r HealthRecorder) MonitorOption {
	return func(m *Monitor) {
		m.recorder = r
	}
}

func WithCheckTimeout(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		m.timeout = d
	}
}

// NewMonitor creates a monitor that starts out healthy.
func NewMonitor(db Pinger, interval time.Duration, policy config.BrokenConnPolicy, logger *slog.Logger, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		db:       db,
		interval: interval,
		timeout:  3 * time.Second,
		policy:   policy,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.interval <= 0 {
		m.interval = DefaultHealthInterval
	}
	m.healthy.Store(true)
	return m
}

// Healthy reports the latest check result.
func (m *Monitor) Healthy() bool {
	return m.healthy.Load()
}

// Check runs one ping and applies the policy. It returns ErrConnectionBroken
// only under the restart policy.
func (m *Monitor) Check(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.db.PingContext(pingCtx)
	if ctx.Err() != nil {
		// Shutting down; not a database fault.
		return nil
	}
	wasHealthy := m.healthy.Swap(err == nil)
	if m.recorder != nil {
		m.recorder.SetDatabaseUp(err == nil)
	}

	if err == nil {
		if !wasHealthy {
			m.logger.InfoContext(ctx, "database connection recovered")
		}
		return nil
	}

	if m.policy == config.PolicyRestart {
		m.logger.ErrorContext(ctx, "database connection broken, requesting restart",
			"policy", string(m.policy),
			"error", err,
		)
		return fmt.Errorf("%w: %v", ErrConnectionBroken, err)
	}
	if wasHealthy {
		m.logger.ErrorContext(ctx, "database connection broken, isolating until recovery",
			"policy", string(m.policy),
			"error", err,
		)
	}
	return nil
}

// Run checks every interval until ctx is done or the restart policy trips.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := m.Check(ctx); err != nil {
				return err
			}
		}
	}
}
