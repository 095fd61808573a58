package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"mtoken/internal/authority"
	"mtoken/internal/identity/metrics"
	"mtoken/internal/identity/models"
	"mtoken/pkg/platform/audit"
	"mtoken/pkg/requestcontext"
)

// AuthorityClient acquires a fresh bearer credential per call.
type AuthorityClient interface {
	AcquireCredential(ctx context.Context) (authority.Credential, error)
}

// ProfileResolver fetches the external profile behind an identity token.
type ProfileResolver interface {
	ResolveProfile(ctx context.Context, cred authority.Credential, applicationID, identityToken string) (*models.ExternalProfile, error)
}

// Store is the identity registry. FindByCitizenID returns sentinel.ErrNotFound
// for an unknown citizen; Upsert is a single atomic conditional write.
type Store interface {
	FindByCitizenID(ctx context.Context, citizenID string) (*models.IdentityRecord, error)
	Upsert(ctx context.Context, record *models.IdentityRecord) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Timeouts bounds each external call. Zero leaves a step unbounded.
type Timeouts struct {
	Authority time.Duration
	Profile   time.Duration
	Store     time.Duration
}

// Service reconciles externally verified profiles against the identity
// store. It keeps no state between calls.
type Service struct {
	authority      AuthorityClient
	profiles       ProfileResolver
	store          Store
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	timeouts       Timeouts
	newSubjectID   func() string
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTimeouts(t Timeouts) Option {
	return func(s *Service) {
		s.timeouts = t
	}
}

// WithSubjectIDGenerator overrides how missing internal subject ids are
// minted on register.
func WithSubjectIDGenerator(fn func() string) Option {
	return func(s *Service) {
		s.newSubjectID = fn
	}
}

// New constructs a Service.
func New(authority AuthorityClient, profiles ProfileResolver, store Store, opts ...Option) *Service {
	s := &Service{
		authority:    authority,
		profiles:     profiles,
		store:        store,
		logger:       slog.Default(),
		newSubjectID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// withTimeout derives the context for one external call.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func (s *Service) observeStep(stage models.Stage, err error, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveStep(string(stage), err == nil, start)
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.auditPublisher == nil {
		return
	}
	event.RequestID = requestcontext.RequestID(ctx)
	event.ClientIP = requestcontext.ClientIP(ctx)

	if err := audit.EmitBounded(ctx, s.auditPublisher, event, audit.DefaultEmitTimeout); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"request_id", event.RequestID,
			"event_type", event.Type,
			"error", err,
		)
	}
}
