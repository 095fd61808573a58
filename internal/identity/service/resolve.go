package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mtoken/internal/authority"
	"mtoken/internal/identity/models"
	"mtoken/internal/upstream"
	dErrors "mtoken/pkg/domain-errors"
	"mtoken/pkg/platform/audit"
	"mtoken/pkg/platform/sentinel"
	"mtoken/pkg/requestcontext"
)

// RejectedMessage is shown when the profile authority returns no profile.
const RejectedMessage = "Govt API returned NULL (Token Expired or Invalid)"

// Resolve exchanges credentials, fetches the caller's profile and looks it up
// in the store. It returns FOUND with the stored record or NEW_USER with a
// registration draft. Every failure is a coded domain error; no partial
// outcome is ever returned alongside one.
func (s *Service) Resolve(ctx context.Context, req models.ResolveRequest) (outcome *models.Outcome, err error) {
	start := time.Now()
	ctx, span := otel.Tracer("mtoken/identity").Start(ctx, "identity.resolve")
	defer span.End()

	stage := models.StageStart
	subjectHash := ""
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "panic during resolve",
				"request_id", requestcontext.RequestID(ctx),
				"stage", stage,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			outcome = nil
			err = dErrors.New(dErrors.CodeInternal, fmt.Sprintf("unexpected failure during %s", stage))
		}
		s.finishResolve(ctx, span, start, stage, subjectHash, outcome, err)
	}()

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	stage = models.StageAuthorityPending
	cred, err := s.acquireCredential(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeAuthorityUnavailable, "authority unavailable")
	}

	stage = models.StageProfilePending
	profile, err := s.resolveProfile(ctx, cred, req)
	if err != nil {
		if upstream.CategoryOf(err) == upstream.CategoryRejected {
			return nil, dErrors.Wrap(err, dErrors.CodeProfileRejected, RejectedMessage)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeProfileUnavailable, "profile authority unavailable")
	}
	if profile == nil || profile.CitizenID == "" {
		return nil, dErrors.New(dErrors.CodeProfileUnavailable, "profile authority returned no citizen id")
	}
	subjectHash = audit.HashSubject(profile.CitizenID)

	stage = models.StageStoreLookup
	record, err := s.lookup(ctx, profile.CitizenID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			stage = models.StageDone
			return models.NewDraft(profile), nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "identity store unavailable")
	}

	stage = models.StageDone
	return models.NewFound(record), nil
}

func (s *Service) acquireCredential(ctx context.Context) (authority.Credential, error) {
	start := time.Now()
	ctx, cancel := withTimeout(ctx, s.timeouts.Authority)
	defer cancel()

	cred, err := s.authority.AcquireCredential(ctx)
	if err == nil && cred == "" {
		err = upstream.NewError(upstream.CategoryBadData, "authority", "empty credential", nil)
	}
	s.observeStep(models.StageAuthorityPending, err, start)
	return cred, err
}

func (s *Service) resolveProfile(ctx context.Context, cred authority.Credential, req models.ResolveRequest) (*models.ExternalProfile, error) {
	start := time.Now()
	ctx, cancel := withTimeout(ctx, s.timeouts.Profile)
	defer cancel()

	profile, err := s.profiles.ResolveProfile(ctx, cred, req.ApplicationID, req.IdentityToken)
	s.observeStep(models.StageProfilePending, err, start)
	return profile, err
}

func (s *Service) lookup(ctx context.Context, citizenID string) (*models.IdentityRecord, error) {
	start := time.Now()
	ctx, cancel := withTimeout(ctx, s.timeouts.Store)
	defer cancel()

	record, err := s.store.FindByCitizenID(ctx, citizenID)
	if err == nil && record == nil {
		err = sentinel.ErrNotFound
	}
	lookupErr := err
	if errors.Is(err, sentinel.ErrNotFound) {
		lookupErr = nil
	}
	s.observeStep(models.StageStoreLookup, lookupErr, start)
	return record, err
}

func (s *Service) finishResolve(ctx context.Context, span trace.Span, start time.Time, stage models.Stage, subjectHash string, outcome *models.Outcome, err error) {
	label := ""
	if err != nil {
		code := dErrors.CodeOf(err)
		label = string(code)
		level := slog.LevelError
		if code == dErrors.CodeInvalidRequest || code == dErrors.CodeProfileRejected {
			level = slog.LevelWarn
		}
		s.logger.Log(ctx, level, "resolve failed",
			"request_id", requestcontext.RequestID(ctx),
			"stage", stage,
			"code", code,
			"subject_hash", subjectHash,
			"error", err,
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, label)
	} else {
		label = string(outcome.Kind)
		s.logger.InfoContext(ctx, "identity resolved",
			"request_id", requestcontext.RequestID(ctx),
			"outcome", outcome.Kind,
			"subject_hash", subjectHash,
		)
	}
	span.SetAttributes(
		attribute.String("identity.stage", string(stage)),
		attribute.String("identity.outcome", label),
	)

	if s.metrics != nil {
		s.metrics.IncrementResolution(label)
		s.metrics.ObserveResolve(start)
	}
	if err == nil || subjectHash != "" {
		s.emitAudit(ctx, audit.Event{
			Type:        audit.EventIdentityResolved,
			SubjectHash: subjectHash,
			Outcome:     label,
		})
	}
}
