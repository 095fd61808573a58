package service

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"mtoken/internal/identity/models"
	dErrors "mtoken/pkg/domain-errors"
	"mtoken/pkg/platform/audit"
	"mtoken/pkg/requestcontext"
)

// Register normalizes a completed draft and upserts it. A missing internal
// subject id is minted here; on a citizen id conflict the stored one wins.
// Store failures are returned as RegistrationFailed and never retried.
func (s *Service) Register(ctx context.Context, sub models.Submission) (err error) {
	start := time.Now()
	ctx, span := otel.Tracer("mtoken/identity").Start(ctx, "identity.register")
	defer span.End()

	stage := models.StageStart
	sub.Normalize()
	subjectHash := audit.HashSubject(sub.CitizenID)
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "panic during register",
				"request_id", requestcontext.RequestID(ctx),
				"stage", stage,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			err = dErrors.New(dErrors.CodeInternal, fmt.Sprintf("unexpected failure during %s", stage))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		}
		s.finishRegister(ctx, start, stage, subjectHash, err)
	}()

	if err := sub.Validate(); err != nil {
		return err
	}
	if sub.SubjectID == "" {
		sub.SubjectID = s.newSubjectID()
	}

	stage = models.StageStoreUpsert
	if err := s.upsert(ctx, sub.Record()); err != nil {
		return dErrors.Wrap(err, dErrors.CodeRegistrationFailed, "registration failed")
	}
	stage = models.StageDone
	return nil
}

func (s *Service) upsert(ctx context.Context, record *models.IdentityRecord) error {
	start := time.Now()
	ctx, cancel := withTimeout(ctx, s.timeouts.Store)
	defer cancel()

	err := s.store.Upsert(ctx, record)
	s.observeStep(models.StageStoreUpsert, err, start)
	return err
}

func (s *Service) finishRegister(ctx context.Context, start time.Time, stage models.Stage, subjectHash string, err error) {
	result := "success"
	if err != nil {
		code := dErrors.CodeOf(err)
		result = string(code)
		level := slog.LevelError
		if code == dErrors.CodeInvalidRequest {
			level = slog.LevelWarn
		}
		s.logger.Log(ctx, level, "register failed",
			"request_id", requestcontext.RequestID(ctx),
			"stage", stage,
			"code", code,
			"subject_hash", subjectHash,
			"error", err,
		)
	} else {
		s.logger.InfoContext(ctx, "identity registered",
			"request_id", requestcontext.RequestID(ctx),
			"subject_hash", subjectHash,
		)
		s.emitAudit(ctx, audit.Event{
			Type:        audit.EventIdentityRegistered,
			SubjectHash: subjectHash,
			Outcome:     result,
		})
	}

	if s.metrics != nil {
		s.metrics.IncrementRegistration(result)
		s.metrics.ObserveRegister(start)
	}
}
