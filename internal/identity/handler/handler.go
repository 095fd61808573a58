package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"mtoken/internal/identity/models"
	dErrors "mtoken/pkg/domain-errors"
	"mtoken/pkg/platform/httputil"
	"mtoken/pkg/requestcontext"
)

// Service is the reconciliation engine as seen by the HTTP layer.
type Service interface {
	Resolve(ctx context.Context, req models.ResolveRequest) (*models.Outcome, error)
	Register(ctx context.Context, sub models.Submission) error
}

// Handler wires the login and register endpoints to the engine.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs an identity handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts the identity endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/api/auth/login", h.HandleLogin)
	r.Post("/api/user/register", h.HandleRegister)
}

// HandleLogin handles POST /api/auth/login.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[LoginRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	outcome, err := h.service.Resolve(ctx, req.ToModel())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	switch outcome.Kind {
	case models.OutcomeFound:
		httputil.WriteEnvelope(w, httputil.StatusFound, MessageFound, toRecordResponse(outcome.Record))
	case models.OutcomeNewUser:
		httputil.WriteEnvelope(w, httputil.StatusNewUser, MessageNewUser, toDraftResponse(outcome.Draft))
	default:
		h.logger.ErrorContext(ctx, "unknown resolve outcome",
			"request_id", requestID,
			"outcome", outcome.Kind,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "unknown outcome"))
		return
	}

	h.logger.InfoContext(ctx, "login handled",
		"request_id", requestID,
		"outcome", outcome.Kind,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// HandleRegister handles POST /api/user/register.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RegisterRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.service.Register(ctx, req.ToModel()); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteEnvelope(w, httputil.StatusSuccess, MessageRegistered, nil)
}
