package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"mtoken/internal/upstream"
	dErrors "mtoken/pkg/domain-errors"
	"mtoken/pkg/platform/audit"
	"mtoken/pkg/platform/httputil"
	"mtoken/pkg/requestcontext"
)

const (
	MessageSent          = "Notification sent"
	sendFailedMessage    = "Failed to send notification"
	missingFieldsMessage = "Missing userId or message"
)

// Sender is the notification client as seen by the handler.
type Sender interface {
	Send(ctx context.Context, msg Message) (json.RawMessage, error)
}

// SendRequest is the body of POST /api/notify/send.
type SendRequest struct {
	AppID   string `json:"appId"`
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

func (r *SendRequest) Validate() error {
	r.AppID = strings.TrimSpace(r.AppID)
	r.UserID = strings.TrimSpace(r.UserID)
	if r.UserID == "" || strings.TrimSpace(r.Message) == "" {
		return dErrors.New(dErrors.CodeInvalidRequest, missingFieldsMessage)
	}
	return nil
}

type Handler struct {
	sender       Sender
	logger       *slog.Logger
	publisher    audit.Publisher
	auditTimeout time.Duration
}

type HandlerOption func(*Handler)

func WithAuditPublisher(p audit.Publisher) HandlerOption {
	return func(h *Handler) {
		h.publisher = p
	}
}

// WithAuditTimeout bounds how long a response waits on the audit publisher.
func WithAuditTimeout(d time.Duration) HandlerOption {
	return func(h *Handler) {
		h.auditTimeout = d
	}
}

func NewHandler(sender Sender, logger *slog.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{sender: sender, logger: logger, auditTimeout: audit.DefaultEmitTimeout}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/api/notify/send", h.HandleSend)
}

// HandleSend handles POST /api/notify/send.
func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[SendRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	subject := audit.HashSubject(req.UserID)
	data, err := h.sender.Send(ctx, Message{CitizenID: req.UserID, Text: req.Message, AppID: req.AppID})
	if err != nil {
		h.logger.ErrorContext(ctx, "notification failed",
			"request_id", requestID,
			"subject", subject,
			"category", upstream.CategoryOf(err),
			"error", err,
		)
		h.emit(ctx, subject, "failed", string(upstream.CategoryOf(err)))
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeNotificationFailed, failureMessage(err)))
		return
	}

	h.logger.InfoContext(ctx, "notification sent",
		"request_id", requestID,
		"subject", subject,
	)
	h.emit(ctx, subject, "sent", "")
	httputil.WriteEnvelope(w, httputil.StatusSuccess, MessageSent, data)
}

func (h *Handler) emit(ctx context.Context, subject, outcome, category string) {
	if h.publisher == nil {
		return
	}
	event := audit.Event{
		Type:        audit.EventNotificationSent,
		SubjectHash: subject,
		Outcome:     outcome,
		RequestID:   requestcontext.RequestID(ctx),
		ClientIP:    requestcontext.ClientIP(ctx),
	}
	if category != "" {
		event.Attributes = map[string]string{"category": category}
	}
	if err := audit.EmitBounded(ctx, h.publisher, event, h.auditTimeout); err != nil {
		h.logger.WarnContext(ctx, "failed to publish notification audit event",
			"request_id", event.RequestID,
			"error", err,
		)
	}
}

// failureMessage surfaces the gateway's own message when it rejected the
// push, otherwise a generic one.
func failureMessage(err error) string {
	var ue *upstream.Error
	if errors.As(err, &ue) && ue.StatusCode != 0 && !strings.HasPrefix(ue.Message, "unexpected status") {
		return ue.Message
	}
	return sendFailedMessage
}
