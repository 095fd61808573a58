// Package observability provides audit logging helpers for the ratelimit module.
package observability

import (
	"context"
	"log/slog"
	"time"

	"mtoken/pkg/platform/audit"
	"mtoken/pkg/requestcontext"
)

// LogAudit logs a rate limit event and forwards it to publisher when one is
// configured, waiting at most timeout. Publisher failures are logged and
// swallowed.
func LogAudit(ctx context.Context, logger *slog.Logger, publisher audit.Publisher, timeout time.Duration, event audit.EventType, route, clientIP string, attrs map[string]string) {
	requestID := requestcontext.RequestID(ctx)

	if logger != nil {
		logger.InfoContext(ctx, string(event),
			"request_id", requestID,
			"route", route,
			"client_ip", clientIP,
			"log_type", "audit",
		)
	}

	if publisher == nil {
		return
	}

	if attrs == nil {
		attrs = map[string]string{}
	}
	attrs["route"] = route
	err := audit.EmitBounded(ctx, publisher, audit.Event{
		Type:       event,
		Outcome:    "rejected",
		RequestID:  requestID,
		ClientIP:   clientIP,
		Attributes: attrs,
	}, timeout)
	if err != nil && logger != nil {
		logger.WarnContext(ctx, "failed to publish rate limit audit event",
			"request_id", requestID,
			"error", err,
		)
	}
}
