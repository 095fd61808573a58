// Package httputil centralizes JSON request decoding and the response envelope
// shared by every public endpoint: a status tag, a message and an optional
// payload.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	dErrors "mtoken/pkg/domain-errors"
)

// MaxBodyBytes bounds request bodies accepted by DecodeAndPrepare.
const MaxBodyBytes = 1 << 20

// Status tags returned in the envelope.
const (
	StatusFound   = "found"
	StatusNewUser = "new_user"
	StatusSuccess = "success"
	StatusError   = "error"
)

// Envelope is the response body of every endpoint.
type Envelope struct {
	Status  string `json:"status"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Validatable requests check and normalize themselves after decoding.
type Validatable interface {
	Validate() error
}

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteEnvelope writes a non-error envelope with HTTP 200.
func WriteEnvelope(w http.ResponseWriter, status, message string, data any) {
	WriteJSON(w, http.StatusOK, Envelope{Status: status, Message: message, Data: data})
}

// WriteError translates err into an error envelope. Internal errors never
// expose their message or cause.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	message := dErrors.MessageOf(err)
	if code == dErrors.CodeInternal || message == "" {
		message = "internal error"
	}
	WriteJSON(w, StatusCode(code), Envelope{
		Status:  StatusError,
		Code:    string(code),
		Message: message,
	})
}

// StatusCode maps a domain error code to an HTTP status code.
func StatusCode(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvalidRequest:
		return http.StatusBadRequest
	case dErrors.CodeProfileRejected:
		return http.StatusUnauthorized
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeRateLimited:
		return http.StatusTooManyRequests
	case dErrors.CodeAuthorityUnavailable, dErrors.CodeProfileUnavailable, dErrors.CodeNotificationFailed:
		return http.StatusBadGateway
	case dErrors.CodeStoreUnavailable, dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// DecodeAndPrepare decodes a JSON body into T and runs its Validate method.
// On failure it writes the error response, logs it and returns false.
func DecodeAndPrepare[T any, PT interface {
	*T
	Validatable
}](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	var req T
	body := http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	// An empty body decodes as {} so Validate reports the missing fields.
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		message := "invalid request body"
		if errors.As(err, &tooLarge) {
			message = "request body too large"
		}
		logger.WarnContext(ctx, "failed to decode request",
			"request_id", requestID,
			"error", err,
		)
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, message))
		return nil, false
	}

	if err := PT(&req).Validate(); err != nil {
		logger.WarnContext(ctx, "request validation failed",
			"request_id", requestID,
			"error", err,
		)
		WriteError(w, err)
		return nil, false
	}
	return &req, true
}
