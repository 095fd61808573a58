// Package profile fetches a citizen profile from the profile authority using a
// bearer credential and the caller's mobile identity token.
package profile

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"mtoken/internal/authority"
	"mtoken/internal/identity/models"
	"mtoken/internal/platform/config"
	"mtoken/internal/upstream"
)

const upstreamName = "profile"

// Resolver calls the profile endpoint once per resolution.
type Resolver struct {
	endpoint    string
	consumerKey string
	http        upstream.Doer
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(d upstream.Doer) Option {
	return func(r *Resolver) {
		r.http = d
	}
}

// New creates a Resolver. The consumer key is the one used for the
// credential exchange.
func New(cfg config.Profile, consumerKey string, insecure bool, opts ...Option) *Resolver {
	r := &Resolver{
		endpoint:    cfg.URL,
		consumerKey: consumerKey,
		http:        upstream.NewHTTPClient(cfg.Timeout, insecure),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type profileRequest struct {
	AppID  string `json:"AppId"`
	MToken string `json:"MToken"`
}

type profileResponse struct {
	Result json.RawMessage `json:"result"`
}

type profilePayload struct {
	UserID            string                `json:"userId"`
	CitizenID         string                `json:"citizenId"`
	FirstName         string                `json:"firstName"`
	LastName          string                `json:"lastName"`
	DateOfBirthString string                `json:"dateOfBirthString"`
	Email             string                `json:"email"`
	Notification      upstream.FlexibleText `json:"notification"`
	Mobile            string                `json:"mobile"`
}

// ResolveProfile fetches the profile behind identityToken. An empty result
// is reported as CategoryRejected; transport and shape failures keep their
// own categories.
func (r *Resolver) ResolveProfile(ctx context.Context, cred authority.Credential, applicationID, identityToken string) (*models.ExternalProfile, error) {
	ctx, span := otel.Tracer("mtoken/profile").Start(ctx, "profile.resolve")
	defer span.End()
	span.SetAttributes(attribute.String("app.id", applicationID))

	profile, err := r.resolve(ctx, cred, applicationID, identityToken)
	if err != nil {
		category := string(upstream.CategoryOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, category)
		span.SetAttributes(attribute.String("upstream.category", category))
		return nil, err
	}
	return profile, nil
}

func (r *Resolver) resolve(ctx context.Context, cred authority.Credential, applicationID, identityToken string) (*models.ExternalProfile, error) {
	req, err := upstream.NewJSONRequest(ctx, http.MethodPost, r.endpoint, profileRequest{
		AppID:  applicationID,
		MToken: identityToken,
	})
	if err != nil {
		return nil, upstream.NewError(upstream.CategoryInternal, upstreamName, "build request", err)
	}
	req.Header.Set("Consumer-Key", r.consumerKey)
	req.Header.Set("Token", string(cred))

	resp, err := upstream.Do(ctx, r.http, upstreamName, req)
	if err != nil {
		return nil, err
	}
	return parseProfileResponse(resp)
}

// isFalsy reports an absent, null, false, zero or empty-string result. The
// authority signals an expired token with any of these.
func isFalsy(raw []byte) bool {
	switch string(raw) {
	case "", "null", "false", `""`:
		return true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		f, err := n.Float64()
		return err == nil && f == 0
	}
	return false
}

func parseProfileResponse(resp *upstream.Response) (*models.ExternalProfile, error) {
	var body profileResponse
	if err := upstream.DecodeJSON(upstreamName, resp, &body); err != nil {
		return nil, err
	}

	raw := bytes.TrimSpace(body.Result)
	if isFalsy(raw) {
		return nil, rejected()
	}
	if raw[0] != '{' {
		return nil, upstream.NewError(upstream.CategoryContractMismatch, upstreamName, "result is not an object", nil)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, upstream.NewError(upstream.CategoryContractMismatch, upstreamName, "result is not an object", err)
	}
	if len(fields) == 0 {
		return nil, rejected()
	}

	var payload profilePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, upstream.NewError(upstream.CategoryContractMismatch, upstreamName, "result has unexpected shape", err)
	}
	if strings.TrimSpace(payload.CitizenID) == "" {
		return nil, upstream.NewError(upstream.CategoryContractMismatch, upstreamName, "result has no citizenId", nil)
	}

	return &models.ExternalProfile{
		SubjectID:    payload.UserID,
		CitizenID:    payload.CitizenID,
		FirstName:    payload.FirstName,
		LastName:     payload.LastName,
		DateOfBirth:  payload.DateOfBirthString,
		Email:        payload.Email,
		Notification: string(payload.Notification),
		Mobile:       payload.Mobile,
	}, nil
}

func rejected() error {
	return upstream.NewError(upstream.CategoryRejected, upstreamName, "no profile in result (token expired or invalid)", nil)
}
