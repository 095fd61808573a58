// Package authority exchanges the application's consumer credentials for a
// short-lived bearer credential at the external authorization service.
package authority

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"mtoken/internal/platform/config"
	"mtoken/internal/upstream"
)

const upstreamName = "authority"

// Credential is the opaque bearer credential. It is valid for one
// reconciliation and never cached.
type Credential string

// String keeps credentials out of logs.
func (c Credential) String() string {
	if c == "" {
		return ""
	}
	return "[redacted]"
}

// Client performs the credential exchange. Every call is a fresh request.
type Client struct {
	endpoint       string
	consumerKey    string
	consumerSecret string
	agentID        string
	http           upstream.Doer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(d upstream.Doer) Option {
	return func(c *Client) {
		c.http = d
	}
}

// New creates a Client from configuration.
func New(cfg config.Authority, opts ...Option) *Client {
	c := &Client{
		endpoint:       cfg.URL,
		consumerKey:    cfg.ConsumerKey,
		consumerSecret: cfg.ConsumerSecret,
		agentID:        cfg.AgentID,
		http:           upstream.NewHTTPClient(cfg.Timeout, cfg.InsecureSkipVerify),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type credentialResponse struct {
	Result *string `json:"Result"`
}

// AcquireCredential performs a single exchange. There is no retry; an empty
// credential is reported as bad data so callers can tell it apart from a
// transport failure.
func (c *Client) AcquireCredential(ctx context.Context) (Credential, error) {
	ctx, span := otel.Tracer("mtoken/authority").Start(ctx, "authority.acquire_credential")
	defer span.End()

	cred, err := c.acquire(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(upstream.CategoryOf(err)))
		span.SetAttributes(attribute.String("upstream.category", string(upstream.CategoryOf(err))))
		return "", err
	}
	return cred, nil
}

func (c *Client) acquire(ctx context.Context) (Credential, error) {
	endpoint, err := c.requestURL()
	if err != nil {
		return "", upstream.NewError(upstream.CategoryInternal, upstreamName, "invalid endpoint", err)
	}
	req, err := upstream.NewJSONRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", upstream.NewError(upstream.CategoryInternal, upstreamName, "build request", err)
	}
	req.Header.Set("Consumer-Key", c.consumerKey)

	resp, err := upstream.Do(ctx, c.http, upstreamName, req)
	if err != nil {
		return "", err
	}
	return parseCredentialResponse(resp)
}

func (c *Client) requestURL() (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("ConsumerSecret", c.consumerSecret)
	q.Set("AgentID", c.agentID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func parseCredentialResponse(resp *upstream.Response) (Credential, error) {
	var body credentialResponse
	if err := upstream.DecodeJSON(upstreamName, resp, &body); err != nil {
		return "", err
	}
	if body.Result == nil {
		return "", upstream.NewError(upstream.CategoryBadData, upstreamName, "response has no Result", nil)
	}
	token := strings.TrimSpace(*body.Result)
	if token == "" {
		return "", upstream.NewError(upstream.CategoryBadData, upstreamName, "empty credential", nil)
	}
	return Credential(token), nil
}
