// Package notify sends push notifications to citizens through the
// government notification gateway. It is invoked by callers after a
// reconciliation, never by the reconciliation engine itself.
package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"mtoken/internal/platform/config"
	"mtoken/internal/upstream"
)

const upstreamName = "notifier"

// Message is one push notification.
type Message struct {
	CitizenID string
	Text      string
	AppID     string
}

type pushPayload struct {
	CitizenID string `json:"CitizenID"`
	Message   string `json:"Message"`
	AppID     string `json:"AppId"`
	Title     string `json:"Title"`
}

// Client posts notifications. There is no retry and no idempotency key; a
// failed send is reported once and left to the caller.
type Client struct {
	endpoint     string
	consumerKey  string
	token        string
	title        string
	defaultAppID string
	http         upstream.Doer
}

type Option func(*Client)

func WithHTTPClient(d upstream.Doer) Option {
	return func(c *Client) {
		c.http = d
	}
}

// New creates a Client. defaultAppID is used when a message has no AppID.
func New(cfg config.Notifier, defaultAppID string, opts ...Option) *Client {
	c := &Client{
		endpoint:     cfg.URL,
		consumerKey:  cfg.ConsumerKey,
		token:        cfg.Token,
		title:        cfg.Title,
		defaultAppID: defaultAppID,
		http:         upstream.NewHTTPClient(cfg.Timeout, false),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send delivers msg and returns the gateway's response body unchanged.
// A non-2xx answer is returned as an upstream error whose Message carries the
// gateway's own message when it sent one.
func (c *Client) Send(ctx context.Context, msg Message) (json.RawMessage, error) {
	ctx, span := otel.Tracer("mtoken/notify").Start(ctx, "notify.send")
	defer span.End()

	body, err := c.send(ctx, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(upstream.CategoryOf(err)))
		return nil, err
	}
	return body, nil
}

func (c *Client) send(ctx context.Context, msg Message) (json.RawMessage, error) {
	appID := strings.TrimSpace(msg.AppID)
	if appID == "" {
		appID = c.defaultAppID
	}
	req, err := upstream.NewJSONRequest(ctx, http.MethodPost, c.endpoint, pushPayload{
		CitizenID: msg.CitizenID,
		Message:   msg.Text,
		AppID:     appID,
		Title:     c.title,
	})
	if err != nil {
		return nil, upstream.NewError(upstream.CategoryInternal, upstreamName, "build request", err)
	}
	req.Header.Set("Consumer-Key", c.consumerKey)
	req.Header.Set("Token", c.token)

	resp, err := upstream.Do(ctx, c.http, upstreamName, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		uerr := upstream.ClassifyStatus(upstreamName, resp.StatusCode)
		if m := gatewayMessage(resp.Body); m != "" {
			uerr.Message = m
		}
		return nil, uerr
	}
	if len(resp.Body) == 0 || !json.Valid(resp.Body) {
		return json.RawMessage("null"), nil
	}
	return json.RawMessage(resp.Body), nil
}

func gatewayMessage(body []byte) string {
	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	return strings.TrimSpace(parsed.Message)
}
