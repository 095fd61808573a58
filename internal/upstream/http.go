package upstream

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxResponseBytes bounds how much of an upstream body is read.
const maxResponseBytes = 1 << 20

// Doer is the subset of *http.Client the upstream clients depend on.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewHTTPClient builds the client used for an upstream. insecure mirrors the
// deployment option that disables certificate verification; keep it off.
func NewHTTPClient(timeout time.Duration, insecure bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via config
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// Response is a fully read upstream response.
type Response struct {
	StatusCode int
	Body       []byte
}

// Do sends req and reads the body. Transport failures come back categorized.
func Do(ctx context.Context, client Doer, name string, req *http.Request) (*Response, error) {
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, ClassifyTransport(name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, ClassifyTransport(name, err)
	}
	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

// NewJSONRequest builds a request carrying payload as a JSON body. A nil
// payload produces a request without a body.
func NewJSONRequest(ctx context.Context, method, url string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// DecodeJSON decodes a 2xx body into dst. Non-2xx statuses and malformed
// bodies are categorized.
func DecodeJSON(name string, resp *Response, dst any) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ClassifyStatus(name, resp.StatusCode)
	}
	if err := json.Unmarshal(resp.Body, dst); err != nil {
		return NewError(CategoryBadData, name, "malformed response body", err)
	}
	return nil
}
