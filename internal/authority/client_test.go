package authority

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mtoken/internal/platform/config"
	"mtoken/internal/upstream"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	client := New(config.Authority{
		URL:            server.URL + "/auth/validate",
		ConsumerKey:    "consumer-key",
		ConsumerSecret: "consumer-secret",
		AgentID:        "agent-1",
		Timeout:        time.Second,
	})
	return client, &calls
}

func TestAcquireCredential(t *testing.T) {
	t.Run("sends consumer credentials and returns the result", func(t *testing.T) {
		client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "/auth/validate", r.URL.Path)
			assert.Equal(t, "consumer-key", r.Header.Get("Consumer-Key"))
			assert.Equal(t, "consumer-secret", r.URL.Query().Get("ConsumerSecret"))
			assert.Equal(t, "agent-1", r.URL.Query().Get("AgentID"))
			_, _ = w.Write([]byte(`{"Result":"bearer-123"}`))
		})

		cred, err := client.AcquireCredential(context.Background())
		require.NoError(t, err)
		assert.Equal(t, Credential("bearer-123"), cred)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("every call is a fresh exchange", func(t *testing.T) {
		client, calls := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"Result":"bearer-123"}`))
		})

		_, err := client.AcquireCredential(context.Background())
		require.NoError(t, err)
		_, err = client.AcquireCredential(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("empty credential is bad data", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"Result":""}`))
		})

		cred, err := client.AcquireCredential(context.Background())
		require.Error(t, err)
		assert.Empty(t, cred)
		assert.Equal(t, upstream.CategoryBadData, upstream.CategoryOf(err))
	})

	t.Run("missing Result is bad data", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"Message":"nope"}`))
		})

		_, err := client.AcquireCredential(context.Background())
		assert.Equal(t, upstream.CategoryBadData, upstream.CategoryOf(err))
	})

	t.Run("rejected consumer key is an authentication failure", func(t *testing.T) {
		client, calls := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})

		_, err := client.AcquireCredential(context.Background())
		assert.Equal(t, upstream.CategoryAuthentication, upstream.CategoryOf(err))
		assert.Equal(t, int32(1), calls.Load(), "no retry")
	})

	t.Run("server error is an outage", func(t *testing.T) {
		client, calls := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})

		_, err := client.AcquireCredential(context.Background())
		assert.Equal(t, upstream.CategoryOutage, upstream.CategoryOf(err))
		assert.Equal(t, int32(1), calls.Load(), "no retry")
	})

	t.Run("deadline is a timeout", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		})

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := client.AcquireCredential(ctx)
		assert.Equal(t, upstream.CategoryTimeout, upstream.CategoryOf(err))
	})
}

func TestCredentialString(t *testing.T) {
	assert.Equal(t, "[redacted]", Credential("secret").String())
	assert.Empty(t, Credential("").String())
}
