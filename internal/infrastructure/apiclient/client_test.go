package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/erp/backoffice/internal/domain/querycache"
	"github.com/erp/backoffice/internal/infrastructure/config"
	"github.com/erp/backoffice/internal/infrastructure/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(config.BackendConfig{BaseURL: srv.URL + "/api/v1", Timeout: 5 * time.Second, MaxRetries: 2},
		WithRetry(RetryConfig{MaxRetries: 2, RetryDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}))
	require.NoError(t, err)
	return c, srv
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(config.BackendConfig{})
	assert.Error(t, err)
}

func TestClient_Get(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/branches", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		assert.Equal(t, "req-1", r.Header.Get(logger.RequestIDHeader))
		assert.Equal(t, "ar", r.Header.Get("Accept-Language"))
		_, _ = io.WriteString(w, `{"data":[{"id":1,"name":"Main"}],"total":1,"total_pages":1}`)
	})

	ctx := WithBearerToken(context.Background(), "token-1")
	ctx = logger.WithRequestID(ctx, "req-1")
	ctx = WithAcceptLanguage(ctx, "ar")

	env, err := c.Get(ctx, "branches", url.Values{"page": {"2"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, env.Status)

	entry, err := env.Entry()
	require.NoError(t, err)
	page, ok := entry.(querycache.Paginated)
	require.True(t, ok)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, "Main", page.Data[0].String("name"))
}

func TestClient_Post_SendsJSONBody(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string][]int64
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []int64{2, 3}, body["cloth_ids"])
		_, _ = io.WriteString(w, `{"id":9,"status":"partially_approved"}`)
	})

	env, err := c.Post(context.Background(), "/clothes-transfers/9/approve-partial", map[string][]int64{"cloth_ids": {2, 3}})
	require.NoError(t, err)

	rec, err := env.Record()
	require.NoError(t, err)
	id, _ := rec.ID()
	assert.Equal(t, int64(9), id)
	assert.Equal(t, "partially_approved", rec.String("status"))
}

func TestClient_RetriesGetOnServerError(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"id":1}`)
	})

	_, err := c.Get(context.Background(), "/branches/1", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_NeverRetriesMutations(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.Put(context.Background(), "/branches/1", map[string]string{"name": "x"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.Get(context.Background(), "/branches/404", nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_ParsesErrorBodies(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantCode    string
		wantMessage string
	}{
		{
			name:        "wrapped error",
			status:      http.StatusUnprocessableEntity,
			body:        `{"success":false,"error":{"code":"VALIDATION_ERROR","message":"name is required"}}`,
			wantCode:    "VALIDATION_ERROR",
			wantMessage: "name is required",
		},
		{
			name:        "flat message",
			status:      http.StatusConflict,
			body:        `{"message":"Transfer already approved","errors":{"id":["decided"]}}`,
			wantCode:    CodeUpstream,
			wantMessage: "Transfer already approved",
		},
		{
			name:        "plain text",
			status:      http.StatusInternalServerError,
			body:        "database unavailable",
			wantCode:    CodeUpstream,
			wantMessage: "database unavailable",
		},
		{
			name:        "empty body",
			status:      http.StatusForbidden,
			body:        "",
			wantCode:    CodeUpstream,
			wantMessage: "Forbidden",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := c.Delete(context.Background(), "/branches/1")
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.wantCode, apiErr.Code)
			assert.Equal(t, tt.wantMessage, apiErr.Message)
		})
	}
}

func TestClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, err := New(config.BackendConfig{BaseURL: base},
		WithRetry(RetryConfig{MaxRetries: 1, RetryDelay: time.Millisecond, Multiplier: 1}))
	require.NoError(t, err)

	_, err = c.Get(context.Background(), "/branches", nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, CodeNetwork, apiErr.Code)
	assert.Zero(t, apiErr.Status)
}

func TestClient_CancelledContext(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Get(ctx, "/branches", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEnvelope_Payload(t *testing.T) {
	t.Run("unwraps success envelope with meta", func(t *testing.T) {
		env := &Envelope{Data: json.RawMessage(`{"success":true,"data":[{"id":1}],"meta":{"total":7,"total_pages":4}}`)}
		entry, err := env.Entry()
		require.NoError(t, err)
		page, ok := entry.(querycache.Paginated)
		require.True(t, ok)
		assert.Equal(t, 7, page.Total)
		assert.Equal(t, 4, page.TotalPages)
	})

	t.Run("unwraps success envelope", func(t *testing.T) {
		env := &Envelope{Data: json.RawMessage(`{"success":true,"data":{"id":3,"name":"Cairo"}}`)}
		var out struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		}
		require.NoError(t, env.Decode(&out))
		assert.Equal(t, int64(3), out.ID)
		assert.Equal(t, "Cairo", out.Name)
	})

	t.Run("empty body", func(t *testing.T) {
		env := &Envelope{Status: http.StatusNoContent}
		rec, err := env.Record()
		require.NoError(t, err)
		assert.Nil(t, rec)
	})

	t.Run("array body is unknown", func(t *testing.T) {
		env := &Envelope{Data: json.RawMessage(`[1,2,3]`)}
		entry, err := env.Entry()
		require.NoError(t, err)
		assert.IsType(t, querycache.Unknown{}, entry)
	})
}
