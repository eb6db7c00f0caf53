package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/ideaboard/internal/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", "tok", Options{Timeout: 5 * time.Second, MaxRetries: 2, RetryBaseDelay: time.Millisecond})
}

func TestClient_ListSendsCursorAndHeaders(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/notifications", r.URL.Path)
		assert.Equal(t, "17", r.URL.Query().Get("cursor"))
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		_ = json.NewEncoder(w).Encode(model.Page{
			Items:      []model.Notification{{ID: "n1", Type: model.TypeInfo}},
			Deleted:    []model.Deletion{{ID: "n0", SourceVersion: 16}},
			NextCursor: "18",
			Watermark:  18,
		})
	})

	page, err := c.ListNotifications(context.Background(), "17", 50)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "n1", page.Items[0].ID)
	assert.Equal(t, "n0", page.Deleted[0].ID)
	assert.Equal(t, int64(18), page.Watermark)
}

func TestClient_EmptyCursorMeansFromStart(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "0", r.URL.Query().Get("cursor"))
		_, _ = w.Write([]byte(`{"items":[],"nextCursor":"0","hasMore":false,"watermark":0}`))
	})
	_, err := c.ListNotifications(context.Background(), "", 0)
	require.NoError(t, err)
}

func TestClient_RetriesOn429(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.Delete(context.Background(), "n1"))
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(model.Notification{ID: "n1", Type: model.TypeInfo})
	})

	n, err := c.GetNotification(context.Background(), "n1")
	require.NoError(t, err)
	assert.Equal(t, "n1", n.ID)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_RetriesDroppedConnections(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			conn, _, err := w.(http.Hijacker).Hijack()
			require.NoError(t, err)
			_ = conn.Close()
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.Delete(context.Background(), "n1"))
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})

	require.Error(t, c.Delete(context.Background(), "n1"))
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_GivesUpAfterMaxRetries(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	err := c.Clear(context.Background())
	require.Error(t, err)
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.Temporary())
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		notFound  bool
		auth      bool
		temporary bool
	}{
		{name: "not found", status: http.StatusNotFound, notFound: true},
		{name: "unauthorized", status: http.StatusUnauthorized, auth: true},
		{name: "forbidden", status: http.StatusForbidden, auth: true},
		{name: "unavailable", status: http.StatusServiceUnavailable, temporary: true},
		{name: "bad request", status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":"nope"}`))
			})

			_, err := c.MarkRead(context.Background(), "n1")
			require.Error(t, err)
			assert.Equal(t, tt.notFound, IsNotFound(err))
			assert.Equal(t, tt.auth, IsAuthError(err))

			var apiErr *Error
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.temporary, apiErr.Temporary())
			assert.Equal(t, "/notifications/n1/read", apiErr.Path)
		})
	}
}

func TestClient_MarkAllReadSendsIDs(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/notifications/read-all", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body readAllRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"a", "b"}, body.IDs)

		_ = json.NewEncoder(w).Encode(readAllResponse{Results: []model.BatchResult{
			{ID: "a", OK: true},
			{ID: "b", OK: false, Error: "gone"},
		}})
	})

	results, err := c.MarkAllRead(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.False(t, results[1].OK)
	assert.Equal(t, "gone", results[1].Error)
}

func TestClient_EscapesIDs(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/notifications/a%2Fb", r.URL.EscapedPath())
		_, _ = w.Write([]byte(`{"id":"a/b","type":"info","createdAt":"2026-03-01T12:00:00Z"}`))
	})

	n, err := c.GetNotification(context.Background(), "a/b")
	require.NoError(t, err)
	assert.Equal(t, "a/b", n.ID)
}

func TestClient_RateLimiterHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()
	c := NewClient(srv.URL, "", Options{RequestsPerSecond: 0.001})

	require.NoError(t, c.Delete(context.Background(), "first"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.Delete(ctx, "second")
	require.Error(t, err)
}
