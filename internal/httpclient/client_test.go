package httpclient

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

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string, retryMax int) *Client {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return New(Config{
		BaseURL:      baseURL,
		Username:     "admin",
		Password:     "secret",
		RetryMax:     retryMax,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
		Logger:       log,
	})
}

func TestDo_SendsBasicAuthAndJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "admin", user)
		require.Equal(t, "secret", pass)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.Equal(t, "/v1/things", r.URL.Path)
		require.Equal(t, "x", r.URL.Query().Get("id"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "value", body["key"])

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL+"/", 0)
	resp, err := c.Do(context.Background(), http.MethodPost, "/v1/things", url.Values{"id": {"x"}}, map[string]string{"key": "value"})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, resp.Decode(&out))
	require.True(t, out.OK)
}

func TestDo_RetriesTransientStatus(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	resp, err := newTestClient(server.URL, 3).Do(context.Background(), http.MethodGet, "/", nil, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestDo_ReturnsLastResponseWhenRetriesExhausted(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	resp, err := newTestClient(server.URL, 2).Do(context.Background(), http.MethodGet, "/", nil, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	require.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestDo_DoesNotRetryClientErrors(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, 3).Do(context.Background(), http.MethodPost, "/", nil, map[string]string{})
	require.NoError(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestExpect_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("denied"))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, 0).Expect(context.Background(), http.MethodGet, "/secure", nil, nil, http.StatusOK)
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusForbidden, statusErr.StatusCode)
	require.Equal(t, "GET /secure returned HTTP 403: denied", err.Error())
}

func TestPacer_SpacesCalls(t *testing.T) {
	p := NewPacer(20 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Wait(ctx))
	}
	require.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestPacer_ZeroDelayNeverWaits(t *testing.T) {
	p := NewPacer(0)
	for i := 0; i < 100; i++ {
		require.NoError(t, p.Wait(context.Background()))
	}
}

func TestPacer_HonoursCancellation(t *testing.T) {
	p := NewPacer(time.Hour)
	require.NoError(t, p.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, p.Wait(ctx), context.DeadlineExceeded)
}
