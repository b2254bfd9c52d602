package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/repo-access-provisioner/internal/domain"
)

func TestCreateRepositories_SendsBearerToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/repositories", r.URL.Path)

		var req domain.BatchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Requests, 1)
		require.False(t, req.FailFastOrDefault())

		_ = json.NewEncoder(w).Encode(domain.BatchResult{
			BatchID:        "abcd1234",
			Success:        true,
			Message:        "1/1 requests succeeded",
			ProcessedCount: 1,
			TotalRequests:  1,
			Results:        []domain.ItemOutcome{},
			Errors:         []domain.ItemOutcome{},
		})
	}))
	defer server.Close()

	failFast := false
	c := NewClient(server.URL+"/", "tok")
	result, err := c.CreateRepositories(context.Background(), &domain.BatchRequest{
		Requests: []domain.ProvisioningRequest{{OrganizationName: "Logistics", Username: "john.doe", PackageManager: "npm", AppID: "app1"}},
		FailFast: &failFast,
	})
	require.NoError(t, err)
	require.Equal(t, "abcd1234", result.BatchID)
	require.True(t, result.Success)
}

func TestDeleteRepositories_UsesDelete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		_, _ = w.Write([]byte(`{"batch_id":"x","success":false,"results":[],"errors":[]}`))
	}))
	defer server.Close()

	result, err := NewClient(server.URL, "tok").DeleteRepositories(context.Background(), &domain.BatchRequest{})
	require.NoError(t, err)
	require.False(t, result.Success)
}

func TestErrorEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"success":false,"error":{"code":"UNAUTHORIZED","message":"missing or invalid bearer token"}}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "bad").ListBatches(context.Background(), 5)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	require.Equal(t, "UNAUTHORIZED", apiErr.Code)
	require.Equal(t, "API error: 401 UNAUTHORIZED - missing or invalid bearer token", err.Error())
}

func TestPlainTextError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	err := NewClient(server.URL, "tok").HealthCheck(context.Background())
	require.EqualError(t, err, "API error: 502 - upstream down")
}

func TestRepositoryHistory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/repositories/npm-release-app1/history", r.URL.Path)
		require.Equal(t, "3", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"data":[{"batch_id":"b1","index":0,"success":true,"action":"create","repository_name":"npm-release-app1"}]}`))
	}))
	defer server.Close()

	history, err := NewClient(server.URL, "tok").RepositoryHistory(context.Background(), "npm-release-app1", 3)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "b1", history[0].BatchID)
	require.Equal(t, domain.ActionCreate, history[0].Action)
}

func TestGetBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/batches/b1", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":{"id":"b1","action":"delete","source":"cli","result":{"batch_id":"b1","results":[],"errors":[]}}}`))
	}))
	defer server.Close()

	record, err := NewClient(server.URL, "tok").GetBatch(context.Background(), "b1")
	require.NoError(t, err)
	require.Equal(t, domain.ActionDelete, record.Action)
	require.NotNil(t, record.Result)
}
