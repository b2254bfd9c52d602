package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/kurihiro0119/repo-access-provisioner/internal/domain"
)

// Client is the API client for repo-access-provisioner
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client. Every request carries token as a
// bearer token.
func NewClient(baseURL, token string) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
			Transport: &oauth2.Transport{
				Source: ts,
				Base:   http.DefaultTransport,
			},
		},
	}
}

// APIError is a non-2xx response from the API
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error: %d %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("API error: %d - %s", e.StatusCode, e.Message)
}

// CreateRepositories submits a create batch
func (c *Client) CreateRepositories(ctx context.Context, req *domain.BatchRequest) (*domain.BatchResult, error) {
	var result domain.BatchResult
	if err := c.do(ctx, http.MethodPost, "/api/repositories", nil, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteRepositories submits a delete batch
func (c *Client) DeleteRepositories(ctx context.Context, req *domain.BatchRequest) (*domain.BatchResult, error) {
	var result domain.BatchResult
	if err := c.do(ctx, http.MethodDelete, "/api/repositories", nil, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListBatches retrieves the most recent batches
func (c *Client) ListBatches(ctx context.Context, limit int) ([]*domain.BatchRecord, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var response struct {
		Data []*domain.BatchRecord `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/batches", params, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetBatch retrieves one batch with its result
func (c *Client) GetBatch(ctx context.Context, batchID string) (*domain.BatchRecord, error) {
	var response struct {
		Data *domain.BatchRecord `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/batches/"+url.PathEscape(batchID), nil, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// RepositoryHistory retrieves the recorded outcomes for a repository
func (c *Client) RepositoryHistory(ctx context.Context, repository string, limit int) ([]*domain.OutcomeRecord, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var response struct {
		Data []*domain.OutcomeRecord `json:"data"`
	}
	path := fmt.Sprintf("/api/repositories/%s/history", url.PathEscape(repository))
	if err := c.do(ctx, http.MethodGet, path, params, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// HealthCheck checks if the API is healthy
func (c *Client) HealthCheck(ctx context.Context) error {
	var response struct {
		Success bool   `json:"success"`
		Status  string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, nil, &response); err != nil {
		return err
	}
	if !response.Success {
		return fmt.Errorf("API unhealthy: %s", response.Status)
	}
	return nil
}

// do performs a request and decodes a JSON response into result
func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, result interface{}) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return err
	}
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(data, &envelope) == nil && envelope.Error.Message != "" {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}

	return json.NewDecoder(resp.Body).Decode(result)
}
