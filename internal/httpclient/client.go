package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

// Default transport settings
const (
	DefaultRetryMax     = 3
	DefaultTimeout      = 30 * time.Second
	DefaultRetryWaitMin = 100 * time.Millisecond
	DefaultRetryWaitMax = 2 * time.Second
)

// TransientStatusCodes are retried by the transport
var TransientStatusCodes = []int{
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// Config configures a Client
type Config struct {
	BaseURL  string
	Username string
	Password string

	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Timeout      time.Duration
	MinDelay     time.Duration

	Logger logrus.FieldLogger
}

// Client is a JSON client for one remote system using basic auth.
// Transient failures are retried with backoff.
type Client struct {
	baseURL  string
	username string
	password string
	http     *retryablehttp.Client
	pacer    *Pacer
	log      logrus.FieldLogger
}

// New creates a Client
func New(cfg Config) *Client {
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryWaitMin == 0 {
		cfg.RetryWaitMin = DefaultRetryWaitMin
	}
	if cfg.RetryWaitMax == 0 {
		cfg.RetryWaitMax = DefaultRetryWaitMax
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = cfg.RetryWaitMin
	rc.RetryWaitMax = cfg.RetryWaitMax
	rc.CheckRetry = retryPolicy
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = leveledLogger{log: log}

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		http:     rc,
		pacer:    NewPacer(cfg.MinDelay),
		log:      log,
	}
}

// retryPolicy retries connection errors and transient status codes
func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	return slices.Contains(TransientStatusCodes, resp.StatusCode), nil
}

// Response is a fully read HTTP response
type Response struct {
	StatusCode int
	Body       []byte
}

// Is reports whether the status code is one of codes
func (r *Response) Is(codes ...int) bool {
	return slices.Contains(codes, r.StatusCode)
}

// Decode unmarshals the JSON body into v
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// StatusError is returned for a response with an unexpected status code
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		return fmt.Sprintf("%s %s returned HTTP %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s returned HTTP %d: %s", e.Method, e.Path, e.StatusCode, body)
}

// Do sends a request. path is relative to the base URL; body, if not nil, is
// sent as JSON. Any completed exchange returns a Response whatever its status.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body any) (*Response, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return nil, err
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var raw interface{}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		raw = bytes.NewReader(data)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, target, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response of %s %s: %w", method, path, err)
	}

	c.log.WithFields(logrus.Fields{
		"method": method,
		"path":   path,
		"status": resp.StatusCode,
	}).Debug("Remote call completed")

	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}

// Expect sends a request and fails with a *StatusError unless the response
// status is one of codes.
func (c *Client) Expect(ctx context.Context, method, path string, query url.Values, body any, codes ...int) (*Response, error) {
	resp, err := c.Do(ctx, method, path, query, body)
	if err != nil {
		return nil, err
	}
	if !resp.Is(codes...) {
		return resp, &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}
	return resp, nil
}
