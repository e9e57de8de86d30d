// Package api provides the typed HTTP client for the feedback service.
// Every response is an envelope {success, data, error, meta}; the client
// unwraps it into a typed payload or a classified *Error.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// maxResponseSize bounds how much of a response body is read.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// DefaultBaseURL is the hosted feedback service.
const DefaultBaseURL = "https://feddy.app"

// APIKeyHeader carries the project API key on every request.
const APIKeyHeader = "X-API-Key"

// Endpoint paths.
const (
	pathFeedback = "/api/feedback"
	pathSubmit   = "/api/feedback/submit"
	pathVote     = "/api/feedback/vote"
	pathComment  = "/api/feedback/comment"
)

// ClientConfig is the explicit configuration a Client is built from.
type ClientConfig struct {
	APIKey  string
	BaseURL string
}

// Client talks to the feedback service. It never retries; callers decide.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
	metrics    *Metrics
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithTimeout sets the timeout of the default HTTP client. It has no effect
// on a client passed with WithHTTPClient.
func WithTimeout(d time.Duration) ClientOption {
	return func(client *Client) {
		client.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = logger
	}
}

// WithMetrics records per-endpoint request outcomes and latencies.
func WithMetrics(m *Metrics) ClientOption {
	return func(client *Client) {
		client.metrics = m
	}
}

// NewClient creates a client for cfg. An empty BaseURL selects DefaultBaseURL.
func NewClient(cfg ClientConfig, opts ...ClientOption) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	c := &Client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		timeout: 30 * time.Second,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}

	return c
}

// BaseURL returns the normalised base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListFeedbacks fetches the feedback list, optionally filtered by status.
// UserID lets the server fill in UserVoted for that viewer.
func (c *Client) ListFeedbacks(ctx context.Context, opts ListOptions) (*FeedbackList, error) {
	query := map[string]string{
		"status": string(opts.Status),
		"userId": opts.UserID,
	}
	return send[FeedbackList](ctx, c, "list_feedbacks", http.MethodGet, pathFeedback, query, nil)
}

// SubmitFeedback creates a new feedback item.
func (c *Client) SubmitFeedback(ctx context.Context, submission FeedbackSubmission) (*SubmissionResult, error) {
	return send[SubmissionResult](ctx, c, "submit_feedback", http.MethodPost, pathSubmit, nil, submission)
}

// Vote records an up-vote for a feedback item.
func (c *Client) Vote(ctx context.Context, req VoteRequest) (*VoteResult, error) {
	return send[VoteResult](ctx, c, "vote", http.MethodPost, pathVote, nil, req)
}

// ListComments fetches one page of comments for a feedback item.
func (c *Client) ListComments(ctx context.Context, feedbackID string, page CommentPage) (*CommentList, error) {
	query := map[string]string{
		"feedbackId": feedbackID,
	}
	if page.Limit != nil {
		query["limit"] = strconv.Itoa(*page.Limit)
	}
	if page.Offset != nil {
		query["offset"] = strconv.Itoa(*page.Offset)
	}
	return send[CommentList](ctx, c, "list_comments", http.MethodGet, pathComment, query, nil)
}

// AddComment posts a comment or a reply.
func (c *Client) AddComment(ctx context.Context, req CommentRequest) (*CommentResult, error) {
	return send[CommentResult](ctx, c, "add_comment", http.MethodPost, pathComment, nil, req)
}

// buildURL joins base and path and appends the non-empty query values.
func (c *Client) buildURL(path string, query map[string]string) (string, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("base URL %q must be absolute", c.baseURL)
	}

	if len(query) > 0 {
		values := u.Query()
		for key, value := range query {
			if value == "" {
				continue
			}
			values.Add(key, value)
		}
		u.RawQuery = values.Encode()
	}

	return u.String(), nil
}

// send performs one request and unwraps the envelope into T.
// Errors are classified in a fixed order: URL, body encoding, network,
// body read, JSON parse, auth/rate status, other status, empty envelope,
// payload decode.
func send[T any](ctx context.Context, c *Client, endpoint, method, path string, query map[string]string, body any) (result *T, err error) {
	start := time.Now()
	defer func() {
		c.metrics.observe(endpoint, time.Since(start), err)
	}()

	target, err := c.buildURL(path, query)
	if err != nil {
		return nil, newInvalidURL(err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, newDecoding("Failed to encode request body", err)
		}
		reader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, newInvalidURL(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(APIKeyHeader, c.apiKey)

	c.logger.Debug("Sending feedback API request",
		"endpoint", endpoint,
		"method", method,
		"url", target)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, newNetwork(err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, newDecoding("Failed to read response body", err)
	}

	c.logger.Debug("Received feedback API response",
		"endpoint", endpoint,
		"status", httpResp.StatusCode,
		"bytes", len(respBody))

	var env *envelope
	if len(bytes.TrimSpace(respBody)) > 0 {
		env = &envelope{}
		if err := json.Unmarshal(respBody, env); err != nil {
			return nil, newDecoding("Failed to parse response JSON", err)
		}
	}

	// Any parseable body, envelope error included, is ignored for 401 and 429.
	switch httpResp.StatusCode {
	case http.StatusUnauthorized:
		return nil, newInvalidAPIKey()
	case http.StatusTooManyRequests:
		return nil, newRateLimited()
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, classifyHTTPError(httpResp.StatusCode, env)
	}

	// A 2xx with success=false discards the server message and reports no-data.
	if env == nil || !env.Success || !env.hasData() {
		return nil, newNoData(httpResp.StatusCode)
	}

	var payload T
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return nil, newDecoding("Failed to decode response data", err)
	}

	return &payload, nil
}

// classifyHTTPError maps a non-2xx status other than 401/429 to a server error.
func classifyHTTPError(statusCode int, env *envelope) *Error {
	if env != nil && env.Error != nil && *env.Error != "" {
		return newServer(statusCode, *env.Error)
	}
	return newServer(statusCode, fmt.Sprintf("HTTP %d", statusCode))
}

// errorOutcome labels err for metrics.
func errorOutcome(err error) string {
	if err == nil {
		return "ok"
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return string(apiErr.Type)
	}
	return "unknown"
}
