// Package campus implements the campus event-management platform API client.
// This package handles all communication with the campus web application:
// fetching event schedules, attendance ledgers, strategy configurations and
// registered participants, and submitting single and bulk attendance marks.
package campus

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the campus API client.
type ClientConfig struct {
	// BaseURL is the campus API base URL
	BaseURL string

	// APIKey is the service API key for authentication
	APIKey string

	// Timeout is the HTTP request timeout
	Timeout time.Duration

	// RateLimiterConfig for API rate limiting
	RateLimiterConfig RateLimiterConfig

	// CircuitBreakerConfig for fault tolerance
	CircuitBreakerConfig CircuitBreakerConfig

	// RetryConfig for retry behavior
	RetryConfig RetryConfig

	// Logger for structured logging
	Logger *slog.Logger

	// Debug enables debug logging
	Debug bool
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:              baseURL,
		Timeout:              30 * time.Second,
		RateLimiterConfig:    DefaultRateLimiterConfig(),
		CircuitBreakerConfig: DefaultCircuitBreakerConfig(),
		RetryConfig:          DefaultRetryConfig(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is the campus platform API client. All attendance marking through
// this client is idempotent upstream (re-marking a pair confirms the existing
// mark), so retrying POSTs after a network failure is safe.
type Client struct {
	config         ClientConfig
	httpClient     *http.Client
	logger         *slog.Logger
	rateLimiter    *RateLimiter
	circuitBreaker *CircuitBreaker
	mapper         *Mapper

	// Token management
	token   *TokenDTO
	tokenMu sync.RWMutex
}

// NewClient creates a new campus API client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger:         config.Logger,
		rateLimiter:    NewRateLimiter(config.RateLimiterConfig),
		circuitBreaker: NewCircuitBreaker(config.CircuitBreakerConfig),
		mapper:         NewMapper(),
	}
}

// Mapper returns the DTO-to-domain mapper used by this client.
func (c *Client) Mapper() *Mapper {
	return c.mapper
}

// ══════════════════════════════════════════════════════════════════════════════
// AUTHENTICATION OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Authenticate authenticates a service account with email and password using
// Basic Authentication and stores the returned access token for subsequent
// requests. Deployments that configure a static APIKey can skip this.
func (c *Client) Authenticate(ctx context.Context, email, password string) (*TokenDTO, error) {
	fullURL := c.config.BaseURL + "/api/v1/auth/signin"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	credentials := email + ":" + password
	encoded := base64.StdEncoding.EncodeToString([]byte(credentials))
	req.Header.Set("Authorization", "Basic "+encoded)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var authResponse struct {
		AccessToken string     `json:"access_token"`
		ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	}
	if err := json.Unmarshal(respBody, &authResponse); err != nil {
		return nil, fmt.Errorf("parse auth response: %w", err)
	}

	token := TokenDTO{
		AccessToken: authResponse.AccessToken,
		TokenType:   "Bearer",
	}
	if authResponse.ExpiresAt != nil {
		token.ExpiresAt = *authResponse.ExpiresAt
	}

	c.tokenMu.Lock()
	c.token = &token
	c.tokenMu.Unlock()

	return &token, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetSessions fetches the full session schedule of an event.
func (c *Client) GetSessions(ctx context.Context, eventID string) ([]SessionDTO, error) {
	path := fmt.Sprintf("/api/v1/events/%s/sessions", url.PathEscape(eventID))

	var response APIResponse[[]SessionDTO]
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &response); err != nil {
		return nil, fmt.Errorf("get sessions for event %s: %w", eventID, err)
	}

	if !response.Success {
		return nil, fmt.Errorf("api error: %s", response.Error)
	}

	return response.Data, nil
}

// GetStrategyConfig fetches the attendance strategy configuration of an event.
// A 404 maps to ErrStrategyNotConfigured: "not configured" is a real state
// the engine distinguishes from transient failures.
func (c *Client) GetStrategyConfig(ctx context.Context, eventID string) (*StrategyConfigDTO, error) {
	path := fmt.Sprintf("/api/v1/events/%s/attendance-strategy", url.PathEscape(eventID))

	var response APIResponse[StrategyConfigDTO]
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &response); err != nil {
		var apiErr *APIErrorDTO
		if errors.As(err, &apiErr) && apiErr.Code == "NOT_FOUND" {
			return nil, ErrStrategyNotConfigured
		}
		return nil, fmt.Errorf("get strategy config for event %s: %w", eventID, err)
	}

	if !response.Success {
		return nil, fmt.Errorf("api error: %s", response.Error)
	}

	return &response.Data, nil
}

// ErrStrategyNotConfigured is returned when the event has no attendance
// strategy configured upstream.
var ErrStrategyNotConfigured = errors.New("campus: event has no attendance strategy configured")

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetSessionMarks fetches the ledger entries of one session.
func (c *Client) GetSessionMarks(ctx context.Context, eventID, sessionID string) ([]AttendanceMarkDTO, error) {
	path := fmt.Sprintf("/api/v1/events/%s/sessions/%s/marks",
		url.PathEscape(eventID), url.PathEscape(sessionID))

	var response APIResponse[[]AttendanceMarkDTO]
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &response); err != nil {
		return nil, fmt.Errorf("get marks for session %s: %w", sessionID, err)
	}

	if !response.Success {
		return nil, fmt.Errorf("api error: %s", response.Error)
	}

	return response.Data, nil
}

// ListEventMarks fetches one page of an event's attendance ledger.
func (c *Client) ListEventMarks(ctx context.Context, eventID string, page, perPage int) ([]AttendanceMarkDTO, *Meta, error) {
	params := url.Values{}
	if page > 0 {
		params.Set("page", strconv.Itoa(page))
	}
	if perPage > 0 {
		params.Set("per_page", strconv.Itoa(perPage))
	}

	path := fmt.Sprintf("/api/v1/events/%s/marks", url.PathEscape(eventID))
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var response APIResponse[[]AttendanceMarkDTO]
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &response); err != nil {
		return nil, nil, fmt.Errorf("list marks for event %s: %w", eventID, err)
	}

	if !response.Success {
		return nil, nil, fmt.Errorf("api error: %s", response.Error)
	}

	return response.Data, response.Meta, nil
}

// GetAllEventMarks fetches the complete attendance ledger of an event,
// handling pagination.
func (c *Client) GetAllEventMarks(ctx context.Context, eventID string) ([]AttendanceMarkDTO, error) {
	var allMarks []AttendanceMarkDTO
	page := 1
	perPage := 200

	for {
		marks, meta, err := c.ListEventMarks(ctx, eventID, page, perPage)
		if err != nil {
			return nil, fmt.Errorf("get all marks page %d: %w", page, err)
		}

		allMarks = append(allMarks, marks...)

		if len(marks) < perPage || (meta != nil && meta.TotalPages > 0 && page >= meta.TotalPages) {
			break
		}
		page++
	}

	return allMarks, nil
}

// PostMark submits a single attendance mark. Idempotent upstream: marking an
// already-marked pair succeeds.
func (c *Client) PostMark(ctx context.Context, eventID, sessionID string, req MarkRequestDTO) error {
	path := fmt.Sprintf("/api/v1/events/%s/sessions/%s/marks",
		url.PathEscape(eventID), url.PathEscape(sessionID))

	var response APIResponse[AttendanceMarkDTO]
	if err := c.doRequest(ctx, http.MethodPost, path, req, &response); err != nil {
		return fmt.Errorf("post mark %s/%s: %w", sessionID, req.RegistrationID, err)
	}

	if !response.Success {
		return fmt.Errorf("api error: %s", response.Error)
	}

	return nil
}

// PostBulkMark submits a bulk attendance mark. The upstream processes each
// registration independently and reports per-id outcomes; the call as a whole
// fails only on transport or session-level errors.
func (c *Client) PostBulkMark(ctx context.Context, eventID, sessionID string, req BulkMarkRequestDTO) (*BulkMarkResponseDTO, error) {
	path := fmt.Sprintf("/api/v1/events/%s/sessions/%s/marks/bulk",
		url.PathEscape(eventID), url.PathEscape(sessionID))

	var response APIResponse[BulkMarkResponseDTO]
	if err := c.doRequest(ctx, http.MethodPost, path, req, &response); err != nil {
		return nil, fmt.Errorf("post bulk mark %s: %w", sessionID, err)
	}

	if !response.Success {
		return nil, fmt.Errorf("api error: %s", response.Error)
	}

	return &response.Data, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRATION OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// ListRegistrations fetches one page of an event's registered participants.
func (c *Client) ListRegistrations(ctx context.Context, eventID string, page, perPage int) ([]RegistrationDTO, *Meta, error) {
	params := url.Values{}
	if page > 0 {
		params.Set("page", strconv.Itoa(page))
	}
	if perPage > 0 {
		params.Set("per_page", strconv.Itoa(perPage))
	}

	path := fmt.Sprintf("/api/v1/events/%s/registrations", url.PathEscape(eventID))
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var response APIResponse[[]RegistrationDTO]
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &response); err != nil {
		return nil, nil, fmt.Errorf("list registrations for event %s: %w", eventID, err)
	}

	if !response.Success {
		return nil, nil, fmt.Errorf("api error: %s", response.Error)
	}

	return response.Data, response.Meta, nil
}

// GetAllRegistrations fetches the complete roster of an event, handling
// pagination.
func (c *Client) GetAllRegistrations(ctx context.Context, eventID string) ([]RegistrationDTO, error) {
	var all []RegistrationDTO
	page := 1
	perPage := 200

	for {
		registrations, meta, err := c.ListRegistrations(ctx, eventID, page, perPage)
		if err != nil {
			return nil, fmt.Errorf("get all registrations page %d: %w", page, err)
		}

		all = append(all, registrations...)

		if len(registrations) < perPage || (meta != nil && meta.TotalPages > 0 && page >= meta.TotalPages) {
			break
		}
		page++
	}

	return all, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// doRequest performs an HTTP request with rate limiting, circuit breaking, and retries.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	// Check circuit breaker
	if err := c.circuitBreaker.Allow(); err != nil {
		return fmt.Errorf("circuit breaker: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.RetryConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.config.RetryConfig.CalculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		// Wait for rate limiter
		if err := c.rateLimiter.Allow(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		err := c.doSingleRequest(ctx, method, path, body, result)
		if err == nil {
			c.circuitBreaker.RecordSuccess()
			return nil
		}

		lastErr = err

		// Check if error is retryable
		if !c.isRetryable(err) {
			c.circuitBreaker.RecordFailure()
			return err
		}

		// Handle rate limit response
		var rateLimitErr *RateLimitError
		if errors.As(err, &rateLimitErr) {
			c.rateLimiter.RecordRateLimitHit(rateLimitErr.RetryAfter)
		}
	}

	c.circuitBreaker.RecordFailure()
	return fmt.Errorf("request failed after %d retries: %w", c.config.RetryConfig.MaxRetries, lastErr)
}

// doSingleRequest performs a single HTTP request.
func (c *Client) doSingleRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	fullURL := c.config.BaseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	// A session token obtained via Authenticate wins over the static key
	c.tokenMu.RLock()
	if c.token != nil && !c.token.IsExpired() {
		req.Header.Set("Authorization", c.token.TokenType+" "+c.token.AccessToken)
	}
	c.tokenMu.RUnlock()

	if c.config.Debug {
		c.logger.Debug("campus api request", "method", method, "path", path)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	// Handle rate limiting
	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := 60 * time.Second
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return &RateLimitError{
			RetryAfter: retryAfter,
			Message:    "rate limit exceeded",
		}
	}

	// Handle error responses
	if resp.StatusCode >= 400 {
		var apiErr APIErrorDTO
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Message != "" {
			if apiErr.Code == "" && resp.StatusCode == http.StatusNotFound {
				apiErr.Code = "NOT_FOUND"
			}
			return &apiErr
		}
		if resp.StatusCode == http.StatusNotFound {
			return &APIErrorDTO{Code: "NOT_FOUND", Message: "resource not found"}
		}
		return fmt.Errorf("api error: status %d", resp.StatusCode)
	}

	// Unmarshal response
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}

// isRetryable checks if an error is retryable.
func (c *Client) isRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Rate limit errors are retryable
	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return true
	}

	// API errors - check error code
	var apiErr *APIErrorDTO
	if errors.As(err, &apiErr) {
		// Server errors are retryable
		return apiErr.Code == "SERVER_ERROR" || apiErr.Code == "TEMPORARILY_UNAVAILABLE"
	}

	// Network errors are generally retryable
	errStr := err.Error()
	return containsAny(errStr, []string{"timeout", "connection refused", "temporary", "reset", "EOF"})
}

// containsAny checks if s contains any of the substrings.
func containsAny(s string, substrings []string) bool {
	for _, sub := range substrings {
		if len(s) >= len(sub) && findStr(s, sub) >= 0 {
			return true
		}
	}
	return false
}

// findStr finds substr in s.
func findStr(s, substr string) int {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH AND STATUS
// ══════════════════════════════════════════════════════════════════════════════

// IsHealthy checks if the campus API is reachable.
func (c *Client) IsHealthy(ctx context.Context) bool {
	var response APIResponse[map[string]interface{}]
	err := c.doSingleRequest(ctx, http.MethodGet, "/api/v1/health", nil, &response)
	return err == nil && response.Success
}

// ClientStatus contains the current status of the client.
type ClientStatus struct {
	RateLimiter    RateLimiterStatus
	CircuitBreaker CircuitBreakerStatus
	IsHealthy      bool
}

// Status returns the current status of the client.
func (c *Client) Status(ctx context.Context) ClientStatus {
	return ClientStatus{
		RateLimiter:    c.rateLimiter.Status(),
		CircuitBreaker: c.circuitBreaker.Status(),
		IsHealthy:      c.IsHealthy(ctx),
	}
}

// Reset resets the rate limiter and circuit breaker.
func (c *Client) Reset() {
	c.rateLimiter.Reset()
	c.circuitBreaker.Reset()
}
