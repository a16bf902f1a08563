// Package webhook implements a small JSON webhook client used to push
// operational alerts (at-risk students, refresh failures) to an external
// endpoint such as a chat integration or an incident channel.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"log/slog"

	"github.com/campus-hub/campus-attendance-hub/pkg/circuitbreaker"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the webhook client.
type ClientConfig struct {
	// URL is the endpoint alerts are POSTed to.
	URL string

	// AuthToken, when set, is sent as a bearer token.
	AuthToken string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// RetryAttempts is the number of retry attempts for failed requests.
	RetryAttempts int

	// RetryDelay is the initial delay between retries.
	RetryDelay time.Duration

	// Logger for structured logging.
	Logger *slog.Logger

	// Debug enables debug logging.
	Debug bool
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(url string) ClientConfig {
	return ClientConfig{
		URL:           url,
		Timeout:       10 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    1 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ALERT PAYLOAD
// ══════════════════════════════════════════════════════════════════════════════

// Alert is the payload posted to the endpoint. Fields carries
// alert-specific key/value details the receiver renders as-is.
type Alert struct {
	Kind       string            `json:"kind"`
	Title      string            `json:"title"`
	Text       string            `json:"text"`
	EventID    string            `json:"event_id,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// DeliveryError is a non-2xx answer from the endpoint.
type DeliveryError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("webhook delivery failed with status %d: %s", e.StatusCode, e.Body)
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client posts alerts with bounded retries. Failed deliveries are
// retried with exponential backoff; a 4xx answer (other than 429) is
// treated as permanent. A circuit breaker fails alerts fast while the
// endpoint is down, so a dead webhook cannot pile up blocked senders.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
	breaker    *circuitbreaker.CircuitBreaker
}

// NewClient creates a webhook client from config.
func NewClient(config ClientConfig) *Client {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger,
		breaker: circuitbreaker.New("alert-webhook",
			circuitbreaker.WithFailureThreshold(5),
			circuitbreaker.WithTimeout(time.Minute),
			// Permanent 4xx answers are the caller's payload problem,
			// not endpoint health; only outage-shaped errors trip it.
			circuitbreaker.WithIsFailure(isRetryable),
			circuitbreaker.WithOnStateChange(func(name string, from, to circuitbreaker.State) {
				logger.Warn("webhook circuit state changed",
					"breaker", name,
					"from", from.String(),
					"to", to.String(),
				)
			}),
		),
	}
}

// SendAlert delivers one alert. A zero OccurredAt is stamped with the
// current time.
func (c *Client) SendAlert(ctx context.Context, alert Alert) error {
	if alert.OccurredAt.IsZero() {
		alert.OccurredAt = time.Now().UTC()
	}

	var lastErr error

	for attempt := 0; attempt <= c.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			delay := c.config.RetryDelay * time.Duration(1<<uint(attempt-1))

			var deliveryErr *DeliveryError
			if errors.As(lastErr, &deliveryErr) && deliveryErr.RetryAfter > delay {
				delay = deliveryErr.RetryAfter
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := c.breaker.Execute(ctx, func(ctx context.Context) error {
			return c.post(ctx, alert)
		})
		if err == nil {
			return nil
		}

		if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
			return fmt.Errorf("webhook endpoint unavailable: %w", err)
		}

		lastErr = err

		if !isRetryable(err) {
			return err
		}
	}

	return fmt.Errorf("webhook delivery failed after %d retries: %w", c.config.RetryAttempts, lastErr)
}

func (c *Client) post(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.config.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.AuthToken)
	}

	if c.config.Debug {
		c.logger.Debug("webhook alert", "kind", alert.Kind, "event_id", alert.EventID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	deliveryErr := &DeliveryError{
		StatusCode: resp.StatusCode,
		Body:       string(respBody),
	}
	if after := resp.Header.Get("Retry-After"); after != "" {
		if seconds, parseErr := strconv.Atoi(after); parseErr == nil && seconds > 0 {
			deliveryErr.RetryAfter = time.Duration(seconds) * time.Second
		}
	}

	return deliveryErr
}

func isRetryable(err error) bool {
	var deliveryErr *DeliveryError
	if errors.As(err, &deliveryErr) {
		return deliveryErr.StatusCode == http.StatusTooManyRequests || deliveryErr.StatusCode >= 500
	}
	// Transport-level failures (timeouts, resets) are worth a retry.
	return true
}
