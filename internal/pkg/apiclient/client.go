// Package apiclient provides the HTTP client used to read release APIs with:
// - Retries with exponential backoff on transient failures (network errors, 502, 503, 504)
// - A response size cap
// - Circuit breaking, so an upstream outage is not hammered by every refresh
package apiclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultMaxBodySize caps response bodies when Config.MaxBodySize is 0.
const DefaultMaxBodySize = 10 * 1024 * 1024 // 10 MB

// ErrCircuitOpen is returned without contacting the upstream while the
// circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open, upstream temporarily unavailable")

// ErrBodyTooLarge is returned when a response exceeds Config.MaxBodySize.
var ErrBodyTooLarge = errors.New("response body too large")

// Config holds configuration for the API client
type Config struct {
	// Name identifies the upstream in logs and errors
	Name string

	// Retry configuration. Zero MaxRetries sends every request once.
	MaxRetries     int           // Maximum number of retry attempts
	InitialBackoff time.Duration // Initial backoff duration (default: 1s)
	MaxBackoff     time.Duration // Maximum backoff duration (default: 30s)
	BackoffFactor  float64       // Backoff multiplier (default: 2.0)

	// MaxBodySize caps response bodies (default: 10 MB)
	MaxBodySize int64

	// Circuit breaker configuration. Nil disables the breaker.
	CircuitBreaker *CircuitBreakerConfig

	// Clock drives backoff waits and the breaker timeout. Defaults to the real clock.
	Clock clockwork.Clock
}

// CircuitBreakerConfig holds circuit breaker settings
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of failures before opening the circuit
	FailureThreshold int
	// SuccessThreshold is the number of successes needed to close an open circuit
	SuccessThreshold int
	// Timeout is how long to wait before attempting to close an open circuit
	Timeout time.Duration
}

// DefaultConfig returns default client configuration
func DefaultConfig(name string) Config {
	return Config{
		Name:           name,
		MaxRetries:     2,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
		MaxBodySize:    DefaultMaxBodySize,
		CircuitBreaker: &CircuitBreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 1,
			Timeout:          30 * time.Second,
		},
	}
}

// Client sends GET requests to a release API.
type Client struct {
	httpClient     *http.Client
	config         Config
	clock          clockwork.Clock
	circuitBreaker *circuitBreaker
}

// New creates a client on httpClient. A nil httpClient uses http.DefaultClient.
func New(httpClient *http.Client, config Config) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = time.Second
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 30 * time.Second
	}
	if config.BackoffFactor < 1 {
		config.BackoffFactor = 2.0
	}
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = DefaultMaxBodySize
	}
	clock := config.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	c := &Client{
		httpClient: httpClient,
		config:     config,
		clock:      clock,
	}
	if cb := config.CircuitBreaker; cb != nil && cb.FailureThreshold > 0 {
		c.circuitBreaker = newCircuitBreaker(clock, cb.FailureThreshold, cb.SuccessThreshold, cb.Timeout)
	}
	return c
}

// Response represents an HTTP response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Get fetches url with retries and circuit breaking. Any response that is not
// retried, including 4xx, is returned for the caller to interpret; only
// transport failures, exhausted retries and an open breaker are errors.
func (c *Client) Get(ctx context.Context, url string, header http.Header) (*Response, error) {
	if c.circuitBreaker != nil && !c.circuitBreaker.Allow() {
		return nil, fmt.Errorf("%s: %w", c.config.Name, ErrCircuitOpen)
	}

	var lastErr error
	maxAttempts := max(c.config.MaxRetries+1, 1)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := c.calculateBackoff(attempt)
			slog.Debug("retrying upstream request",
				"upstream", c.config.Name,
				"attempt", attempt+1,
				"backoff", backoff,
				"error", lastErr,
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-c.clock.After(backoff):
			}
		}

		resp, err := c.doRequest(ctx, url, header)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, err
			}
			c.recordFailure()
			if errors.Is(err, ErrBodyTooLarge) {
				return nil, err
			}
			continue
		}

		if isRetryable(resp.StatusCode) {
			c.recordFailure()
			lastErr = fmt.Errorf("%s: unexpected status %d from %s", c.config.Name, resp.StatusCode, url)
			continue
		}

		if resp.StatusCode >= 500 {
			c.recordFailure()
		} else if c.circuitBreaker != nil {
			c.circuitBreaker.RecordSuccess()
		}
		return resp, nil
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxAttempts, lastErr)
}

// BreakerState reports the circuit state: "closed", "open", "half-open", or
// "disabled" without a breaker.
func (c *Client) BreakerState() string {
	if c.circuitBreaker == nil {
		return "disabled"
	}
	return c.circuitBreaker.State()
}

func (c *Client) recordFailure() {
	if c.circuitBreaker != nil {
		c.circuitBreaker.RecordFailure()
	}
}

// doRequest executes a single HTTP request without retries
func (c *Client) doRequest(ctx context.Context, url string, header http.Header) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if int64(len(body)) > c.config.MaxBodySize {
		return nil, fmt.Errorf("%w (exceeds %d bytes)", ErrBodyTooLarge, c.config.MaxBodySize)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// calculateBackoff calculates the backoff duration for a given attempt
func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := float64(c.config.InitialBackoff) * math.Pow(c.config.BackoffFactor, float64(attempt-1))
	if backoff > float64(c.config.MaxBackoff) {
		backoff = float64(c.config.MaxBackoff)
	}
	return time.Duration(backoff)
}

// isRetryable reports whether a status is a transient upstream failure.
// Rate limits are not retried: the quota resets on the order of an hour.
func isRetryable(statusCode int) bool {
	return statusCode == http.StatusServiceUnavailable ||
		statusCode == http.StatusBadGateway ||
		statusCode == http.StatusGatewayTimeout
}

// circuitBreaker implements a simple circuit breaker pattern
type circuitBreaker struct {
	mu               sync.Mutex
	clock            clockwork.Clock
	state            circuitState
	failures         int
	successes        int
	failureThreshold int
	successThreshold int
	timeout          time.Duration
	lastFailure      time.Time
}

type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

func newCircuitBreaker(clock clockwork.Clock, failureThreshold, successThreshold int, timeout time.Duration) *circuitBreaker {
	return &circuitBreaker{
		clock:            clock,
		state:            circuitClosed,
		failureThreshold: failureThreshold,
		successThreshold: max(successThreshold, 1),
		timeout:          timeout,
	}
}

// Allow checks if a request should be allowed through the circuit breaker
func (cb *circuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == circuitOpen {
		if cb.clock.Since(cb.lastFailure) <= cb.timeout {
			return false
		}
		cb.state = circuitHalfOpen
		cb.successes = 0
	}
	return true
}

// RecordSuccess records a successful request
func (cb *circuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case circuitHalfOpen:
		cb.successes++
		if cb.successes >= cb.successThreshold {
			cb.state = circuitClosed
			cb.failures = 0
			slog.Info("upstream circuit closed")
		}
	case circuitClosed:
		cb.failures = 0
	}
}

// RecordFailure records a failed request
func (cb *circuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = cb.clock.Now()

	switch cb.state {
	case circuitClosed:
		if cb.failures >= cb.failureThreshold {
			cb.state = circuitOpen
			slog.Warn("upstream circuit opened", "failures", cb.failures, "retry_after", cb.timeout)
		}
	case circuitHalfOpen:
		cb.state = circuitOpen
		cb.successes = 0
	}
}

// State returns the current circuit state (for testing/monitoring)
func (cb *circuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case circuitClosed:
		return "closed"
	case circuitOpen:
		return "open"
	case circuitHalfOpen:
		return "half-open"
	}
	return "unknown"
}
