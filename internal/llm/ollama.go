// internal/llm/ollama.go
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 30 * time.Second
	DefaultTimeout    = 120 * time.Second

	healthTimeout = 10 * time.Second
)

var (
	// ErrUnreachable indicates the health probe failed
	ErrUnreachable = errors.New("model backend unreachable")
	// ErrRetriesExhausted indicates every attempt hit a retryable failure
	ErrRetriesExhausted = errors.New("generation retries exhausted")
	// ErrIncomplete indicates the backend answered without done=true
	ErrIncomplete = errors.New("response marked as incomplete")
)

// exhaustionHints mark a backend error as transient resource pressure
var exhaustionHints = []string{"memory", "resource", "cuda", "gpu"}

// Config for a Client
type Config struct {
	Endpoint   string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Client talks to an Ollama-compatible /api/generate backend
type Client struct {
	endpoint   string
	model      string
	maxRetries int
	retryDelay time.Duration
	client     *http.Client

	// bounds HealthCheck independently of the generation timeout
	healthTimeout time.Duration

	// Sleep is swapped out in tests
	Sleep SleepFunc
}

// Result is a finished generation
type Result struct {
	Text     string
	Attempts int
	Latency  time.Duration
}

// NewClient creates a client. Unset MaxRetries and Timeout and a negative
// RetryDelay take the package defaults; a zero RetryDelay retries immediately.
func NewClient(cfg Config) *Client {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Client{
		endpoint:   strings.TrimSuffix(cfg.Endpoint, "/"),
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 5 * time.Second,
				}).DialContext,
			},
		},
		healthTimeout: healthTimeout,
		Sleep:         sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Endpoint returns the normalized backend URL
func (c *Client) Endpoint() string { return c.endpoint }

// HealthCheck probes the backend with a cheap GET /api/tags
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w at %s: %v", ErrUnreachable, c.endpoint, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w at %s: health check returned HTTP %d", ErrUnreachable, c.endpoint, resp.StatusCode)
	}
	return nil
}

type phase int

const (
	phaseAttempt phase = iota
	phaseWaiting
	phaseSucceeded
	phaseFailed
)

// Generate sends prompt to the backend and returns the finished text.
//
// Attempts are bounded by MaxRetries and separated by a fixed RetryDelay.
// Only transient failures (transport errors, HTTP 500/503, resource
// exhaustion reported by the backend) are retried; everything else fails
// on first occurrence.
func (c *Client) Generate(ctx context.Context, prompt string) (*Result, error) {
	start := time.Now()
	slog.Debug("sending prompt", "model", c.model, "size", humanize.Bytes(uint64(len(prompt))))

	var (
		state   = phaseAttempt
		attempt = 0
		text    string
		lastErr error
	)

	for {
		switch state {
		case phaseAttempt:
			attempt++
			t, err := c.attempt(ctx, prompt)
			switch {
			case err == nil:
				text = t
				state = phaseSucceeded
			case !isRetryable(err):
				lastErr = err
				state = phaseFailed
			case attempt >= c.maxRetries:
				lastErr = fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt, err)
				state = phaseFailed
			default:
				lastErr = err
				slog.Warn("generation attempt failed, will retry",
					"attempt", attempt, "max_attempts", c.maxRetries, "delay", c.retryDelay, "error", err)
				state = phaseWaiting
			}
			generationAttempts.WithLabelValues(attemptOutcome(err)).Inc()

		case phaseWaiting:
			if err := c.Sleep(ctx, c.retryDelay); err != nil {
				lastErr = fmt.Errorf("waiting to retry: %w (last error: %v)", err, lastErr)
				state = phaseFailed
				continue
			}
			state = phaseAttempt

		case phaseSucceeded:
			latency := time.Since(start)
			generationLatency.Observe(latency.Seconds())
			slog.Debug("received response", "size", humanize.Bytes(uint64(len(text))), "attempts", attempt)
			return &Result{Text: text, Attempts: attempt, Latency: latency}, nil

		case phaseFailed:
			return nil, lastErr
		}
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// attemptError carries the retry decision for one failed attempt
type attemptError struct {
	msg       string
	retryable bool
	cause     error
}

func (e *attemptError) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

func (e *attemptError) Unwrap() error { return e.cause }

func isRetryable(err error) bool {
	var ae *attemptError
	return errors.As(err, &ae) && ae.retryable
}

func attemptOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case isRetryable(err):
		return "retryable"
	default:
		return "terminal"
	}
}

func (c *Client) attempt(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{Model: c.model, Prompt: prompt, Stream: false})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		// Transport failures are transient unless we were cancelled
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &attemptError{msg: "connection failed", retryable: true, cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &attemptError{msg: "read response", retryable: true, cause: err}
	}

	if resp.StatusCode != http.StatusOK {
		detail := backendErrorText(raw)
		msg := fmt.Sprintf("HTTP %d: %s", resp.StatusCode, detail)
		retry := resp.StatusCode == http.StatusInternalServerError ||
			resp.StatusCode == http.StatusServiceUnavailable ||
			mentionsExhaustion(detail)
		return "", &attemptError{msg: msg, retryable: retry}
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if out.Error != "" {
		return "", &attemptError{msg: "backend error: " + out.Error, retryable: mentionsExhaustion(out.Error)}
	}

	if !out.Done {
		return "", ErrIncomplete
	}

	return out.Response, nil
}

// backendErrorText pulls the "error" field out of a JSON error body,
// falling back to the raw body.
func backendErrorText(raw []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(raw))
}

func mentionsExhaustion(msg string) bool {
	lower := strings.ToLower(msg)
	for _, hint := range exhaustionHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}
