package provider

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/url"
	"time"

	"github.com/theimaginaryfoundation/case-digest/digest"
)

const (
	DefaultAttempts = 5
	DefaultBackoff  = 10 * time.Second
	DefaultTimeout  = 300 * time.Second
)

// Backend sends one single-turn chat completion. HTTP failures must be reported as
// *digest.StatusError; transport failures are returned as-is.
type Backend interface {
	Send(ctx context.Context, prompt string) (string, error)
}

// RetryPolicy controls how Client retries rate limits and network failures.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration

	// Jitter is added to rate-limit waits. Defaults to a uniform 1-3s.
	Jitter func() time.Duration
	// Wait defaults to digest.Sleep.
	Wait func(ctx context.Context, d time.Duration) error
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: DefaultAttempts, Backoff: DefaultBackoff}
}

// Client performs completions with bounded retry and exponential backoff.
type Client struct {
	backend Backend
	policy  RetryPolicy
	logger  *slog.Logger
}

func NewClient(backend Backend, policy RetryPolicy, logger *slog.Logger) *Client {
	if policy.Attempts <= 0 {
		policy.Attempts = DefaultAttempts
	}
	if policy.Jitter == nil {
		policy.Jitter = uniformJitter
	}
	if policy.Wait == nil {
		policy.Wait = digest.Sleep
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{backend: backend, policy: policy, logger: logger}
}

// Complete sends prompt, retrying HTTP 429 with backoff*2^(attempt-1) plus jitter and
// network failures with backoff*2^(attempt-1). Any other HTTP error fails immediately.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	attempts := c.policy.Attempts
	var lastErr error
	lastStatus := 0
	for attempt := 1; attempt <= attempts; attempt++ {
		c.logger.Info("sending request to model", "attempt", attempt, "of", attempts, "prompt_chars", len(prompt))
		out, err := c.backend.Send(ctx, prompt)
		if err == nil {
			return out, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		lastErr = err

		base := c.policy.Backoff * time.Duration(1<<uint(attempt-1))
		var wait time.Duration
		var statusErr *digest.StatusError
		switch {
		case errors.As(err, &statusErr) && statusErr.StatusCode == 429:
			lastStatus = statusErr.StatusCode
			wait = base + c.policy.Jitter()
			c.logger.Warn("rate limit reached", "attempt", attempt, "retry_after", wait.Round(10*time.Millisecond).String())
		case errors.As(err, &statusErr):
			c.logger.Error("api error", "status", statusErr.StatusCode, "body", statusErr.Body)
			return "", &digest.CompletionError{Reason: digest.ReasonAPIError, StatusCode: statusErr.StatusCode, Attempts: attempt, Err: err}
		case isNetworkError(err):
			lastStatus = 0
			wait = base
			c.logger.Error("request failed", "attempt", attempt, "error", err.Error())
		default:
			c.logger.Error("invalid model response", "error", err.Error())
			return "", &digest.CompletionError{Reason: digest.ReasonInvalidResponse, Attempts: attempt, Err: err}
		}

		if attempt == attempts {
			break
		}
		if err := c.policy.Wait(ctx, wait); err != nil {
			return "", err
		}
	}
	return "", &digest.CompletionError{Reason: digest.ReasonRetriesExhausted, StatusCode: lastStatus, Attempts: attempts, Err: lastErr}
}

func isNetworkError(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func uniformJitter() time.Duration {
	return time.Second + time.Duration(rand.Int64N(int64(2*time.Second)))
}
