package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/video-insights/internal/common"
)

// ErrExhausted marks a call that used its whole attempt budget.
var ErrExhausted = errors.New("retries exhausted")

// Kind is the retry classification of a failed attempt.
type Kind int

const (
	KindTransient Kind = iota
	KindRateLimited
	KindFatal
	KindTerminal
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindFatal:
		return "fatal"
	case KindTerminal:
		return "terminal"
	default:
		return "transient"
	}
}

// Policy is a fixed-delay retry policy. MaxRetries counts attempts, not re-tries.
type Policy struct {
	MaxRetries     int
	RetryDelay     time.Duration
	RateLimitDelay time.Duration
}

// DefaultPolicy matches the shipped configuration defaults.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 3, RetryDelay: 2 * time.Second, RateLimitDelay: 5 * time.Second}
}

// Client bounds in-flight calls with a weighted semaphore and retries failures.
type Client struct {
	name   string
	gate   *semaphore.Weighted
	size   int
	policy Policy
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

type Option func(*Client)

// WithSleep replaces the backoff sleeper; tests use it to skip real waits.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

func New(name string, concurrency int, policy Policy, logger *slog.Logger, opts ...Option) *Client {
	if concurrency < 1 {
		concurrency = 1
	}
	if policy.MaxRetries < 1 {
		policy.MaxRetries = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		name:   name,
		gate:   semaphore.NewWeighted(int64(concurrency)),
		size:   concurrency,
		policy: policy,
		logger: logger.With("client", name),
		sleep:  sleepCtx,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Name returns the client label used in logs.
func (c *Client) Name() string { return c.name }

// Concurrency returns the gate size.
func (c *Client) Concurrency() int { return c.size }

// Submit runs op under the client's admission gate, retrying per the policy.
// A gate slot is held only while an attempt runs, never across a backoff sleep.
func Submit[T any](ctx context.Context, c *Client, operation string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= c.policy.MaxRetries; attempt++ {
		if err := c.gate.Acquire(ctx, 1); err != nil {
			return zero, err
		}
		start := time.Now()
		out, err := op(ctx)
		c.gate.Release(1)

		if err == nil {
			if attempt > 1 {
				c.logger.Info("retry.recovered", "op", operation, "attempt", attempt)
			}
			return out, nil
		}
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}

		kind := Classify(err)
		c.logger.Warn("retry.attempt_failed",
			"op", operation,
			"attempt", attempt,
			"max_attempts", c.policy.MaxRetries,
			"kind", kind.String(),
			"elapsed_ms", time.Since(start).Milliseconds(),
			"error", err,
		)

		switch kind {
		case KindFatal:
			c.logger.Error("retry.fatal", "op", operation, "error", err)
			if common.IsFatal(err) {
				return zero, err
			}
			return zero, common.FatalError("AUTH_FAILED", fmt.Errorf("%s: %w", operation, err))
		case KindTerminal:
			return zero, err
		}

		if attempt == c.policy.MaxRetries {
			break
		}

		delay := c.policy.RetryDelay
		if kind == KindRateLimited {
			delay = c.policy.RateLimitDelay
		}
		if err := c.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	c.logger.Error("retry.exhausted", "op", operation, "attempts", c.policy.MaxRetries, "error", lastErr)
	return zero, &ExhaustedError{Operation: operation, Attempts: c.policy.MaxRetries, Last: lastErr}
}

// Do is Submit for operations without a result value.
func Do(ctx context.Context, c *Client, operation string, op func(ctx context.Context) error) error {
	_, err := Submit(ctx, c, operation, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// ExhaustedError is the terminal failure after MaxRetries attempts.
type ExhaustedError struct {
	Operation string
	Attempts  int
	Last      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Operation, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() []error { return []error{ErrExhausted, e.Last} }

// Classify maps an error onto the retry decision table.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindTerminal
	case common.IsFatal(err):
		return KindFatal
	case errors.Is(err, ErrExhausted):
		return KindTerminal
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	}

	switch status.Code(err) {
	case codes.Unauthenticated, codes.PermissionDenied:
		return KindFatal
	case codes.ResourceExhausted:
		return KindRateLimited
	default:
		return KindTransient
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
