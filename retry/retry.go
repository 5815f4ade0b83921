// Package retry implements the engine's retry policy: transient failures
// back off exponentially and try again, permanent failures surface
// immediately.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Policy bounds. Configs outside these ranges fail validation.
const (
	MaxRetriesLimit = 10
	MinBaseDelay    = 100 * time.Millisecond
	MaxBaseDelay    = 30 * time.Second

	// MaxDelay caps any single backoff wait.
	MaxDelay = 60 * time.Second
)

// Config controls how many times an operation is retried and how long the
// first backoff lasts. Subsequent delays double.
type Config struct {
	MaxRetries int           `json:"max_retries" yaml:"max_retries"`
	BaseDelay  time.Duration `json:"base_delay" yaml:"base_delay"`
}

// DefaultConfig returns the standard policy: three retries starting at one
// second.
func DefaultConfig() Config {
	return Config{MaxRetries: 3, BaseDelay: time.Second}
}

// Validate checks the config against the policy bounds.
func (c Config) Validate() error {
	if c.MaxRetries < 0 || c.MaxRetries > MaxRetriesLimit {
		return fmt.Errorf("retry: max_retries %d out of range [0, %d]", c.MaxRetries, MaxRetriesLimit)
	}
	if c.BaseDelay < MinBaseDelay || c.BaseDelay > MaxBaseDelay {
		return fmt.Errorf("retry: base_delay %s out of range [%s, %s]", c.BaseDelay, MinBaseDelay, MaxBaseDelay)
	}
	return nil
}

// Delay returns the backoff before the given retry. Retries are numbered
// from 1; each delay doubles the previous one, capped at MaxDelay, so the
// sequence is non-decreasing.
func (c Config) Delay(retryNum int) time.Duration {
	if retryNum < 1 {
		retryNum = 1
	}
	d := c.BaseDelay
	for i := 1; i < retryNum; i++ {
		d *= 2
		if d >= MaxDelay {
			return MaxDelay
		}
	}
	if d > MaxDelay {
		return MaxDelay
	}
	return d
}

// Do runs fn, retrying transient failures up to MaxRetries times with
// exponential backoff. It returns the number of attempts made and the last
// error. Permanent errors return after the first attempt; context
// cancellation aborts any backoff wait.
func (c Config) Do(ctx context.Context, logger *slog.Logger, op string, fn func(context.Context) error) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var err error
	attempts := 0
	for attempts <= c.MaxRetries {
		attempts++
		err = fn(ctx)
		if err == nil {
			return attempts, nil
		}
		if !IsTransient(err) {
			return attempts, err
		}
		if attempts > c.MaxRetries {
			break
		}

		delay := c.Delay(attempts)
		logger.Warn("transient failure, retrying",
			"op", op, "attempt", attempts, "delay", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempts, ctx.Err()
		case <-timer.C:
		}
	}
	return attempts, fmt.Errorf("%s failed after %d attempts: %w", op, attempts, err)
}

// marked pins an error's classification regardless of its message.
type marked struct {
	err       error
	transient bool
}

func (m *marked) Error() string { return m.err.Error() }
func (m *marked) Unwrap() error { return m.err }

// MarkTransient wraps err so IsTransient reports true.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &marked{err: err, transient: true}
}

// MarkPermanent wraps err so IsTransient reports false.
func MarkPermanent(err error) error {
	if err == nil {
		return nil
	}
	return &marked{err: err, transient: false}
}

// IsTransient reports whether an error is worth retrying: timeouts,
// connection trouble, and rate limiting. Everything else, including context
// cancellation by the user, is permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var m *marked
	if errors.As(err, &m) {
		return m.transient
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	// Attempt deadlines count as timeouts.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	// Network connectivity
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "network is unreachable") ||
		strings.Contains(errStr, "dial tcp") ||
		strings.Contains(errStr, "broken pipe") {
		return true
	}
	// Timeouts
	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "timed out") ||
		strings.Contains(errStr, "deadline exceeded") {
		return true
	}
	// Rate limiting and flapping upstreams
	if strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "temporarily unavailable") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") {
		return true
	}
	return false
}
