// Package retry runs an operation with bounded, jittered exponential backoff.
//
// It backs the compare-and-swap loop on the story document: a version
// conflict is returned as-is and retried, while anything wrapped with
// NonRetryable stops the loop immediately.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

var (
	randMu     sync.Mutex
	randSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// ErrExhausted is wrapped by the error Do returns when every attempt failed.
var ErrExhausted = errors.New("retry: attempts exhausted")

// NonRetryableError wraps errors that should not be retried
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string {
	return e.Err.Error()
}

func (e *NonRetryableError) Unwrap() error {
	return e.Err
}

// NonRetryable marks err so that Do returns it without another attempt.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

// IsNonRetryable reports whether err was marked with NonRetryable.
func IsNonRetryable(err error) bool {
	var nre *NonRetryableError
	return errors.As(err, &nre)
}

// Config controls the attempt budget and backoff.
type Config struct {
	MaxAttempts  int           // total attempts, at least 1
	InitialDelay time.Duration // delay before the second attempt
	MaxDelay     time.Duration // delay ceiling
	Multiplier   float64       // backoff growth, 1.0 for constant delay
	AddJitter    bool          // add up to 25% random delay
}

// DefaultConfig returns the budget used for document writes.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     250 * time.Millisecond,
		Multiplier:   2.0,
		AddJitter:    true,
	}
}

// Do calls fn until it succeeds, returns a non-retryable error, the context
// is done, or MaxAttempts is reached. A non-retryable error is returned
// unwrapped so callers can match it with errors.Is/As.
func Do(ctx context.Context, cfg Config, fn func(attempt int) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialDelay < 0 || cfg.MaxDelay < 0 || cfg.Multiplier < 0 {
		return errors.New("retry: negative delay or multiplier")
	}
	if cfg.Multiplier == 0 {
		cfg.Multiplier = 2.0
	}
	if cfg.MaxDelay == 0 || cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = cfg.InitialDelay
	}

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}

		var nre *NonRetryableError
		if errors.As(err, &nre) {
			return nre.Err
		}
		lastErr = err

		if ctx.Err() != nil {
			return fmt.Errorf("retry cancelled before attempt %d: %w", attempt+1, ctx.Err())
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		sleep := delay
		if cfg.AddJitter && delay >= 4 {
			randMu.Lock()
			sleep += time.Duration(randSource.Int63n(int64(delay / 4)))
			randMu.Unlock()
		}

		if sleep > 0 {
			timer := time.NewTimer(sleep)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("retry cancelled during backoff: %w", ctx.Err())
			case <-timer.C:
			}
		}

		next := time.Duration(float64(delay) * cfg.Multiplier)
		if next > cfg.MaxDelay || next < 0 {
			next = cfg.MaxDelay
		}
		delay = next
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, cfg.MaxAttempts, lastErr)
}
