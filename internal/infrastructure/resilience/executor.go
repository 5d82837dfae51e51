// Package resilience bounds the pipeline's calls to flaky collaborators.
// Model backends, the vector index and the broker publisher all run
// through an Executor, which retries transient failures with jittered
// backoff and trips a per-operation circuit breaker when a collaborator
// stays down.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrorClassification tells the executor how to treat a failure.
// Retryable controls the retry loop; RecordFailure controls whether the
// breaker counts the call against the operation. Context cancellation is
// typically neither.
type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

// ErrorClassifier maps a call's error onto retry and breaker behavior.
// Each call site knows its own failure taxonomy, so classification lives
// with the caller, not here.
type ErrorClassifier func(err error) ErrorClassification

type Executor struct {
	cfg Config

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
}

func NewExecutor(cfg Config) *Executor {
	return &Executor{
		cfg:      cfg.normalize(),
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
	}
}

// Execute runs call under the operation's breaker with bounded retries.
// Operations are independent: an open breaker on the embed path does not
// block publishes.
func (e *Executor) Execute(
	ctx context.Context,
	operation string,
	call func(context.Context) error,
	classify ErrorClassifier,
) error {
	if call == nil {
		return fmt.Errorf("resilience: operation callback is nil")
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if classify == nil {
		classify = failClosed
	}

	if !e.cfg.BreakerEnabled {
		return e.runWithRetry(ctx, op, call, classify)
	}

	breaker := e.breakerFor(op, classify)
	_, err := breaker.Execute(func() (any, error) {
		return nil, e.runWithRetry(ctx, op, call, classify)
	})
	return err
}

func (e *Executor) runWithRetry(
	ctx context.Context,
	operation string,
	call func(context.Context) error,
	classify ErrorClassifier,
) error {
	backoff := e.cfg.RetryInitialBackoff

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := call(ctx)
		if err == nil {
			return nil
		}

		class := classify(err)
		if !class.Retryable || attempt == e.cfg.RetryMaxAttempts {
			return err
		}

		wait := e.jitter(minDuration(backoff, e.cfg.RetryMaxBackoff))
		slog.Warn("retrying operation",
			"operation", operation,
			"attempt", attempt,
			"max_attempts", e.cfg.RetryMaxAttempts,
			"backoff_ms", float64(wait.Microseconds())/1000.0,
			"error", err,
		)

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return err
			case <-timer.C:
			}
		}

		backoff = minDuration(
			time.Duration(float64(backoff)*e.cfg.RetryMultiplier),
			e.cfg.RetryMaxBackoff,
		)
	}
}

// jitter spreads a backoff across +-RetryJitter of its value so worker
// replicas hit by the same outage do not retry in lockstep.
func (e *Executor) jitter(wait time.Duration) time.Duration {
	if wait <= 0 || e.cfg.RetryJitter <= 0 {
		return wait
	}
	spread := float64(wait) * e.cfg.RetryJitter
	jittered := float64(wait) + (rand.Float64()*2-1)*spread
	if jittered < 0 {
		return 0
	}
	return time.Duration(jittered)
}

func (e *Executor) breakerFor(operation string, classify ErrorClassifier) *gobreaker.CircuitBreaker[any] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if breaker, ok := e.breakers[operation]; ok {
		return breaker
	}

	settings := gobreaker.Settings{
		Name:        operation,
		MaxRequests: e.cfg.BreakerHalfOpenMaxCalls,
		Timeout:     e.cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < e.cfg.BreakerMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= e.cfg.BreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			return !classify(err).RecordFailure
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("circuit breaker state change", "operation", name, "from", from.String(), "to", to.String())
		},
	}

	breaker := gobreaker.NewCircuitBreaker[any](settings)
	e.breakers[operation] = breaker
	return breaker
}

// IsCircuitOpen reports whether the error came from a tripped breaker
// rather than the operation itself.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// failClosed is the classification for call sites that pass no
// classifier: never retry, always count against the breaker.
func failClosed(error) ErrorClassification {
	return ErrorClassification{RecordFailure: true}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
