// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/cliprunner/internal/logctx"
)

var retriesCounter metric.Int64Counter

func init() {
	meter := otel.Meter("github.com/cardinalhq/cliprunner/internal/retry")

	var err error
	retriesCounter, err = meter.Int64Counter(
		"cliprunner.retry.retries",
		metric.WithDescription("Number of retried attempts, labelled by final outcome"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create retry.retries counter: %w", err))
	}
}

// ErrCancelled is returned when the context ends before the operation
// succeeds or the policy is exhausted.
var ErrCancelled = errors.New("cancelled")

// Policy describes a static exponential backoff schedule.
// A policy with MaxRetries N makes at most N+1 attempts.
type Policy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Label        string
}

// DefaultPolicy returns 4 retries (5 attempts) with delays of 1s, 2s, 4s, 8s.
func DefaultPolicy(label string) Policy {
	return Policy{
		MaxRetries:   4,
		InitialDelay: time.Second,
		MaxDelay:     8 * time.Second,
		Label:        label,
	}
}

// WithLabel returns a copy of p carrying a different label.
func (p Policy) WithLabel(label string) Policy {
	p.Label = label
	return p
}

// Delay is the sleep that follows the failed attempt with 0-based index i.
func (p Policy) Delay(i int) time.Duration {
	d := p.InitialDelay
	for n := 0; n < i && d < p.MaxDelay; n++ {
		d *= 2
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// ExhaustedError reports that every attempt allowed by a policy failed.
type ExhaustedError struct {
	Label    string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Label, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

type cancelledError struct {
	label string
	phase string
	cause error
}

func (e *cancelledError) Error() string {
	return fmt.Sprintf("%s %s %s: %v", e.label, ErrCancelled, e.phase, e.cause)
}

func (e *cancelledError) Unwrap() []error {
	return []error{ErrCancelled, e.cause}
}

// Do runs op until it succeeds, the policy is exhausted, or ctx is done.
// It returns the number of attempts made. Cancellation errors match both
// ErrCancelled and the context's error; exhaustion returns *ExhaustedError.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) (int, error) {
	logger := logctx.FromContext(ctx)
	var lastErr error
	attempts := 0

	for i := 0; i <= p.MaxRetries; i++ {
		if err := ctx.Err(); err != nil {
			return attempts, &cancelledError{label: p.Label, phase: "before attempt", cause: err}
		}

		attempts++
		err := op(ctx)
		if err == nil {
			if i > 0 {
				logger.Info("Operation succeeded after retries",
					slog.String("operation", p.Label),
					slog.Int("attempts", attempts))
				retriesCounter.Add(ctx, int64(i), metric.WithAttributes(
					attribute.String("outcome", "success"),
				))
			}
			return attempts, nil
		}
		lastErr = err

		if i == p.MaxRetries {
			break
		}

		delay := p.Delay(i)
		logger.Warn("Operation failed, retrying",
			slog.String("operation", p.Label),
			slog.Int("attempt", attempts),
			slog.Int("maxAttempts", p.MaxRetries+1),
			slog.Duration("delay", delay),
			slog.Any("error", err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempts, &cancelledError{label: p.Label, phase: "during backoff", cause: ctx.Err()}
		case <-timer.C:
		}
	}

	if attempts > 1 {
		retriesCounter.Add(ctx, int64(attempts-1), metric.WithAttributes(
			attribute.String("outcome", "exhausted"),
		))
	}
	return attempts, &ExhaustedError{Label: p.Label, Attempts: attempts, Err: lastErr}
}
