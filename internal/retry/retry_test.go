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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(retries int) Policy {
	return Policy{
		MaxRetries:   retries,
		InitialDelay: time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		Label:        "test op",
	}
}

func TestPolicyDelay(t *testing.T) {
	p := DefaultPolicy("x")
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 8 * time.Second},
		{40, 8 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Delay(tt.attempt), "attempt %d", tt.attempt)
	}

	verify := Policy{MaxRetries: 2, InitialDelay: 500 * time.Millisecond, MaxDelay: 2 * time.Second}
	assert.Equal(t, 500*time.Millisecond, verify.Delay(0))
	assert.Equal(t, time.Second, verify.Delay(1))
	assert.Equal(t, 2*time.Second, verify.Delay(5))
}

func TestDoAlwaysFailing(t *testing.T) {
	for _, n := range []int{0, 1, 4} {
		calls := 0
		boom := errors.New("boom")
		attempts, err := Do(context.Background(), fastPolicy(n), func(context.Context) error {
			calls++
			return boom
		})

		require.Error(t, err)
		assert.Equal(t, n+1, calls)
		assert.Equal(t, n+1, attempts)

		var exhausted *ExhaustedError
		require.ErrorAs(t, err, &exhausted)
		assert.Equal(t, n+1, exhausted.Attempts)
		assert.Equal(t, "test op", exhausted.Label)
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, ErrCancelled)
		assert.Contains(t, err.Error(), "test op failed after")
	}
}

func TestDoSucceedsOnAttemptK(t *testing.T) {
	const retries = 4
	for k := 1; k <= retries+1; k++ {
		calls := 0
		attempts, err := Do(context.Background(), fastPolicy(retries), func(context.Context) error {
			calls++
			if calls < k {
				return errors.New("not yet")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, k, calls)
		assert.Equal(t, k, attempts)
	}
}

func TestDoCancelledBeforeFirstAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	attempts, err := Do(ctx, fastPolicy(3), func(context.Context) error {
		calls++
		return nil
	})
	require.Error(t, err)
	assert.Zero(t, calls)
	assert.Zero(t, attempts)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)

	var exhausted *ExhaustedError
	assert.False(t, errors.As(err, &exhausted))
}

func TestDoCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := Policy{MaxRetries: 4, InitialDelay: 10 * time.Second, MaxDelay: 10 * time.Second, Label: "slow"}
	failed := make(chan struct{})
	go func() {
		<-failed
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	var once sync.Once
	start := time.Now()
	attempts, err := Do(ctx, p, func(context.Context) error {
		once.Do(func() { close(failed) })
		return errors.New("transient")
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
	assert.Less(t, elapsed, 2*time.Second, "cancellation should interrupt the backoff sleep")
}

func TestDoDeadlineExceeded(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	p := Policy{MaxRetries: 10, InitialDelay: time.Hour, MaxDelay: time.Hour, Label: "deadline"}
	_, err := Do(ctx, p, func(context.Context) error { return errors.New("nope") })
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWithLabel(t *testing.T) {
	p := DefaultPolicy("a")
	q := p.WithLabel("b")
	assert.Equal(t, "a", p.Label)
	assert.Equal(t, "b", q.Label)
	assert.Equal(t, p.MaxRetries, q.MaxRetries)
}
