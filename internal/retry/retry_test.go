package retry

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SucceedsAfterTransientFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	attempts := 0
	err := Do(ctx, Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}, func(context.Context) error {
		attempts++
		if attempts == 1 {
			return fmt.Errorf("read: %w", syscall.ECONNRESET)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestDo_TerminalErrorNotRetried(t *testing.T) {
	ctx := context.Background()

	attempts := 0
	want := errors.New("invalid arguments")
	err := Do(ctx, Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}, func(context.Context) error {
		attempts++
		return want
	})

	assert.ErrorIs(t, err, want)
	assert.Equal(t, 1, attempts)
}

func TestDo_AttemptCap(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	attempts := 0
	err := Do(ctx, Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}, func(context.Context) error {
		attempts++
		return errors.New("connection refused")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_TinyBudgetSuppressesRetries(t *testing.T) {
	// A 30ms deadline leaves no budget after the reserve, so an
	// always-transient thunk surfaces after one attempt, promptly.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	attempts := 0
	start := time.Now()
	err := Do(ctx, Policy{MaxAttempts: 3, BaseDelay: time.Second}, func(context.Context) error {
		attempts++
		return errors.New("connection refused")
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.LessOrEqual(t, attempts, 3)
	assert.Equal(t, 1, attempts)
	assert.Less(t, elapsed, time.Second)
}

func TestDo_RespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, Policy{MaxAttempts: 5, BaseDelay: time.Minute}, func(context.Context) error {
		attempts++
		return errors.New("connection refused")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}
