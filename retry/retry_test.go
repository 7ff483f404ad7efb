package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond}
}

func TestDo_Success(t *testing.T) {
	attempts := 0
	out := Do(context.Background(), fastPolicy(3), func(ctx context.Context) error {
		attempts++
		return nil
	})

	require.True(t, out.OK())
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, 1, attempts, "should succeed on first try")
}

func TestDo_EventualSuccess(t *testing.T) {
	attempts := 0
	out := Do(context.Background(), fastPolicy(5), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary error")
		}
		return nil
	})

	require.NoError(t, out.Err)
	assert.Equal(t, 3, out.Attempts, "should succeed on third attempt")
}

func TestDo_AllAttemptsFail(t *testing.T) {
	expectedErr := errors.New("persistent error")
	attempts := 0
	out := Do(context.Background(), fastPolicy(3), func(ctx context.Context) error {
		attempts++
		return expectedErr
	})

	assert.Equal(t, expectedErr, out.Err, "should return the last error")
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, 3, attempts, "should attempt exactly MaxAttempts times")
}

func TestDo_InvalidMaxAttempts(t *testing.T) {
	for _, n := range []int{0, -1} {
		out := Do(context.Background(), fastPolicy(n), func(ctx context.Context) error { return nil })
		assert.ErrorIs(t, out.Err, ErrInvalidMaxAttempts)
		assert.Zero(t, out.Attempts)
	}
}

func TestDo_ParentCanceledBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	out := Do(ctx, Policy{MaxAttempts: 10, BaseDelay: 10 * time.Millisecond}, func(ctx context.Context) error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return errors.New("error")
	})

	require.Error(t, out.Err)
	assert.Equal(t, 2, attempts, "should stop once the parent is canceled")
}

func TestDo_CanceledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := Do(ctx, fastPolicy(3), func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.Zero(t, out.Attempts)
}

func TestDo_AttemptDetachedFromParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	out := Do(ctx, fastPolicy(1), func(attemptCtx context.Context) error {
		cancel()
		// The in-flight attempt keeps a live context.
		return attemptCtx.Err()
	})
	assert.NoError(t, out.Err)
}

func TestDo_PerAttemptTimeout(t *testing.T) {
	out := Do(context.Background(), Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, Timeout: 20 * time.Millisecond},
		func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})

	assert.ErrorIs(t, out.Err, context.DeadlineExceeded)
	assert.Equal(t, 2, out.Attempts)
}

func TestPolicy_Delay(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}

	assert.Equal(t, 100*time.Millisecond, p.Delay(1))
	assert.Equal(t, 200*time.Millisecond, p.Delay(2))
	assert.Equal(t, 400*time.Millisecond, p.Delay(3))
	assert.Equal(t, 800*time.Millisecond, p.Delay(4))
	assert.Equal(t, time.Second, p.Delay(5))
	assert.Equal(t, time.Second, p.Delay(50))
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 30*time.Second, p.Timeout)
}
