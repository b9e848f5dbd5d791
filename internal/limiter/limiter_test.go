package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterCapsInFlight(t *testing.T) {
	t.Parallel()

	l := New(2)
	require.NoError(t, l.Acquire(context.Background()))
	require.NoError(t, l.Acquire(context.Background()))
	require.Equal(t, 2, l.InFlight())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, l.Acquire(ctx), context.DeadlineExceeded)

	l.Release()
	require.NoError(t, l.Acquire(context.Background()))
}

func TestLimiterReleaseUnblocksWaiter(t *testing.T) {
	t.Parallel()

	l := New(1)
	require.NoError(t, l.Acquire(context.Background()))

	acquired := make(chan error, 1)
	go func() {
		acquired <- l.Acquire(context.Background())
	}()

	time.Sleep(10 * time.Millisecond)
	l.Release()

	select {
	case err := <-acquired:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter was not unblocked")
	}
}

func TestLimiterReleaseWithoutAcquirePanics(t *testing.T) {
	t.Parallel()

	l := New(1)
	require.Panics(t, func() { l.Release() })
}
