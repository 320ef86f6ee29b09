package breaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func failingOp(calls *int) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		*calls++
		return "", errBoom
	}
}

func TestBreakerTripsAfterFailureThreshold(t *testing.T) {
	t.Parallel()

	b := New(Options{
		Name:                     "db",
		Timeout:                  time.Second,
		ErrorThresholdPercentage: 50,
		ResetTimeout:             time.Minute,
		MinRequests:              5,
	})

	calls := 0
	for i := 0; i < 5; i++ {
		_, err := Do(context.Background(), b, failingOp(&calls))
		require.ErrorIs(t, err, errBoom)
	}

	require.Equal(t, StateOpen, b.State())
	require.Equal(t, 5, calls)

	// Short-circuits without invoking the action.
	_, err := Do(context.Background(), b, failingOp(&calls))
	require.ErrorIs(t, err, ErrOpen)
	require.Equal(t, 5, calls)
}

func TestBreakerStaysClosedBelowMinRequests(t *testing.T) {
	t.Parallel()

	b := New(Options{Name: "db", MinRequests: 10, ResetTimeout: time.Minute})

	calls := 0
	for i := 0; i < 9; i++ {
		_, _ = Do(context.Background(), b, failingOp(&calls))
	}

	require.Equal(t, StateClosed, b.State())
}

func TestBreakerTimeoutCountsAsFailure(t *testing.T) {
	t.Parallel()

	b := New(Options{
		Name:         "slow",
		Timeout:      20 * time.Millisecond,
		MinRequests:  1,
		ResetTimeout: time.Minute,
	})

	_, err := Do(context.Background(), b, func(ctx context.Context) (int, error) {
		select {
		case <-time.After(time.Second):
			return 1, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	})

	require.ErrorIs(t, err, ErrTimeout)
	require.Equal(t, StateOpen, b.State())
}

func TestBreakerHalfOpenTrialSuccessCloses(t *testing.T) {
	t.Parallel()

	b := New(Options{
		Name:         "db",
		MinRequests:  1,
		ResetTimeout: 30 * time.Millisecond,
	})

	calls := 0
	_, _ = Do(context.Background(), b, failingOp(&calls))
	require.Equal(t, StateOpen, b.State())

	time.Sleep(50 * time.Millisecond)

	value, err := Do(context.Background(), b, func(context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", value)
	require.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenTrialFailureReopens(t *testing.T) {
	t.Parallel()

	b := New(Options{
		Name:         "db",
		MinRequests:  1,
		ResetTimeout: 30 * time.Millisecond,
	})

	calls := 0
	_, _ = Do(context.Background(), b, failingOp(&calls))
	require.Equal(t, StateOpen, b.State())

	time.Sleep(50 * time.Millisecond)

	_, err := Do(context.Background(), b, failingOp(&calls))
	require.ErrorIs(t, err, errBoom)
	require.Equal(t, StateOpen, b.State())

	// Timer restarts: immediately after the failed trial the circuit
	// rejects again.
	_, err = Do(context.Background(), b, failingOp(&calls))
	require.ErrorIs(t, err, ErrOpen)
}

func TestBreakerHalfOpenAllowsSingleTrial(t *testing.T) {
	t.Parallel()

	b := New(Options{
		Name:         "db",
		Timeout:      time.Second,
		MinRequests:  1,
		ResetTimeout: 10 * time.Millisecond,
	})

	calls := 0
	_, _ = Do(context.Background(), b, failingOp(&calls))
	time.Sleep(20 * time.Millisecond)

	release := make(chan struct{})
	started := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = Do(context.Background(), b, func(context.Context) (string, error) {
			close(started)
			<-release
			return "ok", nil
		})
	}()

	<-started

	// While the trial is in flight every other call is rejected.
	_, err := Do(context.Background(), b, func(context.Context) (string, error) {
		return "nope", nil
	})
	require.ErrorIs(t, err, ErrOpen)

	close(release)
	wg.Wait()
	require.Equal(t, StateClosed, b.State())
}

func TestBreakerCallerCancellationNotCounted(t *testing.T) {
	t.Parallel()

	b := New(Options{
		Name:                     "db",
		Timeout:                  time.Minute,
		ErrorThresholdPercentage: 50,
		ResetTimeout:             time.Minute,
		MinRequests:              1,
	})

	blockedOp := func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}

	// Enough cancelled calls to trip the breaker if they counted.
	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()
		_, err := Do(ctx, b, blockedOp)
		require.ErrorIs(t, err, context.Canceled)
		require.NotErrorIs(t, err, ErrTimeout)
	}

	require.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenTrialSurvivesCallerCancellation(t *testing.T) {
	t.Parallel()

	b := New(Options{
		Name:                     "db",
		Timeout:                  time.Minute,
		ErrorThresholdPercentage: 50,
		ResetTimeout:             20 * time.Millisecond,
		MinRequests:              1,
	})

	calls := 0
	_, err := Do(context.Background(), b, failingOp(&calls))
	require.ErrorIs(t, err, errBoom)
	require.Equal(t, StateOpen, b.State())

	time.Sleep(30 * time.Millisecond)

	// The half-open trial is cancelled by the caller: the slot must be
	// released so the next call gets a fresh trial rather than ErrOpen.
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err = Do(ctx, b, func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, StateHalfOpen, b.State())

	value, err := Do(context.Background(), b, func(context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", value)
	require.Equal(t, StateClosed, b.State())
}

func TestDoWithFallbackOnOpenCircuit(t *testing.T) {
	t.Parallel()

	b := New(Options{Name: "cache", MinRequests: 1, ResetTimeout: time.Minute})

	calls := 0
	_, _ = Do(context.Background(), b, failingOp(&calls))
	require.Equal(t, StateOpen, b.State())

	value, err := DoWithFallback(context.Background(), b,
		failingOp(&calls),
		func(_ context.Context, callErr error) (string, error) {
			require.ErrorIs(t, callErr, ErrOpen)
			return "fallback", nil
		})

	require.NoError(t, err)
	require.Equal(t, "fallback", value)
	require.Equal(t, 1, calls)
}

func TestDoWithFallbackOnActionError(t *testing.T) {
	t.Parallel()

	b := New(Options{Name: "cache", MinRequests: 100, ResetTimeout: time.Minute})

	value, err := DoWithFallback(context.Background(), b,
		func(context.Context) (int, error) { return 0, errBoom },
		func(_ context.Context, callErr error) (int, error) {
			require.ErrorIs(t, callErr, errBoom)
			return 42, nil
		})

	require.NoError(t, err)
	require.Equal(t, 42, value)
}

func TestBreakerEmitsTransitionEvents(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var events []EventType

	b := New(Options{
		Name:         "db",
		MinRequests:  1,
		ResetTimeout: 20 * time.Millisecond,
		OnEvent: func(e Event) {
			mu.Lock()
			events = append(events, e.Type)
			mu.Unlock()
		},
	})

	calls := 0
	_, _ = Do(context.Background(), b, failingOp(&calls))
	time.Sleep(40 * time.Millisecond)
	_, _ = Do(context.Background(), b, func(context.Context) (string, error) {
		return "ok", nil
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []EventType{EventOpen, EventHalfOpen, EventClose}, events)
}

func TestExecuteVoidForm(t *testing.T) {
	t.Parallel()

	b := New(Options{Name: "db", MinRequests: 100, ResetTimeout: time.Minute})

	err := b.Execute(context.Background(), func(context.Context) error { return nil })
	require.NoError(t, err)

	err = b.Execute(context.Background(), func(context.Context) error { return errBoom })
	require.ErrorIs(t, err, errBoom)
}
