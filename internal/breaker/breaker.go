package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

type EventType string

const (
	EventOpen     EventType = "open"
	EventHalfOpen EventType = "half_open"
	EventClose    EventType = "close"
	EventFallback EventType = "fallback"
)

// Event describes a state transition or fallback execution. Events are
// delivered synchronously on the calling goroutine, outside the breaker
// lock, so observers may call back into the breaker.
type Event struct {
	Breaker string
	Type    EventType
	From    State
	To      State
}

var (
	ErrOpen    = errors.New("circuit breaker is open")
	ErrTimeout = errors.New("circuit breaker call timed out")
)

type Options struct {
	Name string

	// Timeout bounds a single protected call. The wrapped operation keeps
	// running server-side past the bound; its result is discarded.
	Timeout time.Duration

	// ErrorThresholdPercentage trips the breaker once the failure rate over
	// the rolling window reaches this value, provided at least MinRequests
	// calls were observed.
	ErrorThresholdPercentage int

	// ResetTimeout is how long the breaker stays open before allowing a
	// single half-open trial call.
	ResetTimeout time.Duration

	WindowDuration time.Duration
	MinRequests    uint32

	OnEvent func(Event)
}

// Breaker protects one remote dependency. One instance per dependency,
// safe for concurrent use; instances share no state.
type Breaker struct {
	name           string
	timeout        time.Duration
	errorThreshold int
	resetTimeout   time.Duration
	windowDuration time.Duration
	minRequests    uint32
	onEvent        func(Event)

	mu            sync.Mutex
	state         State
	windowStart   time.Time
	total         uint32
	failures      uint32
	openedAt      time.Time
	trialInFlight bool
}

func New(opts Options) *Breaker {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if opts.ErrorThresholdPercentage <= 0 || opts.ErrorThresholdPercentage > 100 {
		opts.ErrorThresholdPercentage = 50
	}
	if opts.ResetTimeout <= 0 {
		opts.ResetTimeout = 30 * time.Second
	}
	if opts.WindowDuration <= 0 {
		opts.WindowDuration = 10 * time.Second
	}
	if opts.MinRequests == 0 {
		opts.MinRequests = 5
	}
	if opts.Name == "" {
		opts.Name = "unnamed-circuit"
	}

	return &Breaker{
		name:           opts.Name,
		timeout:        opts.Timeout,
		errorThreshold: opts.ErrorThresholdPercentage,
		resetTimeout:   opts.ResetTimeout,
		windowDuration: opts.WindowDuration,
		minRequests:    opts.MinRequests,
		onEvent:        opts.OnEvent,
		state:          StateClosed,
		windowStart:    time.Now(),
	}
}

func (b *Breaker) Name() string { return b.name }

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// allow decides whether a call may proceed. The returned trial flag marks
// the single half-open probe; its outcome alone decides the next state.
func (b *Breaker) allow() (bool, error) {
	b.mu.Lock()

	switch b.state {
	case StateOpen:
		if time.Since(b.openedAt) < b.resetTimeout {
			b.mu.Unlock()
			return false, fmt.Errorf("%s: %w", b.name, ErrOpen)
		}
		b.state = StateHalfOpen
		b.trialInFlight = true
		b.mu.Unlock()
		b.emit(EventHalfOpen, StateOpen, StateHalfOpen)
		return true, nil

	case StateHalfOpen:
		if b.trialInFlight {
			b.mu.Unlock()
			return false, fmt.Errorf("%s: %w", b.name, ErrOpen)
		}
		b.trialInFlight = true
		b.mu.Unlock()
		return true, nil

	default:
		b.mu.Unlock()
		return false, nil
	}
}

func (b *Breaker) record(trial bool, success bool) {
	b.mu.Lock()

	if trial {
		b.trialInFlight = false
		if b.state == StateHalfOpen {
			if success {
				b.state = StateClosed
				b.resetWindowLocked()
				b.mu.Unlock()
				b.emit(EventClose, StateHalfOpen, StateClosed)
				return
			}
			b.state = StateOpen
			b.openedAt = time.Now()
			b.mu.Unlock()
			b.emit(EventOpen, StateHalfOpen, StateOpen)
			return
		}
		b.mu.Unlock()
		return
	}

	if b.state != StateClosed {
		b.mu.Unlock()
		return
	}

	if time.Since(b.windowStart) > b.windowDuration {
		b.resetWindowLocked()
	}

	b.total++
	if !success {
		b.failures++
	}

	if b.total >= b.minRequests && b.failures*100/b.total >= uint32(b.errorThreshold) {
		b.state = StateOpen
		b.openedAt = time.Now()
		b.resetWindowLocked()
		b.mu.Unlock()
		b.emit(EventOpen, StateClosed, StateOpen)
		return
	}

	b.mu.Unlock()
}

// abort releases an in-flight half-open trial without counting the call in
// either direction. Used when the caller went away before the dependency
// answered: that says nothing about the dependency's health.
func (b *Breaker) abort(trial bool) {
	if !trial {
		return
	}

	b.mu.Lock()
	b.trialInFlight = false
	b.mu.Unlock()
}

func (b *Breaker) resetWindowLocked() {
	b.total = 0
	b.failures = 0
	b.windowStart = time.Now()
}

func (b *Breaker) emit(eventType EventType, from State, to State) {
	if b.onEvent == nil {
		return
	}
	b.onEvent(Event{Breaker: b.name, Type: eventType, From: from, To: to})
}

// Do runs op under the breaker with the configured timeout. Timeouts and op
// errors both count toward the failure rate; cancellation of ctx by the
// caller counts in neither direction. While the breaker is open Do returns
// ErrOpen without invoking op.
func Do[T any](ctx context.Context, b *Breaker, op func(context.Context) (T, error)) (T, error) {
	var zero T

	trial, err := b.allow()
	if err != nil {
		return zero, err
	}

	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}

	// Buffered so a late result after timeout does not leak the goroutine.
	done := make(chan outcome, 1)
	go func() {
		value, opErr := op(callCtx)
		done <- outcome{value: value, err: opErr}
	}()

	select {
	case <-callCtx.Done():
		// Parent cancellation is the caller's doing, not the dependency's:
		// release any trial slot and surface the caller's error untouched.
		if ctx.Err() != nil {
			b.abort(trial)
			return zero, ctx.Err()
		}
		b.record(trial, false)
		return zero, fmt.Errorf("%s: %w", b.name, ErrTimeout)
	case result := <-done:
		b.record(trial, result.err == nil)
		if result.err != nil {
			return zero, result.err
		}
		return result.value, nil
	}
}

// DoWithFallback behaves like Do but routes every failure, including an
// open circuit, through fallback. The fallback receives the original error
// and produces a substitute result or a terminal error. Fallbacks must be
// fast and must not block on further remote calls.
func DoWithFallback[T any](
	ctx context.Context,
	b *Breaker,
	op func(context.Context) (T, error),
	fallback func(context.Context, error) (T, error),
) (T, error) {
	value, err := Do(ctx, b, op)
	if err == nil {
		return value, nil
	}

	b.emit(EventFallback, b.State(), b.State())
	return fallback(ctx, err)
}

// Execute is the void-result convenience form of Do.
func (b *Breaker) Execute(ctx context.Context, op func(context.Context) error) error {
	_, err := Do(ctx, b, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
