package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(cfg Config) (*Breaker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := NewBreaker(cfg)
	b.now = clock.Now
	return b, clock
}

var errLookup = errors.New("lookup failed")

func fail(context.Context) (string, error) { return "", errLookup }
func ok(context.Context) (string, error)   { return "ok", nil }

func TestBreaker_ClosedState(t *testing.T) {
	b, _ := newTestBreaker(Config{Name: "osv", MaxFailures: 3})

	assert.Equal(t, StateClosed, b.State())

	result, err := Do(context.Background(), b, ok)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestBreaker_OpensAfterFailures(t *testing.T) {
	b, _ := newTestBreaker(Config{Name: "osv", MaxFailures: 3, OpenTimeout: time.Minute})

	for i := 0; i < 3; i++ {
		_, err := Do(context.Background(), b, fail)
		assert.ErrorIs(t, err, errLookup)
	}
	assert.Equal(t, StateOpen, b.State())

	called := false
	_, err := Do(context.Background(), b, func(context.Context) (string, error) {
		called = true
		return "", nil
	})
	assert.False(t, called)
	assert.True(t, IsOpen(err))

	var openErr *BreakerOpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, "osv", openErr.Name)
	assert.Equal(t, 3, openErr.Failures)
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	b, clock := newTestBreaker(Config{Name: "registry:npm", MaxFailures: 1, OpenTimeout: 10 * time.Second, HalfOpenProbes: 1})

	_, _ = Do(context.Background(), b, fail)
	require.Equal(t, StateOpen, b.State())

	clock.Advance(5 * time.Second)
	_, err := Do(context.Background(), b, ok)
	assert.True(t, IsOpen(err))

	clock.Advance(5 * time.Second)
	_, err = Do(context.Background(), b, ok)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_ReopensOnProbeFailure(t *testing.T) {
	b, clock := newTestBreaker(Config{Name: "trust", MaxFailures: 1, OpenTimeout: time.Second, HalfOpenProbes: 2})

	_, _ = Do(context.Background(), b, fail)
	clock.Advance(time.Second)

	_, err := Do(context.Background(), b, ok)
	require.NoError(t, err)
	assert.Equal(t, StateHalfOpen, b.State())

	_, err = Do(context.Background(), b, fail)
	assert.ErrorIs(t, err, errLookup)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(Config{Name: "osv", MaxFailures: 3})

	_, _ = Do(context.Background(), b, fail)
	_, _ = Do(context.Background(), b, fail)
	_, _ = Do(context.Background(), b, ok)
	_, _ = Do(context.Background(), b, fail)
	_, _ = Do(context.Background(), b, fail)

	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 2, b.Stats().ConsecutiveFailures)
}

func TestBreaker_CancellationIsNotAFailure(t *testing.T) {
	b, _ := newTestBreaker(Config{Name: "osv", MaxFailures: 1})

	_, err := Do(context.Background(), b, func(context.Context) (string, error) {
		return "", context.Canceled
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, b.State())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Do(ctx, b, ok)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(1), b.Stats().Calls)
}

func TestBreaker_CustomIsFailure(t *testing.T) {
	notFound := errors.New("not found")
	b, _ := newTestBreaker(Config{
		Name:        "registry:pypi",
		MaxFailures: 1,
		IsFailure:   func(err error) bool { return !errors.Is(err, notFound) },
	})

	_, _ = Do(context.Background(), b, func(context.Context) (string, error) { return "", notFound })
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_OnStateChange(t *testing.T) {
	changes := make(chan [2]State, 4)
	b, _ := newTestBreaker(Config{
		Name:        "osv",
		MaxFailures: 1,
		OnStateChange: func(name string, from, to State) {
			changes <- [2]State{from, to}
		},
	})

	_, _ = Do(context.Background(), b, fail)

	select {
	case change := <-changes:
		assert.Equal(t, [2]State{StateClosed, StateOpen}, change)
	case <-time.After(time.Second):
		t.Fatal("expected a state change callback")
	}
}

func TestBreaker_StatsAndReset(t *testing.T) {
	b, _ := newTestBreaker(Config{Name: "osv", MaxFailures: 2})

	_, _ = Do(context.Background(), b, ok)
	_, _ = Do(context.Background(), b, fail)
	_, _ = Do(context.Background(), b, fail)
	_, _ = Do(context.Background(), b, ok)

	stats := b.Stats()
	assert.Equal(t, "osv", stats.Name)
	assert.Equal(t, "open", stats.State)
	assert.Equal(t, int64(4), stats.Calls)
	assert.Equal(t, int64(1), stats.Successes)
	assert.Equal(t, int64(2), stats.Failures)
	assert.Equal(t, int64(1), stats.Rejected)

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 0, b.Stats().ConsecutiveFailures)
}

func TestBreaker_ConcurrentAccess(t *testing.T) {
	b := NewBreaker(Config{Name: "concurrent", MaxFailures: 1000})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if n%3 == 0 {
				_, _ = Do(context.Background(), b, fail)
				return
			}
			_, _ = Do(context.Background(), b, ok)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(100), b.Stats().Calls)
}

func TestBreakerOpenError_RetryAfter(t *testing.T) {
	future := &BreakerOpenError{Name: "osv", RetryAt: time.Now().Add(30 * time.Second), Failures: 5}
	assert.NotEmpty(t, future.Error())
	assert.Greater(t, future.RetryAfter(), time.Duration(0))
	assert.LessOrEqual(t, future.RetryAfter(), 30*time.Second)

	past := &BreakerOpenError{Name: "osv", RetryAt: time.Now().Add(-time.Second)}
	assert.Equal(t, time.Duration(0), past.RetryAfter())
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(Config{MaxFailures: 1})

	npm := r.Get("registry:npm")
	assert.Same(t, npm, r.Get("registry:npm"))
	assert.Equal(t, "registry:npm", npm.Name())

	_, _ = Do(context.Background(), r.Get("osv"), fail)

	stats := r.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, "osv", stats[0].Name)
	assert.Equal(t, "open", stats[0].State)
	assert.Equal(t, "registry:npm", stats[1].Name)

	r.ResetAll()
	assert.Equal(t, StateClosed, r.Get("osv").State())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("osv")
	assert.Equal(t, "osv", cfg.Name)
	assert.Equal(t, 5, cfg.MaxFailures)
	assert.Equal(t, 30*time.Second, cfg.OpenTimeout)
	assert.Equal(t, 1, cfg.HalfOpenProbes)
}
