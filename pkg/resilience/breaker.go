// Package resilience guards external lookup sources (package registries,
// vulnerability databases, trust services) with circuit breakers so a failing
// source is skipped quickly instead of timing out once per node.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed lets lookups through.
	StateClosed State = iota

	// StateOpen rejects lookups until the open timeout elapses.
	StateOpen

	// StateHalfOpen lets a limited number of probe lookups through.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config configures a breaker.
type Config struct {
	// Name identifies the guarded source, e.g. "osv" or "registry:npm".
	Name string

	// MaxFailures is the number of consecutive failures that opens the circuit.
	MaxFailures int

	// OpenTimeout is how long the circuit stays open before probing.
	OpenTimeout time.Duration

	// HalfOpenProbes is the number of probe lookups allowed while half-open.
	// The same number of successes closes the circuit again.
	HalfOpenProbes int

	// OnStateChange is called asynchronously when the breaker changes state.
	OnStateChange func(name string, from, to State)

	// IsFailure decides whether an error counts against the source.
	// If nil, every error except context cancellation counts.
	IsFailure func(err error) bool
}

// DefaultConfig returns the configuration used for enrichment sources.
func DefaultConfig(name string) Config {
	return Config{
		Name:           name,
		MaxFailures:    5,
		OpenTimeout:    30 * time.Second,
		HalfOpenProbes: 1,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig(c.Name)
	if c.MaxFailures <= 0 {
		c.MaxFailures = d.MaxFailures
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = d.OpenTimeout
	}
	if c.HalfOpenProbes <= 0 {
		c.HalfOpenProbes = d.HalfOpenProbes
	}
	return c
}

// Breaker implements the circuit breaker pattern for a single source.
type Breaker struct {
	config Config
	now    func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	probes      int
	successes   int
	lastFailure time.Time
	stats       Stats
}

// NewBreaker creates a closed breaker.
func NewBreaker(config Config) *Breaker {
	return &Breaker{
		config: config.withDefaults(),
		now:    time.Now,
		state:  StateClosed,
	}
}

// Do runs fn if the breaker admits the call and records its outcome.
// A rejected call returns a *BreakerOpenError without running fn.
func Do[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if err := b.Allow(); err != nil {
		return zero, err
	}

	result, err := fn(ctx)
	b.Record(err)
	return result, err
}

// Allow reports whether a call may proceed. Callers that get nil must
// report the outcome with Record.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.Calls++

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.lastFailure) >= b.config.OpenTimeout {
			b.transition(StateHalfOpen)
			b.probes = 1
			return nil
		}
	case StateHalfOpen:
		if b.probes < b.config.HalfOpenProbes {
			b.probes++
			return nil
		}
	default:
		return nil
	}

	b.stats.Rejected++
	return &BreakerOpenError{
		Name:     b.config.Name,
		RetryAt:  b.lastFailure.Add(b.config.OpenTimeout),
		Failures: b.failures,
	}
}

// Record reports the outcome of an admitted call.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil || !b.isFailure(err) {
		b.stats.Successes++
		b.onSuccess()
		return
	}

	b.stats.Failures++
	b.failures++
	b.lastFailure = b.now()

	switch b.state {
	case StateClosed:
		if b.failures >= b.config.MaxFailures {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.transition(StateOpen)
	}
}

func (b *Breaker) isFailure(err error) bool {
	if b.config.IsFailure != nil {
		return b.config.IsFailure(err)
	}
	return !errors.Is(err, context.Canceled)
}

func (b *Breaker) onSuccess() {
	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.config.HalfOpenProbes {
			b.transition(StateClosed)
		}
	}
}

// transition must be called with the lock held.
func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	b.probes = 0
	b.successes = 0
	if to == StateClosed {
		b.failures = 0
	}

	if b.config.OnStateChange != nil && from != to {
		go b.config.OnStateChange(b.config.Name, from, to)
	}
}

// Name returns the guarded source name.
func (b *Breaker) Name() string {
	return b.config.Name
}

// State returns the current state of the breaker.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats returns a snapshot of the breaker counters.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stats
	s.Name = b.config.Name
	s.State = b.state.String()
	s.ConsecutiveFailures = b.failures
	return s
}

// Reset closes the breaker and clears its failure count.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.probes = 0
	b.successes = 0
}

// Stats are the counters of one breaker.
type Stats struct {
	Name                string `json:"name"`
	State               string `json:"state"`
	Calls               int64  `json:"calls"`
	Successes           int64  `json:"successes"`
	Failures            int64  `json:"failures"`
	Rejected            int64  `json:"rejected"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
}

// BreakerOpenError is returned when the circuit is open.
type BreakerOpenError struct {
	Name     string
	RetryAt  time.Time
	Failures int
}

// Error implements the error interface.
func (e *BreakerOpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open (failures=%d, retry at %s)",
		e.Name, e.Failures, e.RetryAt.Format(time.RFC3339))
}

// RetryAfter returns the duration until retry.
func (e *BreakerOpenError) RetryAfter() time.Duration {
	d := time.Until(e.RetryAt)
	if d < 0 {
		return 0
	}
	return d
}

// IsOpen reports whether err was produced by an open breaker.
func IsOpen(err error) bool {
	var open *BreakerOpenError
	return errors.As(err, &open)
}

// Registry hands out one breaker per source name.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	template Config
}

// NewRegistry creates a registry whose breakers share the template config.
func NewRegistry(template Config) *Registry {
	return &Registry{
		breakers: make(map[string]*Breaker),
		template: template,
	}
}

// Get returns or creates the breaker for name.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[name]; ok {
		return b
	}
	cfg := r.template
	cfg.Name = name
	b := NewBreaker(cfg)
	r.breakers[name] = b
	return b
}

// Stats returns the counters of every breaker, sorted by name.
func (r *Registry) Stats() []Stats {
	r.mu.Lock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	stats := make([]Stats, 0, len(breakers))
	for _, b := range breakers {
		stats = append(stats, b.Stats())
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

// ResetAll closes every breaker.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.breakers {
		b.Reset()
	}
}
