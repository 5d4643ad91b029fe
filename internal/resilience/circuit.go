// Package resilience provides typed upstream errors and a fail-fast circuit
// breaker for external service calls. Calls are never retried.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// State is the state of a Breaker.
type State int

const (
	// Closed passes calls through.
	Closed State = iota
	// Open rejects calls until the cooldown has elapsed.
	Open
	// HalfOpen lets a probe call through.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned without calling the upstream while a breaker is open.
var ErrCircuitOpen = eris.New("resilience: circuit open")

// BreakerConfig controls when a Breaker opens and for how long.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive server-side failures
	// that opens the breaker. Zero means 5.
	FailureThreshold int
	// Cooldown is how long the breaker stays open. Zero means 30s.
	Cooldown time.Duration
	// ShouldTrip decides whether an error counts as a failure. Nil means IsServerSide.
	ShouldTrip func(err error) bool
	// OnStateChange is called on every transition, with the breaker lock held.
	OnStateChange func(service string, from, to State)
}

// Breaker guards one upstream service.
type Breaker struct {
	service string
	cfg     BreakerConfig

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time

	nowFunc func() time.Time
}

// NewBreaker returns a closed breaker for service.
func NewBreaker(service string, cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.ShouldTrip == nil {
		cfg.ShouldTrip = IsServerSide
	}
	return &Breaker{service: service, cfg: cfg, nowFunc: time.Now}
}

// Do runs fn unless the breaker is open.
// A nil Breaker always runs fn.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if b == nil {
		return fn(ctx)
	}
	if err := b.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	b.record(err)
	return err
}

// Call is Do for functions returning a value.
func Call[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if b == nil {
		return fn(ctx)
	}
	if err := b.admit(); err != nil {
		return zero, err
	}
	v, err := fn(ctx)
	b.record(err)
	return v, err
}

// State returns the current state, reporting HalfOpen once the cooldown is over.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.nowFunc().Sub(b.openedAt) >= b.cfg.Cooldown {
		return HalfOpen
	}
	return b.state
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Open {
		return nil
	}
	if b.nowFunc().Sub(b.openedAt) < b.cfg.Cooldown {
		return eris.Wrapf(ErrCircuitOpen, "resilience: %s", b.service)
	}
	b.transition(HalfOpen)
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil || !b.cfg.ShouldTrip(err) {
		b.failures = 0
		if b.state == HalfOpen {
			b.transition(Closed)
		}
		return
	}

	b.failures++
	if b.state == HalfOpen || b.failures >= b.cfg.FailureThreshold {
		b.openedAt = b.nowFunc()
		if b.state != Open {
			b.transition(Open)
		}
	}
}

func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.service, from, to)
	}
}

// Breakers hands out one Breaker per service name.
type Breakers struct {
	cfg BreakerConfig

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewBreakers returns an empty registry sharing cfg.
func NewBreakers(cfg BreakerConfig) *Breakers {
	return &Breakers{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// Get returns the breaker for service, creating it on first use.
func (r *Breakers) Get(service string) *Breaker {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[service]
	if !ok {
		b = NewBreaker(service, r.cfg)
		r.breakers[service] = b
	}
	return b
}

// States returns a snapshot of every breaker's state.
func (r *Breakers) States() map[string]State {
	r.mu.Lock()
	bs := make(map[string]*Breaker, len(r.breakers))
	for k, v := range r.breakers {
		bs[k] = v
	}
	r.mu.Unlock()

	out := make(map[string]State, len(bs))
	for name, b := range bs {
		out[name] = b.State()
	}
	return out
}
