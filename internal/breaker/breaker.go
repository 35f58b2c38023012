// Package breaker implements the per-operation three-state circuit breaker
// (Closed/Open/HalfOpen) that guards every protected call in the pipeline:
// one breaker per upstream provider in the fetch orchestrator (C6), plus a
// Manager that owns the whole named set.
package breaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/guglxni/quotefusion/internal/pipeerr"
)

// State is one of the three circuit states.
type State int

const (
	Closed State = iota
	Open
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

// Config holds the thresholds that govern a breaker's transitions.
type Config struct {
	FailureThreshold int           // consecutive failures to trip Closed -> Open
	SuccessThreshold int           // consecutive successes to close HalfOpen -> Closed
	RecoveryTimeout  time.Duration // Open -> HalfOpen eligibility window
	RequestTimeout   time.Duration // per-call timeout enforced by Call
}

// Breaker is a single named three-state gate. Transitions are serialized
// per breaker: readers observe at most one state transition per critical
// section, and HalfOpen admits exactly one in-flight probe at a time.
type Breaker struct {
	name   string
	cfg    Config
	mu     sync.Mutex
	state  State
	failures  int
	successes int
	nextAttemptAt time.Time
	probeInFlight bool

	totalRequests, totalSuccesses, totalFailures int64

	// onChange, when set, is invoked (without the breaker's lock held)
	// after every state transition, so an operational status server can
	// push a fresh snapshot to its websocket clients.
	onChange func()
}

func New(name string, cfg Config) *Breaker {
	return &Breaker{name: name, cfg: cfg, state: Closed}
}

// Name reports the operation this breaker protects.
func (b *Breaker) Name() string { return b.name }

// Call executes fn if the breaker currently allows it, enforcing
// RequestTimeout via ctx, and applies the resulting success/failure to the
// state machine. It returns pipeerr.CircuitOpenError without calling fn if
// the gate is shut.
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	isProbe, err := b.admit()
	if err != nil {
		return err
	}
	if isProbe {
		defer b.releaseProbe()
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if b.cfg.RequestTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, b.cfg.RequestTimeout)
		defer cancel()
	}

	b.mu.Lock()
	b.totalRequests++
	b.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- fn(callCtx) }()

	select {
	case err := <-done:
		if err != nil {
			b.onFailure()
			return err
		}
		b.onSuccess()
		return nil
	case <-callCtx.Done():
		b.onFailure()
		return &pipeerr.TimeoutError{Component: fmt.Sprintf("breaker:%s", b.name), Elapsed: b.cfg.RequestTimeout}
	}
}

// admit decides whether the call is allowed, and whether it is the single
// HalfOpen probe (which the caller must release via releaseProbe).
func (b *Breaker) admit() (isProbe bool, err error) {
	b.mu.Lock()

	switch b.state {
	case Closed:
		b.mu.Unlock()
		return false, nil
	case Open:
		if time.Now().Before(b.nextAttemptAt) {
			b.mu.Unlock()
			return false, &pipeerr.CircuitOpenError{Operation: b.name}
		}
		b.setState(HalfOpen)
		b.probeInFlight = true
		b.mu.Unlock()
		b.notify()
		return true, nil
	case HalfOpen:
		if b.probeInFlight {
			b.mu.Unlock()
			return false, &pipeerr.CircuitOpenError{Operation: b.name}
		}
		b.probeInFlight = true
		b.mu.Unlock()
		return true, nil
	default:
		b.mu.Unlock()
		return false, &pipeerr.CircuitOpenError{Operation: b.name}
	}
}

func (b *Breaker) releaseProbe() {
	b.mu.Lock()
	b.probeInFlight = false
	b.mu.Unlock()
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	b.totalSuccesses++
	changed := false
	switch b.state {
	case Closed:
		b.failures = 0
	case HalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.setState(Closed)
			b.failures, b.successes = 0, 0
			changed = true
		}
	}
	b.mu.Unlock()
	if changed {
		b.notify()
	}
}

func (b *Breaker) onFailure() {
	b.mu.Lock()
	b.totalFailures++
	changed := false
	switch b.state {
	case Closed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.trip()
			changed = true
		}
	case HalfOpen:
		b.trip()
		changed = true
	}
	b.mu.Unlock()
	if changed {
		b.notify()
	}
}

// notify invokes the registered onChange callback, if any, without holding
// the breaker's lock.
func (b *Breaker) notify() {
	b.mu.Lock()
	fn := b.onChange
	b.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// trip transitions to Open and arms the recovery timer. Caller holds mu.
func (b *Breaker) trip() {
	b.setState(Open)
	b.nextAttemptAt = time.Now().Add(b.cfg.RecoveryTimeout)
	b.successes = 0
}

func (b *Breaker) setState(s State) {
	b.state = s
}

// Stats is a point-in-time snapshot for observability and tests.
type Stats struct {
	State            State
	FailureCount     int
	SuccessCount     int
	TotalRequests    int64
	TotalSuccesses   int64
	TotalFailures    int64
	NextAttemptAt    time.Time
}

func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		State: b.state, FailureCount: b.failures, SuccessCount: b.successes,
		TotalRequests: b.totalRequests, TotalSuccesses: b.totalSuccesses, TotalFailures: b.totalFailures,
		NextAttemptAt: b.nextAttemptAt,
	}
}

// CurrentState returns the current state directly, for callers that only need the
// gate's position (e.g. C6's candidate ordering).
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the breaker back to Closed with all counters cleared.
func (b *Breaker) Reset() {
	b.mu.Lock()
	b.state, b.failures, b.successes, b.probeInFlight = Closed, 0, 0, false
	b.mu.Unlock()
	b.notify()
}

// OnStateChange registers fn to be invoked after every transition this
// breaker makes. Only one callback is kept; a later call replaces an
// earlier one.
func (b *Breaker) OnStateChange(fn func()) {
	b.mu.Lock()
	b.onChange = fn
	b.mu.Unlock()
}

// Manager owns a named set of breakers, one per protected operation
// (typically one per provider).
type Manager struct {
	mu       sync.RWMutex
	cfg      Config
	breakers map[string]*Breaker
	onChange func()
}

func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// For returns the breaker for name, creating it with the manager's default
// Config on first use.
func (m *Manager) For(name string) *Breaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.breakers[name]
	if !ok {
		b = New(name, m.cfg)
		b.OnStateChange(m.onChange)
		m.breakers[name] = b
	}
	return b
}

// OnStateChange registers fn to be invoked after every state transition of
// every breaker the manager owns, including ones created after this call.
func (m *Manager) OnStateChange(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
	for _, b := range m.breakers {
		b.OnStateChange(fn)
	}
}

// Snapshot returns Stats for every breaker the manager has created.
func (m *Manager) Snapshot() map[string]Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Stats, len(m.breakers))
	for name, b := range m.breakers {
		out[name] = b.Stats()
	}
	return out
}
