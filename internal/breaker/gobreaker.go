package breaker

import (
	"time"

	gobreaker "github.com/sony/gobreaker"
)

// SingleUpstream wraps the ecosystem's generic breaker for call sites that
// protect a single upstream (the vector index client, the analyzer client)
// rather than a pool of failover candidates — those don't need the
// exact half-open single-probe accounting Breaker implements for C6, so
// reuse a generic implementation instead of duplicating the state machine.
type SingleUpstream struct {
	cb *gobreaker.CircuitBreaker
}

// NewSingleUpstream trips after 3 consecutive failures, or after a failure
// ratio above 5% once at least 20 requests have been observed in the
// rolling interval, and allows one retry attempt per timeout window.
func NewSingleUpstream(name string, timeout time.Duration) *SingleUpstream {
	st := gobreaker.Settings{
		Name:     name,
		Interval: 60 * time.Second,
		Timeout:  timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= 3 {
				return true
			}
			if counts.Requests < 20 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
		},
	}
	return &SingleUpstream{cb: gobreaker.NewCircuitBreaker(st)}
}

// Execute runs fn through the breaker, returning gobreaker.ErrOpenState or
// gobreaker.ErrTooManyRequests when the gate is shut.
func (s *SingleUpstream) Execute(fn func() (any, error)) (any, error) {
	return s.cb.Execute(fn)
}

// State reports the breaker's current gobreaker state string, for the
// status server.
func (s *SingleUpstream) State() string {
	return s.cb.State().String()
}
