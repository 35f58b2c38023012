// Package retry implements the classified-error wait schedule (C4):
// exponential backoff with jitter for transient failures, a ledger-aware
// single wait-and-retry for rate-limited responses, and no retry at all for
// auth failures or fatal errors.
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/guglxni/quotefusion/internal/pipeerr"
)

// Policy holds the backoff parameters. Defaults: base 100ms, factor 2, cap
// 30s, ±20% jitter, 3 total attempts.
type Policy struct {
	Base        time.Duration
	Factor      float64
	Cap         time.Duration
	MaxAttempts int
	Rand        *rand.Rand // nil uses the package-level source
}

func (p Policy) jitterFactor() float64 {
	src := p.Rand
	if src == nil {
		return 1 + (rand.Float64()*0.4 - 0.2) // +-20%
	}
	return 1 + (src.Float64()*0.4 - 0.2)
}

// BackoffDelay returns the delay that follows failed try number n
// (0-indexed, as Do passes it: the delay before the *second* try is
// BackoffDelay(0), i.e. Base), applying the exponential curve, the cap, and
// jitter.
func (p Policy) BackoffDelay(n int) time.Duration {
	d := float64(p.Base)
	for i := 0; i < n; i++ {
		d *= p.Factor
	}
	delay := time.Duration(d)
	if delay > p.Cap || delay <= 0 {
		delay = p.Cap
	}
	jittered := time.Duration(float64(delay) * p.jitterFactor())
	if jittered < 0 {
		jittered = 0
	}
	return jittered
}

// WaitBudget abstracts the rate-limit ledger's wait_budget lookup so this
// package doesn't import ledger directly (avoids a dependency cycle and
// keeps retry usable against any rate-limit-aware source).
type WaitBudget func() time.Duration

const defaultRateLimitWait = 10 * time.Second

// Do executes attempt repeatedly per the classification of the error it
// returns, honoring ctx cancellation between attempts. attempt receives the
// 0-indexed try number. classify maps the attempt's error to a
// pipeerr.Classification; waitBudget is consulted only on a
// ClassRetryableRateLimited classification.
func (p Policy) Do(ctx context.Context, waitBudget WaitBudget, attempt func(ctx context.Context, try int) (status int, err error)) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastStatus int
	var lastErr error
	rateLimitRetried := false

	for try := 0; try < maxAttempts; try++ {
		if err := ctx.Err(); err != nil {
			return lastStatus, &pipeerr.DeadlineExceededError{Step: "retry"}
		}

		status, err := attempt(ctx, try)
		lastStatus, lastErr = status, err
		if err == nil && status >= 200 && status < 300 {
			return status, nil
		}

		class := pipeerr.Classify(status, transportErrOnly(status, err))
		switch class {
		case pipeerr.ClassRetryableTransient:
			if try == maxAttempts-1 {
				return lastStatus, lastErr
			}
			if waitErr := sleep(ctx, p.BackoffDelay(try)); waitErr != nil {
				return lastStatus, waitErr
			}
		case pipeerr.ClassRetryableRateLimited:
			if rateLimitRetried {
				return lastStatus, lastErr
			}
			rateLimitRetried = true
			wait := defaultRateLimitWait
			if waitBudget != nil {
				if b := waitBudget(); b > 0 {
					wait = b
				}
			}
			if waitErr := sleep(ctx, wait); waitErr != nil {
				return lastStatus, waitErr
			}
		case pipeerr.ClassAuthNone, pipeerr.ClassFatal:
			return lastStatus, lastErr
		}
	}
	return lastStatus, lastErr
}

// transportErrOnly returns err only when status is zero (a transport-level
// failure rather than an HTTP response), matching pipeerr.Classify's
// expectation that transportErr is nil whenever a real status was observed.
func transportErrOnly(status int, err error) error {
	if status == 0 {
		return err
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return &pipeerr.DeadlineExceededError{Step: "retry-sleep"}
	}
}
