// Package retry runs an operation under a bounded exponential backoff policy.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// Policy configures Do.
type Policy struct {
	MaxAttempts int           // total attempts including the first; <= 0 means 1
	BaseDelay   time.Duration // delay before the second attempt
	MaxDelay    time.Duration // cap for the exponential delay, before jitter
	Jitter      float64       // fraction of the delay added at random, 0.2 = up to +20%
	// Rand returns values in [0,1) for jitter. Nil disables jitter.
	Rand func() float64
}

// DefaultPolicy is three attempts at 200ms, 400ms with up to 20% jitter.
// Each call gets its own jitter source.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		Jitter:      0.2,
		Rand:        LockedRand(rand.New(rand.NewSource(time.Now().UnixNano()))), // #nosec G404 -- jitter only
	}
}

// LockedRand wraps rnd for use from concurrent retries.
func LockedRand(rnd *rand.Rand) func() float64 {
	var mu sync.Mutex
	return func() float64 {
		mu.Lock()
		defer mu.Unlock()
		return rnd.Float64()
	}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// RetryableStatus classifies HTTP status codes: 429 and 5xx are transient.
func RetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// Delay returns the wait before attempt (1-based count of failures so far).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 || p.BaseDelay <= 0 {
		return 0
	}
	wait := p.BaseDelay
	for i := 1; i < attempt; i++ {
		wait *= 2
		if p.MaxDelay > 0 && wait >= p.MaxDelay {
			wait = p.MaxDelay
			break
		}
	}
	if p.MaxDelay > 0 && wait > p.MaxDelay {
		wait = p.MaxDelay
	}
	if p.Jitter > 0 && p.Rand != nil {
		wait += time.Duration(float64(wait) * p.Jitter * p.Rand())
	}
	return wait
}

// Do calls op until it succeeds, returns a permanent error, the attempts are
// exhausted, or ctx is done. The last error is returned unwrapped from
// Permanent so callers can match it with errors.Is.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt == attempts {
			break
		}
		if werr := sleepWithContext(ctx, p.Delay(attempt)); werr != nil {
			return errors.Join(err, werr)
		}
	}
	return err
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
