package worker

import (
	"context"
	"errors"
	"time"

	"github.com/shpitdev/referral-pipeline/pkg/pipeline/core"
	"golang.org/x/time/rate"
)

// Limiter enforces a minimum gap between calls with a single-token bucket.
// A nil *Limiter never waits.
type Limiter struct {
	lim   *rate.Limiter
	sleep core.SleepFunc
	now   func() time.Time
}

// NewLimiter allows one call per every. It returns nil when every <= 0.
// sleep defaults to core.Sleep and now to time.Now.
func NewLimiter(every time.Duration, sleep core.SleepFunc, now func() time.Time) *Limiter {
	if every <= 0 {
		return nil
	}
	if sleep == nil {
		sleep = core.Sleep
	}
	if now == nil {
		now = time.Now
	}
	return &Limiter{lim: rate.NewLimiter(rate.Every(every), 1), sleep: sleep, now: now}
}

// Wait blocks until the next call is allowed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	at := l.now()
	r := l.lim.ReserveN(at, 1)
	if !r.OK() {
		return errors.New("worker: limiter burst exceeded")
	}
	d := r.DelayFrom(at)
	if d <= 0 {
		return nil
	}
	if err := l.sleep(ctx, d); err != nil {
		r.CancelAt(l.now())
		return err
	}
	return nil
}
