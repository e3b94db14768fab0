// Package retry wraps calls to remote collaborators with bounded retries and
// exponential backoff. Whether an error is retried is decided by a fixed table
// keyed by error class, so the policy can be tested without a live remote.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/shpitdev/referral-pipeline/pkg/pipeline/core"
)

// Class is the retry-relevant category of an error.
type Class int

const (
	ClassPermanent Class = iota
	ClassTransient
	ClassQuota
	ClassTimeout
	ClassCanceled
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassQuota:
		return "quota_exceeded"
	case ClassTimeout:
		return "timeout"
	case ClassCanceled:
		return "canceled"
	default:
		return "permanent"
	}
}

// Decision is the policy outcome for one error class.
type Decision struct {
	Retryable bool
}

// Policy is the decision table consulted by Do.
var Policy = map[Class]Decision{
	ClassTransient: {Retryable: true},
	ClassQuota:     {Retryable: true},
	ClassTimeout:   {Retryable: true},
	ClassPermanent: {Retryable: false},
	ClassCanceled:  {Retryable: false},
}

// quotaMarker is looked for (case-insensitively) in remote error payloads.
const quotaMarker = "quota"

// Classify maps an error to its retry class.
func Classify(err error) Class {
	if err == nil {
		return ClassPermanent
	}
	if errors.Is(err, context.Canceled) {
		return ClassCanceled
	}

	var qe *core.QuotaExceededError
	if errors.As(err, &qe) {
		return ClassQuota
	}
	var te *core.TransientError
	if errors.As(err, &te) {
		return ClassTransient
	}
	var pe *core.PermanentError
	if errors.As(err, &pe) {
		return ClassPermanent
	}
	var re *core.RemoteError
	if errors.As(err, &re) {
		return classifyStatus(re.StatusCode, re.Payload)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ClassTimeout
	}
	return ClassPermanent
}

func classifyStatus(status int, payload string) Class {
	switch {
	case status == http.StatusTooManyRequests:
		return ClassTransient
	case status == http.StatusBadRequest && strings.Contains(strings.ToLower(payload), quotaMarker):
		return ClassQuota
	case status/100 == 5:
		return ClassTransient
	default:
		return ClassPermanent
	}
}

// Retryable reports whether the policy table allows another attempt for err.
func Retryable(err error) bool {
	return Policy[Classify(err)].Retryable
}

// Options controls Do.
type Options struct {
	// MaxRetries is the number of extra attempts after the first one.
	MaxRetries int
	// InitialDelay is the sleep before the first retry; it doubles on every retry.
	InitialDelay time.Duration
	// MaxDelay caps the delay. Zero means uncapped.
	MaxDelay time.Duration
	// JitterFrac applies +/- jitter to each delay (0.2 = +/-20%). Zero disables.
	JitterFrac float64

	// Sleep defaults to core.Sleep. Tests inject a recorder.
	Sleep core.SleepFunc
	// OnRetry is called before every backoff sleep.
	OnRetry func(attempt int, delay time.Duration, err error)
}

func (o Options) withDefaults() Options {
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = 2 * time.Second
	}
	if o.Sleep == nil {
		o.Sleep = core.Sleep
	}
	return o
}

// Failure is returned when an operation did not succeed. It carries the last error.
type Failure struct {
	Class    Class
	Attempts int
	// Waited is the total backoff time accumulated across retries.
	Waited time.Duration
	Err    error
}

func (f *Failure) Error() string {
	if f == nil {
		return "retry failure"
	}
	return fmt.Sprintf("failed after %d attempt(s) (%s): %v", f.Attempts, f.Class, f.Err)
}

func (f *Failure) Unwrap() error {
	if f == nil {
		return nil
	}
	return f.Err
}

// Do runs op until it succeeds, returns a non-retryable error, or the retry budget
// is spent. Failures come back as *Failure; a cancelled ctx comes back as ctx.Err().
func Do[T any](ctx context.Context, op func(context.Context) (T, error), opts Options) (T, error) {
	opts = opts.withDefaults()

	var zero T
	var waited time.Duration
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		out, err := op(ctx)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return zero, ctx.Err()
		}

		class := Classify(err)
		if !Policy[class].Retryable || attempt >= opts.MaxRetries {
			return zero, &Failure{Class: class, Attempts: attempt + 1, Waited: waited, Err: err}
		}

		delay := Delay(opts.InitialDelay, opts.MaxDelay, opts.JitterFrac, attempt)
		if opts.OnRetry != nil {
			opts.OnRetry(attempt+1, delay, err)
		}
		if err := opts.Sleep(ctx, delay); err != nil {
			return zero, err
		}
		waited += delay
	}
}

// Delay returns the backoff before retry number attempt+1: initial * 2^attempt,
// capped at max when max > 0.
func Delay(initial, max time.Duration, jitterFrac float64, attempt int) time.Duration {
	sleep := initial
	for i := 0; i < attempt; i++ {
		if max > 0 && sleep >= max {
			break
		}
		sleep *= 2
	}
	if max > 0 && sleep > max {
		sleep = max
	}
	if jitterFrac <= 0 {
		return sleep
	}
	// Apply +/- jitterFrac.
	j := 1 + (rand.Float64()*2-1)*jitterFrac
	return time.Duration(float64(sleep) * j)
}
