package worker

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/shpitdev/referral-pipeline/pkg/pipeline/core"
)

type FailurePolicy int

const (
	// FailurePolicyPartialOutput records per-item errors and keeps going.
	FailurePolicyPartialOutput FailurePolicy = iota
	// FailurePolicyFailFast stops on the first per-item error.
	FailurePolicyFailFast
)

// Options controls the sequential item driver.
//
// Items are always processed one at a time: the remote sources this drives are
// rate sensitive and a single session cannot be shared.
type Options struct {
	// RequestTimeout bounds one processor call. Zero disables.
	RequestTimeout time.Duration

	// PaceMin/PaceMax bound the randomized pause between two items.
	PaceMin time.Duration
	PaceMax time.Duration

	FailurePolicy FailurePolicy

	// Sleep defaults to core.Sleep.
	Sleep core.SleepFunc
	// Float64 returns a value in [0,1). Defaults to math/rand/v2.
	Float64 func() float64
}

// Result holds the output for one input item.
type Result[In any, Out any] struct {
	Index  int
	Input  In
	Output Out
	Err    error
}

func (o Options) withDefaults() Options {
	if o.PaceMin < 0 {
		o.PaceMin = 0
	}
	if o.PaceMax < o.PaceMin {
		o.PaceMax = o.PaceMin
	}
	if o.Sleep == nil {
		o.Sleep = core.Sleep
	}
	if o.Float64 == nil {
		o.Float64 = rand.Float64
	}
	return o
}

// ProcessAll runs the processor over all input items in order.
func ProcessAll[In any, Out any](
	ctx context.Context,
	items []In,
	processor func(context.Context, In) (Out, error),
	opts Options,
) ([]Result[In, Out], error) {
	return ProcessAllWithCallback(ctx, items, processor, nil, opts)
}

// ProcessAllWithCallback runs the processor over all input items in order, pausing
// for a randomized delay between items, and invokes onResult after each item.
//
// Per-item errors are recorded in the Result unless they are fatal (see core.IsFatal)
// or the failure policy is fail-fast. A callback error stops the run.
func ProcessAllWithCallback[In any, Out any](
	ctx context.Context,
	items []In,
	processor func(context.Context, In) (Out, error),
	onResult func(Result[In, Out]) error,
	opts Options,
) ([]Result[In, Out], error) {
	opts = opts.withDefaults()

	out := make([]Result[In, Out], 0, len(items))
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if d := PaceDelay(opts.PaceMin, opts.PaceMax, opts.Float64); i > 0 && d > 0 {
			if err := opts.Sleep(ctx, d); err != nil {
				return out, err
			}
		}

		res := processOne(ctx, i, item, processor, opts)
		out = append(out, res)

		if onResult != nil {
			if err := onResult(res); err != nil {
				return out, err
			}
		}
		if res.Err == nil {
			continue
		}
		if core.IsFatal(res.Err) || opts.FailurePolicy == FailurePolicyFailFast {
			return out, res.Err
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
	}
	return out, nil
}

func processOne[In any, Out any](
	ctx context.Context,
	idx int,
	item In,
	processor func(context.Context, In) (Out, error),
	opts Options,
) Result[In, Out] {
	reqCtx := ctx
	var cancel context.CancelFunc
	if opts.RequestTimeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, opts.RequestTimeout)
	}
	res, err := processor(reqCtx, item)
	if cancel != nil {
		cancel()
	}
	return Result[In, Out]{
		Index:  idx,
		Input:  item,
		Output: res,
		Err:    err,
	}
}

// PaceDelay picks a delay uniformly in [min, max] using rnd in [0,1).
func PaceDelay(min, max time.Duration, rnd func() float64) time.Duration {
	if max <= min {
		return min
	}
	span := float64(max - min)
	return min + time.Duration(rnd()*span)
}
