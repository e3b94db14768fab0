package session

import (
	"context"
	"fmt"
)

// StagnationOptions bounds an incremental-loading loop.
type StagnationOptions struct {
	// Threshold is K: stop after this many consecutive steps without growth.
	Threshold int
	// MaxIterations is an absolute cap on steps.
	MaxIterations int
}

func (o StagnationOptions) withDefaults() StagnationOptions {
	if o.Threshold <= 0 {
		o.Threshold = 5
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = 500
	}
	return o
}

// StagnationResult reports how a stagnation loop ended.
type StagnationResult struct {
	Iterations int
	// Count is the highest count observed.
	Count int
	// Stagnated is true when the loop stopped for lack of growth rather than the cap.
	Stagnated bool
}

// UntilStagnant calls step repeatedly. step triggers "reveal more" and returns the
// current discovered count. The loop stops once the count has not grown for
// Threshold consecutive steps or after MaxIterations steps.
func UntilStagnant(ctx context.Context, opts StagnationOptions, step func(ctx context.Context, iteration int) (int, error), progress func(iteration, count, stagnant int)) (StagnationResult, error) {
	opts = opts.withDefaults()

	var res StagnationResult
	stagnant := 0
	for res.Iterations < opts.MaxIterations && stagnant < opts.Threshold {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Iterations++

		count, err := step(ctx, res.Iterations)
		if err != nil {
			return res, fmt.Errorf("session: reveal step %d: %w", res.Iterations, err)
		}
		if count > res.Count {
			res.Count = count
			stagnant = 0
		} else {
			stagnant++
		}
		if progress != nil {
			progress(res.Iterations, count, stagnant)
		}
	}
	res.Stagnated = stagnant >= opts.Threshold
	return res, nil
}
