package worker_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/shpitdev/referral-pipeline/pkg/pipeline/worker"
)

type stepClock struct {
	now   time.Time
	slept []time.Duration
}

func (c *stepClock) Now() time.Time { return c.now }

func (c *stepClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
	return nil
}

func TestLimiter_SpacesCalls(t *testing.T) {
	t.Parallel()

	c := &stepClock{now: time.Unix(1700000000, 0)}
	l := worker.NewLimiter(1500*time.Millisecond, c.Sleep, c.Now)
	for i := 0; i < 3; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() #%d error = %v", i, err)
		}
	}
	want := []time.Duration{1500 * time.Millisecond, 1500 * time.Millisecond}
	if !slices.Equal(c.slept, want) {
		t.Fatalf("slept = %v, want %v", c.slept, want)
	}

	// Time spent elsewhere counts toward the gap.
	c.now = c.now.Add(time.Second)
	if err := l.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := c.slept[len(c.slept)-1]; got != 500*time.Millisecond {
		t.Fatalf("last pause = %v, want 500ms", got)
	}

	c.now = c.now.Add(time.Minute)
	before := len(c.slept)
	if err := l.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(c.slept) != before {
		t.Fatalf("idle limiter should not pause: %v", c.slept)
	}
}

func TestLimiter_DisabledAndCanceled(t *testing.T) {
	t.Parallel()

	off := worker.NewLimiter(0, nil, nil)
	if off != nil {
		t.Fatalf("NewLimiter(0) = %v, want nil", off)
	}
	if err := off.Wait(context.Background()); err != nil {
		t.Fatalf("nil limiter Wait() error = %v", err)
	}

	c := &stepClock{now: time.Unix(1700000000, 0)}
	l := worker.NewLimiter(time.Second, c.Sleep, c.Now)
	if err := l.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait() error = %v, want context.Canceled", err)
	}
}
