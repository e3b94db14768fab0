package session_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shpitdev/referral-pipeline/internal/session"
)

func counts(seq ...int) func(context.Context, int) (int, error) {
	return func(_ context.Context, i int) (int, error) {
		if i-1 < len(seq) {
			return seq[i-1], nil
		}
		return seq[len(seq)-1], nil
	}
}

func TestUntilStagnant(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		opts       session.StagnationOptions
		seq        []int
		iterations int
		count      int
		stagnated  bool
	}{
		{
			name:       "stops_after_threshold_without_growth",
			opts:       session.StagnationOptions{Threshold: 3, MaxIterations: 100},
			seq:        []int{10, 20, 20, 25, 25, 25, 25},
			iterations: 7,
			count:      25,
			stagnated:  true,
		},
		{
			name:       "cap_wins_while_growing",
			opts:       session.StagnationOptions{Threshold: 3, MaxIterations: 4},
			seq:        []int{1, 2, 3, 4, 5},
			iterations: 4,
			count:      4,
			stagnated:  false,
		},
		{
			name:       "empty_list_stagnates",
			opts:       session.StagnationOptions{Threshold: 5},
			seq:        []int{0},
			iterations: 5,
			count:      0,
			stagnated:  true,
		},
		{
			name:       "shrinking_count_counts_as_stagnant",
			opts:       session.StagnationOptions{Threshold: 2, MaxIterations: 10},
			seq:        []int{8, 6, 7},
			iterations: 3,
			count:      8,
			stagnated:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res, err := session.UntilStagnant(context.Background(), tt.opts, counts(tt.seq...), nil)
			if err != nil {
				t.Fatalf("UntilStagnant() error = %v", err)
			}
			if res.Iterations != tt.iterations || res.Count != tt.count || res.Stagnated != tt.stagnated {
				t.Fatalf("result = %+v, want iterations=%d count=%d stagnated=%v", res, tt.iterations, tt.count, tt.stagnated)
			}
		})
	}
}

func TestUntilStagnantReportsProgress(t *testing.T) {
	t.Parallel()

	var stagnantSeen []int
	_, err := session.UntilStagnant(context.Background(), session.StagnationOptions{Threshold: 2}, counts(1, 1, 1), func(_, _, stagnant int) {
		stagnantSeen = append(stagnantSeen, stagnant)
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []int{0, 1, 2}
	if len(stagnantSeen) != len(want) {
		t.Fatalf("progress = %v, want %v", stagnantSeen, want)
	}
	for i := range want {
		if stagnantSeen[i] != want[i] {
			t.Fatalf("progress = %v, want %v", stagnantSeen, want)
		}
	}
}

func TestUntilStagnantStepErrorAndCancel(t *testing.T) {
	t.Parallel()

	boom := errors.New("detached")
	_, err := session.UntilStagnant(context.Background(), session.StagnationOptions{}, func(context.Context, int) (int, error) {
		return 0, boom
	}, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := session.UntilStagnant(ctx, session.StagnationOptions{}, counts(1), nil)
	if !errors.Is(err, context.Canceled) || res.Iterations != 0 {
		t.Fatalf("res=%+v err=%v", res, err)
	}
}
