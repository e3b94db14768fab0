package workset_test

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/shpitdev/referral-pipeline/internal/workset"
)

func TestPending(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		universe []string
		done     []string
		limit    int
		want     []string
	}{
		{name: "empty universe", universe: nil, done: []string{"a"}, want: []string{}},
		{name: "nothing done", universe: []string{"a", "b", "c"}, want: []string{"a", "b", "c"}},
		{name: "preserves order", universe: []string{"c", "a", "b"}, done: []string{"a"}, want: []string{"c", "b"}},
		{name: "all done", universe: []string{"a", "b"}, done: []string{"b", "a"}, want: []string{}},
		{name: "cap", universe: []string{"a", "b", "c", "d"}, done: []string{"b"}, limit: 2, want: []string{"a", "c"}},
		{name: "cap larger than pending", universe: []string{"a", "b"}, limit: 30, want: []string{"a", "b"}},
		{name: "duplicates in universe", universe: []string{"a", "a", "b"}, want: []string{"a", "b"}},
		{name: "done not in universe", universe: []string{"a"}, done: []string{"zzz"}, want: []string{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := workset.Pending(tt.universe, tt.done, tt.limit)
			if !slices.Equal(got, tt.want) {
				t.Fatalf("Pending=%v want %v", got, tt.want)
			}
		})
	}
}

func TestPending_Properties(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewPCG(1, 2))
	for iter := 0; iter < 200; iter++ {
		universe := make([]string, r.IntN(20))
		for i := range universe {
			universe[i] = fmt.Sprintf("id-%d", i)
		}
		var done []string
		for _, id := range universe {
			if r.IntN(3) == 0 {
				done = append(done, id)
			}
		}
		limit := r.IntN(10)

		got := workset.Pending(universe, done, limit)

		// Subsequence of the universe, disjoint from done.
		pos := 0
		for _, id := range got {
			for pos < len(universe) && universe[pos] != id {
				pos++
			}
			if pos == len(universe) {
				t.Fatalf("%v is not a subsequence of %v", got, universe)
			}
			if slices.Contains(done, id) {
				t.Fatalf("%s is done but pending", id)
			}
		}

		uncapped := workset.Pending(universe, done, 0)
		want := len(uncapped)
		if limit > 0 {
			want = min(limit, len(uncapped))
		}
		if len(got) != want {
			t.Fatalf("len=%d want %d (limit=%d)", len(got), want, limit)
		}

		// Independent of the order of done.
		shuffled := slices.Clone(done)
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		if again := workset.Pending(universe, shuffled, limit); !slices.Equal(again, got) {
			t.Fatalf("result depends on done order: %v vs %v", again, got)
		}
	}
}

func TestPendingBy(t *testing.T) {
	t.Parallel()

	type rec struct{ url string }
	items := []rec{{"a"}, {"b"}, {"c"}}
	got := workset.PendingBy(items, func(r rec) string { return r.url }, []string{"b"}, 0)
	if len(got) != 2 || got[0].url != "a" || got[1].url != "c" {
		t.Fatalf("unexpected: %#v", got)
	}
}
