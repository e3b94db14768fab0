// Package workset computes what is left to do: the items of a universe whose
// identifiers are not yet in the done set, in universe order, optionally capped.
package workset

// Pending returns the identifiers of universe that are not in done, preserving
// universe order. Duplicates in universe are returned once. limit <= 0 means no cap.
func Pending(universe []string, done []string, limit int) []string {
	return PendingBy(universe, func(id string) string { return id }, done, limit)
}

// PendingBy is Pending over arbitrary items, keyed by key.
func PendingBy[T any](items []T, key func(T) string, done []string, limit int) []T {
	doneSet := make(map[string]struct{}, len(done))
	for _, id := range done {
		doneSet[id] = struct{}{}
	}

	out := make([]T, 0)
	seen := make(map[string]struct{})
	for _, item := range items {
		if limit > 0 && len(out) >= limit {
			break
		}
		k := key(item)
		if k == "" {
			continue
		}
		if _, ok := doneSet[k]; ok {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, item)
	}
	return out
}
