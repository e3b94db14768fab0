package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// Collection is one JSON-array-backed record set keyed by identifier.
//
// Every mutation is a full load-modify-rewrite of the backing file. Two processes
// writing the same collection concurrently can lose updates; see Lock.
type Collection[T any] struct {
	path   string
	key    func(T) string
	match  func(string) string
	logger *slog.Logger
}

// NewCollection returns a collection stored at path. key extracts the identifier.
func NewCollection[T any](path string, key func(T) string, logger *slog.Logger) *Collection[T] {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Collection[T]{path: path, key: key, match: func(id string) string { return id }, logger: logger}
}

// MatchBy sets how lookup identifiers are normalized before they are compared
// with record keys. key should already return the normalized form.
func (c *Collection[T]) MatchBy(fn func(string) string) *Collection[T] {
	c.match = fn
	return c
}

// Path returns the backing file path.
func (c *Collection[T]) Path() string { return c.path }

// Touch creates the backing file with an empty array if it does not exist yet.
func (c *Collection[T]) Touch() error {
	_, err := os.Stat(c.path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return c.Save(nil)
}

// Load returns the stored records in file order. A missing or unparseable file
// yields an empty slice; the problem is logged, never returned.
func (c *Collection[T]) Load() []T {
	b, err := os.ReadFile(c.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn("store: read failed, treating as empty", "path", c.path, "error", err)
		}
		return []T{}
	}
	var out []T
	if err := json.Unmarshal(b, &out); err != nil {
		c.logger.Warn("store: malformed contents, treating as empty", "path", c.path, "error", err)
		return []T{}
	}
	if out == nil {
		out = []T{}
	}
	return out
}

// Save rewrites the backing file from records.
//
// The write goes to a temp file that is renamed over the target, so a crash mid-write
// leaves the previous contents in place.
func (c *Collection[T]) Save(records []T) error {
	if records == nil {
		records = []T{}
	}
	b, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", c.path, err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: create dir: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("store: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("store: replace %s: %w", c.path, err)
	}
	return nil
}

// Find returns the record stored under key.
func (c *Collection[T]) Find(key string) (T, bool) {
	key = c.match(key)
	for _, rec := range c.Load() {
		if c.key(rec) == key {
			return rec, true
		}
	}
	var zero T
	return zero, false
}

// Has reports whether a record is stored under key.
func (c *Collection[T]) Has(key string) bool {
	_, ok := c.Find(key)
	return ok
}

// Keys returns the identifiers of records, in order.
func (c *Collection[T]) Keys(records []T) []string {
	out := make([]string, 0, len(records))
	for _, rec := range records {
		out = append(out, c.key(rec))
	}
	return out
}

// Add appends rec unless its key is already present. It reports whether it wrote.
func (c *Collection[T]) Add(rec T) (bool, error) {
	records := c.Load()
	k := c.key(rec)
	for _, existing := range records {
		if c.key(existing) == k {
			return false, nil
		}
	}
	records = append(records, rec)
	return true, c.Save(records)
}

// Replace removes any record stored under rec's key and appends rec.
func (c *Collection[T]) Replace(rec T) error {
	k := c.key(rec)
	records := c.Load()
	kept := records[:0]
	for _, existing := range records {
		if c.key(existing) != k {
			kept = append(kept, existing)
		}
	}
	kept = append(kept, rec)
	return c.Save(kept)
}

// Merge appends every record whose key is not yet stored, keeping existing order
// first. It returns the number of records added.
func (c *Collection[T]) Merge(records []T) (int, error) {
	current := c.Load()
	seen := make(map[string]struct{}, len(current)+len(records))
	for _, rec := range current {
		seen[c.key(rec)] = struct{}{}
	}
	added := 0
	for _, rec := range records {
		k := c.key(rec)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		current = append(current, rec)
		added++
	}
	if added == 0 {
		return 0, nil
	}
	return added, c.Save(current)
}
