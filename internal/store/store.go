// Package store persists the pipeline's three record collections as JSON arrays
// under one data directory.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/shpitdev/referral-pipeline/internal/profile"
)

// Files names the backing file of each collection inside the data directory.
type Files struct {
	Universe  string `yaml:"universe"`
	Raw       string `yaml:"raw"`
	Decisions string `yaml:"decisions"`
}

// DefaultFiles are the file names used when none are configured.
func DefaultFiles() Files {
	return Files{
		Universe:  "connections.json",
		Raw:       "scraped_profiles.json",
		Decisions: "profiles_inf.json",
	}
}

func (f Files) withDefaults() Files {
	d := DefaultFiles()
	if f.Universe == "" {
		f.Universe = d.Universe
	}
	if f.Raw == "" {
		f.Raw = d.Raw
	}
	if f.Decisions == "" {
		f.Decisions = d.Decisions
	}
	return f
}

// Store bundles the collections. It is an explicit handle passed to each stage.
type Store struct {
	Dir       string
	Universe  *Collection[string]
	Raw       *Collection[profile.RawRecord]
	Decisions *Collection[profile.DecisionRecord]
}

// Open prepares dir and creates any missing collection file with an empty array.
func Open(dir string, files Files, logger *slog.Logger) (*Store, error) {
	if dir == "" {
		dir = "."
	}
	files = files.withDefaults()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}

	s := &Store{
		Dir:       dir,
		Universe:  NewCollection(filepath.Join(dir, files.Universe), profile.MatchKey, logger).MatchBy(profile.MatchKey),
		Raw:       NewCollection(filepath.Join(dir, files.Raw), profile.RawRecord.Key, logger).MatchBy(profile.MatchKey),
		Decisions: NewCollection(filepath.Join(dir, files.Decisions), profile.DecisionRecord.Key, logger).MatchBy(profile.MatchKey),
	}
	for _, touch := range []func() error{s.Universe.Touch, s.Raw.Touch, s.Decisions.Touch} {
		if err := touch(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// ErrLocked is returned by Lock when another run holds the data directory.
var ErrLocked = errors.New("store: data dir is in use by another run")

// Lock takes an advisory lock on the data directory so that a second run refuses to
// start instead of racing the first one. Call the returned func to release it.
func Lock(dir string) (func() error, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}
	fl := flock.New(filepath.Join(dir, ".referrals.lock"))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("store: lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return fl.Unlock, nil
}
