package store_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shpitdev/referral-pipeline/internal/profile"
	"github.com/shpitdev/referral-pipeline/internal/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir(), store.Files{}, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

func TestOpen_CreatesEmptyCollections(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	for _, path := range []string{s.Universe.Path(), s.Raw.Path(), s.Decisions.Path()} {
		b, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read %s: %v", path, err)
		}
		if string(b) != "[]" {
			t.Fatalf("%s: want empty array, got %q", path, b)
		}
	}
	if filepath.Base(s.Raw.Path()) != "scraped_profiles.json" {
		t.Fatalf("unexpected default raw file: %s", s.Raw.Path())
	}
}

func TestLoad_MissingOrMalformedIsEmpty(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	missing := store.NewCollection(filepath.Join(dir, "nope.json"), func(s string) string { return s }, nil)
	if got := missing.Load(); got == nil || len(got) != 0 {
		t.Fatalf("missing file: got %#v", got)
	}

	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	bad := store.NewCollection(path, func(s string) string { return s }, nil)
	if got := bad.Load(); len(got) != 0 {
		t.Fatalf("malformed file: got %#v", got)
	}
}

func TestAdd_IsNoOpForExistingKey(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	rec := profile.RawRecord{URL: "https://www.linkedin.com/in/a", Name: "A", Experience: []string{}}

	wrote, err := s.Raw.Add(rec)
	if err != nil || !wrote {
		t.Fatalf("first add: wrote=%t err=%v", wrote, err)
	}
	rec.Name = "changed"
	wrote, err = s.Raw.Add(rec)
	if err != nil || wrote {
		t.Fatalf("second add: wrote=%t err=%v", wrote, err)
	}

	got := s.Raw.Load()
	if len(got) != 1 || got[0].Name != "A" {
		t.Fatalf("unexpected records: %#v", got)
	}
}

func TestReplace_KeepsExactlyOneRecord(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	first := profile.DecisionRecord{URL: "u1", Eligible: true, Reason: profile.ReasonEligible, DecidedAt: time.Unix(1, 0).UTC()}
	other := profile.DecisionRecord{URL: "u2", Reason: profile.ReasonNotSuitable}
	if _, err := s.Decisions.Add(first); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Decisions.Add(other); err != nil {
		t.Fatal(err)
	}

	second := profile.DecisionRecord{URL: "u1", Eligible: false, Reason: profile.ReasonNotSuitable}
	if err := s.Decisions.Replace(second); err != nil {
		t.Fatal(err)
	}

	got := s.Decisions.Load()
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %#v", got)
	}
	if got[0].URL != "u2" || got[1].URL != "u1" || got[1].Eligible {
		t.Fatalf("replacement should remove then append: %#v", got)
	}
}

func TestMerge_AppendsOnlyNewKeys(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	if err := s.Universe.Save([]string{"a", "b"}); err != nil {
		t.Fatal(err)
	}
	added, err := s.Universe.Merge([]string{"b", "c", "", "c", "d"})
	if err != nil {
		t.Fatal(err)
	}
	if added != 2 {
		t.Fatalf("added=%d want 2", added)
	}
	got := s.Universe.Load()
	want := []string{"a", "b", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestDecisionRecord_OnDiskKeys(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	if _, err := s.Decisions.Add(profile.DecisionRecord{URL: "u", Name: "N", Reason: profile.ReasonBlacklisted}); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(s.Decisions.Path())
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"url"`, `"name"`, `"eligible"`, `"message"`, `"processedAt"`, `"reason": "blacklisted"`} {
		if !strings.Contains(string(b), key) {
			t.Fatalf("missing %s in %s", key, b)
		}
	}
}

func TestLock_RefusesSecondHolder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	unlock, err := store.Lock(dir)
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}
	if _, err := store.Lock(dir); !errors.Is(err, store.ErrLocked) {
		t.Fatalf("second lock: want ErrLocked, got %v", err)
	}
	if err := unlock(); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	unlock2, err := store.Lock(dir)
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	_ = unlock2()
}
