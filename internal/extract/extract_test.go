package extract_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shpitdev/referral-pipeline/internal/extract"
	"github.com/shpitdev/referral-pipeline/internal/store"
	"github.com/shpitdev/referral-pipeline/pkg/pipeline/core"
)

const profileHTML = `<html><body>
<main>
  <h1>  Jane   Doe </h1>
  <div class="text-body-medium break-words">Staff Engineer at Acme</div>
  <section>
    <a data-field="experience_company_logo" href="#">
      <span aria-hidden="true">Staff Engineer</span>
      <span aria-hidden="true"> Acme Corp · Full-time </span>
      <span aria-hidden="true">  </span>
      <span class="visually-hidden">Staff Engineer</span>
    </a>
    <a data-field="experience_company_logo" href="#"><img src="logo.png"></a>
    <a data-field="experience_company_logo" href="#">
      <span aria-hidden="true">Intern</span>
      <span aria-hidden="true">Initech</span>
    </a>
  </section>
</main>
</body></html>`

func TestParseProfile(t *testing.T) {
	t.Parallel()

	got, err := extract.ParseProfile(profileHTML, extract.Selectors{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "Jane Doe" {
		t.Fatalf("name=%q", got.Name)
	}
	if got.Headline != "Staff Engineer at Acme" {
		t.Fatalf("headline=%q", got.Headline)
	}
	want := []string{"Staff Engineer, Acme Corp · Full-time", "Intern, Initech"}
	if len(got.Experience) != len(want) {
		t.Fatalf("experience=%#v want %#v", got.Experience, want)
	}
	for i := range want {
		if got.Experience[i] != want[i] {
			t.Fatalf("experience=%#v want %#v", got.Experience, want)
		}
	}
}

func TestParseProfile_MissingFieldsAreEmpty(t *testing.T) {
	t.Parallel()

	got, err := extract.ParseProfile("<html><body><p>private</p></body></html>", extract.Selectors{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "" || got.Headline != "" {
		t.Fatalf("unexpected fields: %#v", got)
	}
	if got.Experience == nil || len(got.Experience) != 0 {
		t.Fatalf("experience must be empty, not nil: %#v", got.Experience)
	}
}

type fakeBrowser struct {
	pages    map[string]string
	timeouts map[string]bool
	current  string
}

func (f *fakeBrowser) Navigate(_ context.Context, url string) error {
	f.current = url
	return nil
}

func (f *fakeBrowser) WaitFor(_ context.Context, _ string, _ time.Duration) error {
	if f.timeouts[f.current] {
		return core.ErrNavigationTimeout
	}
	return nil
}

func (f *fakeBrowser) HTML(context.Context) (string, error) {
	return f.pages[f.current], nil
}

func TestStageProcess(t *testing.T) {
	t.Parallel()

	s, err := store.Open(t.TempDir(), store.Files{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	b := &fakeBrowser{
		pages:    map[string]string{"https://www.linkedin.com/in/jane": profileHTML},
		timeouts: map[string]bool{"https://www.linkedin.com/in/slow": true},
	}
	stage := extract.NewStage(b, s.Raw, extract.Options{}, nil)

	rec, err := stage.Process(context.Background(), "https://www.linkedin.com/in/jane")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.URL != "https://www.linkedin.com/in/jane" || rec.Name != "Jane Doe" {
		t.Fatalf("unexpected record: %#v", rec)
	}

	_, err = stage.Process(context.Background(), "https://www.linkedin.com/in/slow")
	if !errors.Is(err, core.ErrNavigationTimeout) {
		t.Fatalf("expected navigation timeout, got %v", err)
	}
	if core.IsFatal(err) {
		t.Fatalf("navigation timeout must not be fatal")
	}

	stored := s.Raw.Load()
	if len(stored) != 1 || stored[0].URL != "https://www.linkedin.com/in/jane" {
		t.Fatalf("unexpected stored records: %#v", stored)
	}
}

func TestStageSave_ReplacesExisting(t *testing.T) {
	t.Parallel()

	s, err := store.Open(t.TempDir(), store.Files{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	b := &fakeBrowser{pages: map[string]string{"u": profileHTML}}
	stage := extract.NewStage(b, s.Raw, extract.Options{}, nil)

	if _, err := stage.Process(context.Background(), "u"); err != nil {
		t.Fatal(err)
	}
	rec, err := stage.Extract(context.Background(), "u")
	if err != nil {
		t.Fatal(err)
	}
	rec.Headline = "Principal Engineer"
	if err := stage.Save(rec); err != nil {
		t.Fatal(err)
	}
	stored := s.Raw.Load()
	if len(stored) != 1 || stored[0].Headline != "Principal Engineer" {
		t.Fatalf("unexpected stored records: %#v", stored)
	}
}
