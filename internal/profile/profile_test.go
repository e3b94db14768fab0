package profile_test

import (
	"testing"

	"github.com/shpitdev/referral-pipeline/internal/profile"
)

func TestCanonicalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "  https://www.linkedin.com/in/jane-doe/  ", want: "https://www.linkedin.com/in/jane-doe/"},
		{in: "https://www.linkedin.com/in/jane-doe/?miniProfileUrn=urn%3Ali%3Afs", want: "https://www.linkedin.com/in/jane-doe/"},
		{in: "https://www.linkedin.com/in/jane-doe?miniProfileUrn=urn%3Ali%3Afs", want: "https://www.linkedin.com/in/jane-doe"},
		{in: "HTTPS://WWW.LinkedIn.com/in/Jane-Doe/#experience", want: "https://www.linkedin.com/in/Jane-Doe/"},
		{in: "https://www.linkedin.com/in/jane-doe", want: "https://www.linkedin.com/in/jane-doe"},
	}
	for _, tt := range tests {
		got := profile.Canonicalize(tt.in)
		if got != tt.want {
			t.Fatalf("Canonicalize(%q)=%q want %q", tt.in, got, tt.want)
		}
		if again := profile.Canonicalize(got); again != got {
			t.Fatalf("Canonicalize is not idempotent: %q -> %q", got, again)
		}
	}
}

func TestMatchKey(t *testing.T) {
	t.Parallel()

	const want = "https://www.linkedin.com/in/ada"
	for _, in := range []string{
		"https://www.linkedin.com/in/ada/",
		"https://www.linkedin.com/in/ada",
		"https://www.linkedin.com/in/ada/?miniProfile=1",
		"HTTPS://www.LinkedIn.com/in/ada/#top",
	} {
		if got := profile.MatchKey(in); got != want {
			t.Fatalf("MatchKey(%q)=%q want %q", in, got, want)
		}
	}
	if got := profile.MatchKey(""); got != "" {
		t.Fatalf("MatchKey(\"\")=%q", got)
	}

	rec := profile.RawRecord{URL: "https://www.linkedin.com/in/ada/"}
	if rec.Key() != want {
		t.Fatalf("RawRecord.Key()=%q", rec.Key())
	}
}

func TestRawRecordNormalize(t *testing.T) {
	t.Parallel()

	rec := profile.RawRecord{
		URL:        " https://www.linkedin.com/in/a ",
		Name:       " Ann ",
		Headline:   "\tEngineer ",
		Experience: []string{" Acme, 2 yrs ", "", "   "},
	}.Normalize()

	if rec.URL != "https://www.linkedin.com/in/a" || rec.Name != "Ann" || rec.Headline != "Engineer" {
		t.Fatalf("fields not trimmed: %#v", rec)
	}
	if len(rec.Experience) != 1 || rec.Experience[0] != "Acme, 2 yrs" {
		t.Fatalf("unexpected experience: %#v", rec.Experience)
	}

	empty := profile.RawRecord{URL: "x"}.Normalize()
	if empty.Experience == nil {
		t.Fatalf("experience must be an empty list, not nil")
	}
}
