package browser

import (
	"testing"
	"time"
)

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	got := Config{}.withDefaults()
	if got.LoginURL != DefaultLoginURL || got.UserAgent != DefaultUserAgent {
		t.Fatalf("defaults = %+v", got)
	}
	if got.NavigationTimeout != 60*time.Second || got.ScrollPause != time.Second {
		t.Fatalf("timeouts = %v / %v", got.NavigationTimeout, got.ScrollPause)
	}

	custom := Config{NavigationTimeout: 5 * time.Second, UserAgent: "ua"}.withDefaults()
	if custom.NavigationTimeout != 5*time.Second || custom.UserAgent != "ua" {
		t.Fatalf("custom overridden: %+v", custom)
	}
}

func TestJSStringQuotesSelectors(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		`h1`:                              `"h1"`,
		`a[href*="/in/"]`:                 `"a[href*=\"/in/\"]"`,
		`button[aria-label*='Load more']`: `"button[aria-label*='Load more']"`,
	}
	for in, want := range tests {
		if got := jsString(in); got != want {
			t.Fatalf("jsString(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	calls := 0
	s := &Session{cancel: func() { calls++ }}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("cancel calls = %d, want 1", calls)
	}
}
