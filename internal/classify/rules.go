package classify

import (
	"strings"

	"github.com/shpitdev/referral-pipeline/internal/profile"
)

// DefaultBlacklist is used when no terms are configured.
var DefaultBlacklist = []string{"whatbytes", "gunmade"}

// Blacklist is a fixed list of terms matched case-insensitively against a record's
// headline and experience.
type Blacklist []string

// Match returns the first term found in rec.
func (b Blacklist) Match(rec profile.RawRecord) (string, bool) {
	text := strings.ToLower(rec.Headline + " " + strings.Join(rec.Experience, " "))
	for _, term := range b {
		t := strings.ToLower(strings.TrimSpace(term))
		if t == "" {
			continue
		}
		if strings.Contains(text, t) {
			return term, true
		}
	}
	return "", false
}

// NoSignal reports that rec carries nothing worth sending to the reasoning service.
func NoSignal(rec profile.RawRecord) bool {
	for _, e := range rec.Experience {
		if strings.TrimSpace(e) != "" {
			return false
		}
	}
	return true
}
