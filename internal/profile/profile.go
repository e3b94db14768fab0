// Package profile holds the records that flow through the pipeline: identifiers,
// raw extracted profiles and classification decisions.
package profile

import (
	"net/url"
	"strings"
	"time"
)

// Canonicalize turns a profile locator into its stored identifier form.
//
// Query strings and fragments are volatile (tracking parameters, session hints) and
// are dropped; scheme and host are lower-cased. The path is kept as written, so
// identifiers harvested from profile links keep their trailing slash.
func Canonicalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		if i := strings.IndexAny(raw, "?#"); i >= 0 {
			raw = raw[:i]
		}
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

// MatchKey is the form identifiers are compared in: canonical, without a trailing
// slash. "/in/ada/" and "/in/ada?x=1" name the same profile.
func MatchKey(raw string) string {
	id := Canonicalize(raw)
	return strings.TrimRight(id, "/")
}

// RawRecord is the output of the extraction stage for one identifier.
//
// Optional fields are empty strings or empty lists, never missing, so downstream
// logic can branch on shape.
type RawRecord struct {
	URL        string   `json:"url"`
	Name       string   `json:"name"`
	Headline   string   `json:"headline"`
	Experience []string `json:"experience"`
}

// Key returns the record's identifier in MatchKey form.
func (r RawRecord) Key() string { return MatchKey(r.URL) }

// Normalize trims every field and drops empty experience groups.
func (r RawRecord) Normalize() RawRecord {
	out := RawRecord{
		URL:        strings.TrimSpace(r.URL),
		Name:       strings.TrimSpace(r.Name),
		Headline:   strings.TrimSpace(r.Headline),
		Experience: make([]string, 0, len(r.Experience)),
	}
	for _, group := range r.Experience {
		group = strings.TrimSpace(group)
		if group == "" {
			continue
		}
		out.Experience = append(out.Experience, group)
	}
	return out
}

// DisplayName is the name used in logs, falling back to the identifier.
func (r RawRecord) DisplayName() string {
	if strings.TrimSpace(r.Name) != "" {
		return r.Name
	}
	return r.URL
}

// Reason explains how a decision was reached.
type Reason string

const (
	ReasonEligible    Reason = "eligible"
	ReasonNotSuitable Reason = "not_suitable"
	ReasonBlacklisted Reason = "blacklisted"
	// ReasonNoExperience is the no-signal outcome: nothing to classify.
	ReasonNoExperience Reason = "no_experience"
)

// ShortCircuit reports whether the reason was decided locally without a remote call.
func (r Reason) ShortCircuit() bool {
	return r == ReasonBlacklisted || r == ReasonNoExperience
}

// DecisionRecord is the classification outcome for one identifier.
type DecisionRecord struct {
	URL       string    `json:"url"`
	Name      string    `json:"name"`
	Eligible  bool      `json:"eligible"`
	Message   string    `json:"message"`
	DecidedAt time.Time `json:"processedAt"`
	Reason    Reason    `json:"reason"`
}

// Key returns the record's identifier in MatchKey form.
func (d DecisionRecord) Key() string { return MatchKey(d.URL) }
