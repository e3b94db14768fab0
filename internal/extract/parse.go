package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Selectors locate profile fields in a rendered profile page.
type Selectors struct {
	// Marker is the primary content marker waited for before extraction.
	Marker   string `yaml:"marker"`
	Name     string `yaml:"name"`
	Headline string `yaml:"headline"`
	// ExperienceGroup matches one experience entry; ExperienceText matches the
	// visible text fragments inside it.
	ExperienceGroup string `yaml:"experience_group"`
	ExperienceText  string `yaml:"experience_text"`
}

// DefaultSelectors match the profile page layout at the time of writing.
func DefaultSelectors() Selectors {
	return Selectors{
		Marker:          "h1",
		Name:            "h1",
		Headline:        ".text-body-medium.break-words",
		ExperienceGroup: `a[data-field="experience_company_logo"]`,
		ExperienceText:  `span[aria-hidden="true"]`,
	}
}

func (s Selectors) withDefaults() Selectors {
	d := DefaultSelectors()
	if s.Marker == "" {
		s.Marker = d.Marker
	}
	if s.Name == "" {
		s.Name = d.Name
	}
	if s.Headline == "" {
		s.Headline = d.Headline
	}
	if s.ExperienceGroup == "" {
		s.ExperienceGroup = d.ExperienceGroup
	}
	if s.ExperienceText == "" {
		s.ExperienceText = d.ExperienceText
	}
	return s
}

// Fields are the attributes pulled from one profile page.
type Fields struct {
	Name       string
	Headline   string
	Experience []string
}

// ParseProfile extracts Fields from rendered HTML. Each experience group becomes one
// entry: its non-empty text fragments joined with ", ". Empty groups are dropped.
func ParseProfile(html string, sel Selectors) (Fields, error) {
	sel = sel.withDefaults()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Fields{}, fmt.Errorf("extract: parse html: %w", err)
	}

	out := Fields{
		Name:       cleanText(doc.Find(sel.Name).First().Text()),
		Headline:   cleanText(doc.Find(sel.Headline).First().Text()),
		Experience: []string{},
	}
	doc.Find(sel.ExperienceGroup).Each(func(_ int, group *goquery.Selection) {
		var parts []string
		group.Find(sel.ExperienceText).Each(func(_ int, span *goquery.Selection) {
			if t := cleanText(span.Text()); t != "" {
				parts = append(parts, t)
			}
		})
		if len(parts) == 0 {
			return
		}
		out.Experience = append(out.Experience, strings.Join(parts, ", "))
	})
	return out, nil
}

func cleanText(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimSpace(s)
}
