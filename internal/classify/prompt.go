package classify

import (
	"fmt"
	"strings"

	"github.com/shpitdev/referral-pipeline/internal/profile"
)

// Persona describes who is asking for the referral.
type Persona struct {
	Name       string `yaml:"name"`
	Role       string `yaml:"role"`
	Company    string `yaml:"company"`
	ResumeLink string `yaml:"resume_link"`
}

// BuildPrompt renders the classification prompt for rec.
func BuildPrompt(p Persona, rec profile.RawRecord) string {
	experience := "No experience listed."
	if len(rec.Experience) > 0 {
		experience = strings.Join(rec.Experience, "\n")
	}

	var intro strings.Builder
	if p.Name != "" {
		fmt.Fprintf(&intro, "My name is %s", p.Name)
		if p.Role != "" {
			fmt.Fprintf(&intro, ", and I am currently working as a %s", p.Role)
			if p.Company != "" {
				fmt.Fprintf(&intro, " at %s", p.Company)
			}
		}
		intro.WriteString(". ")
	}
	intro.WriteString("I am actively exploring new opportunities and looking to get referrals at other companies.")

	resume := ""
	if p.ResumeLink != "" {
		resume = " Also, include my resume link in the message: " + p.ResumeLink
	}

	return strings.TrimSpace(fmt.Sprintf(`
%s

Based on the following LinkedIn profile information, please determine whether this person would be a suitable candidate for me to request a referral from. Respond with true if:
- The person has at least 1 year of experience,
- OR is a recruiter,
- OR holds a position such as founder or co-founder.

If suitable, generate a short, personalized message that I can send to them. The message must be complete and not require any manual editing, as it will be sent via automation.%s

Return the result in the following exact JSON format:
{
  "referal": true/false,
  "message": "..."
}

Profile:
Name: %s
Headline: %s
Experience:
%s
`, intro.String(), resume, rec.Name, rec.Headline, experience))
}
