package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shpitdev/referral-pipeline/pkg/pipeline/core"
)

// Decision is the payload the reasoning service is asked to return.
type Decision struct {
	Eligible bool
	Message  string
}

type decisionPayload struct {
	Referal  *bool   `json:"referal"`
	Referral *bool   `json:"referral"`
	Eligible *bool   `json:"eligible"`
	Message  *string `json:"message"`
}

// ErrNoPayload is returned when the response holds no JSON object.
var ErrNoPayload = errors.New("classify: no json object in response")

// ParseDecision decodes the substring between the first '{' and the last '}' of
// text. Any failure is a *core.PermanentError: retrying will not fix the shape.
func ParseDecision(text string) (Decision, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return Decision{}, &core.PermanentError{Err: ErrNoPayload}
	}

	var p decisionPayload
	if err := json.Unmarshal([]byte(text[start:end+1]), &p); err != nil {
		return Decision{}, &core.PermanentError{Err: fmt.Errorf("classify: decode payload: %w", err)}
	}

	var eligible *bool
	for _, v := range []*bool{p.Referal, p.Referral, p.Eligible} {
		if v != nil {
			eligible = v
			break
		}
	}
	if eligible == nil {
		return Decision{}, &core.PermanentError{Err: errors.New("classify: payload has no eligibility flag")}
	}

	out := Decision{Eligible: *eligible}
	if p.Message != nil {
		out.Message = strings.TrimSpace(*p.Message)
	}
	return out, nil
}
