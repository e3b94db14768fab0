package operator_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/shpitdev/referral-pipeline/internal/operator"
)

func TestConfirm(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"  yes  \n", true},
		{"n\n", false},
		{"\n", false},
		{"yep\n", false},
		{"", false},
		{"y", true},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		p := operator.New(strings.NewReader(tt.input), &out)
		got, err := p.Confirm("Save this profile?")
		if err != nil {
			t.Fatalf("Confirm(%q) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Fatalf("Confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
		if out.String() != "Save this profile? (y/N): " {
			t.Fatalf("prompt = %q", out.String())
		}
	}
}

func TestConfirmReadsSuccessiveAnswers(t *testing.T) {
	t.Parallel()

	p := operator.New(strings.NewReader("y\nn\n"), &bytes.Buffer{})
	first, _ := p.Confirm("first?")
	second, _ := p.Confirm("second?")
	if !first || second {
		t.Fatalf("answers = %v, %v", first, second)
	}
}
