// Package operator asks the person at the terminal for yes/no confirmations.
package operator

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Prompter reads answers from in and writes questions to out.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func New(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// Confirm asks question with a (y/N) suffix. Only "y" or "yes" (any case) count as
// yes; end of input counts as no.
func (p *Prompter) Confirm(question string) (bool, error) {
	if _, err := fmt.Fprintf(p.out, "%s (y/N): ", question); err != nil {
		return false, err
	}
	line, err := p.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("read answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
