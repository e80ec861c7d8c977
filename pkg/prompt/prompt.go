// Package prompt models operator confirmation as an injected capability so
// confirmation gates can be stubbed in tests.
package prompt

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Prompter asks the operator for confirmations and selections.
type Prompter interface {
	// Confirm asks a yes/no question. false means the operator declined.
	Confirm(question string) (bool, error)

	// Select asks the operator to pick a 1-based index out of max entries.
	// The raw answer is returned even when out of range; the caller owns
	// range validation so it can classify the failure.
	Select(question string, max int) (int, error)
}

// Terminal reads operator answers from an input stream, normally stdin.
type Terminal struct {
	in  *bufio.Reader
	out io.Writer
}

// NewTerminal creates a prompter over the given streams.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: bufio.NewReader(in), out: out}
}

// Confirm asks a yes/no question. Only explicit "y"/"yes" is acceptance.
func (t *Terminal) Confirm(question string) (bool, error) {
	fmt.Fprintf(t.out, "%s [y/N]: ", question)

	line, err := t.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("read confirmation: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// Select asks for a numeric choice.
func (t *Terminal) Select(question string, max int) (int, error) {
	fmt.Fprintf(t.out, "%s [1-%d]: ", question, max)

	line, err := t.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("read selection: %w", err)
	}

	choice, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return 0, fmt.Errorf("selection is not a number: %w", err)
	}
	return choice, nil
}
