package prompt

import (
	"bytes"
	"strings"
	"testing"
)

func TestConfirm(t *testing.T) {
	cases := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"Y\n", true},
		{"yes\n", true},
		{"YES\n", true},
		{" y \n", true},
		{"n\n", false},
		{"no\n", false},
		{"\n", false},      // bare enter declines
		{"maybe\n", false}, // anything unrecognized declines
		{"", false},        // EOF declines
	}

	for _, tc := range cases {
		var out bytes.Buffer
		term := NewTerminal(strings.NewReader(tc.input), &out)

		got, err := term.Confirm("continue?")
		if err != nil {
			t.Errorf("Confirm(%q) failed: %v", tc.input, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Confirm(%q) = %v, want %v", tc.input, got, tc.want)
		}
		if !strings.Contains(out.String(), "[y/N]") {
			t.Errorf("prompt missing the default-no marker: %q", out.String())
		}
	}
}

func TestSelect(t *testing.T) {
	var out bytes.Buffer
	term := NewTerminal(strings.NewReader("3\n"), &out)

	choice, err := term.Select("pick one", 5)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if choice != 3 {
		t.Errorf("choice = %d, want 3", choice)
	}
	if !strings.Contains(out.String(), "[1-5]") {
		t.Errorf("prompt missing the range hint: %q", out.String())
	}
}

func TestSelectReturnsRawOutOfRangeValue(t *testing.T) {
	// Range validation belongs to the caller, which classifies the failure.
	term := NewTerminal(strings.NewReader("42\n"), &bytes.Buffer{})

	choice, err := term.Select("pick one", 5)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if choice != 42 {
		t.Errorf("choice = %d, want the raw 42", choice)
	}
}

func TestSelectRejectsNonNumeric(t *testing.T) {
	term := NewTerminal(strings.NewReader("two\n"), &bytes.Buffer{})
	if _, err := term.Select("pick one", 5); err == nil {
		t.Error("Select accepted a non-numeric answer")
	}
}
