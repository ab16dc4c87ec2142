package imap

import (
	"testing"
)

func TestSlashes(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"INBOX", "INBOX"},
		{`say "hi"`, `say \"hi\"`},
		{`back\slash`, `back\\slash`},
		{`\"`, `\\\"`},
		{"", ""},
	}

	for _, test := range tests {
		got := AddSlashes.Replace(test.input)
		if got != test.expected {
			t.Errorf("AddSlashes(%q) = %q, want %q", test.input, got, test.expected)
		}
		if back := RemoveSlashes.Replace(got); back != test.input {
			t.Errorf("RemoveSlashes(%q) = %q, want %q", got, back, test.input)
		}
	}
}

func TestDropNl(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"* OK\r\n", "* OK"},
		{"* OK\n", "* OK"},
		{"* OK", "* OK"},
		{"\r\n", ""},
	}

	for _, test := range tests {
		if got := string(dropNl([]byte(test.input))); got != test.expected {
			t.Errorf("dropNl(%q) = %q, want %q", test.input, got, test.expected)
		}
	}
}
