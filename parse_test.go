package imap

import (
	"strings"
	"testing"
)

func TestParseFetchTokensLiteralBoundary(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		wantErr      bool
		errContains  string
		description  string
		wantTokens   int  // Expected number of tokens
		checkContent bool // Whether to check token content
	}{
		{
			name:         "empty literal {0}",
			input:        "(BODY {0}\r\n)",
			wantErr:      false,
			description:  "Should handle empty literal {0} correctly",
			wantTokens:   2, // BODY and empty atom
			checkContent: true,
		},
		{
			name:         "literal with exact size",
			input:        "(BODY {5}\r\nHello)",
			wantErr:      false,
			description:  "Should handle literal with exact matching size",
			wantTokens:   2, // BODY and "Hello"
			checkContent: true,
		},
		{
			name:        "literal size exceeds buffer - should take available data",
			input:       "(BODY {10}\r\nHello     )",
			wantErr:     false,
			description: "Should handle literal where declared size exceeds available data",
			wantTokens:  2, // BODY and truncated content
		},
		{
			name:        "literal at end with size but no data",
			input:       "(BODY {5}\r\n",
			wantErr:     true,
			errContains: "literal size 5 but only 0 bytes left",
			description: "Should error when literal declares size but has no data",
		},
		{
			name:         "literal with multiline content",
			input:        "(BODY {15}\r\nThis is a test.)",
			wantErr:      false,
			description:  "Should handle literal with exact size match",
			wantTokens:   2,
			checkContent: true,
		},
		{
			name:        "multiple tokens with literal",
			input:       "(UID 7 BODY {5}\r\nHello FLAGS (\\Seen))",
			wantErr:     false,
			description: "Should handle complex input with literal in middle",
			wantTokens:  6, // UID, 7, BODY, "Hello", FLAGS, container
		},
		{
			name:        "literal with exact boundary",
			input:       "(BODY {3}\r\nabc)",
			wantErr:     false,
			description: "Should handle literal ending exactly at declared size",
			wantTokens:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := parseFetchTokens(tt.input)

			if tt.wantErr {
				if err == nil {
					t.Errorf("parseFetchTokens() error = nil, wantErr %v", tt.wantErr)
					return
				}
				if tt.errContains != "" && !contains(err.Error(), tt.errContains) {
					t.Errorf("parseFetchTokens() error = %v, want error containing %v", err, tt.errContains)
				}
			} else {
				if err != nil {
					t.Errorf("parseFetchTokens() unexpected error = %v for case: %s", err, tt.description)
					return
				}

				if tt.wantTokens > 0 && len(tokens) != tt.wantTokens {
					t.Errorf("parseFetchTokens() got %d tokens, want %d for case: %s", len(tokens), tt.wantTokens, tt.description)
				}

				if tt.checkContent && len(tokens) >= 2 {
					if tokens[0].Type != TLiteral || tokens[0].Str != "BODY" {
						t.Errorf("parseFetchTokens() first token = %+v, want BODY literal", tokens[0])
					}
					if tt.name == "empty literal {0}" && tokens[1].Type != TAtom {
						t.Errorf("parseFetchTokens() second token type = %v, want TAtom for empty literal", tokens[1].Type)
					}
					if tt.name == "literal with exact size" && (tokens[1].Type != TAtom || tokens[1].Str != "Hello") {
						t.Errorf("parseFetchTokens() second token = %+v, want Hello atom", tokens[1])
					}
				}
			}
		})
	}
}

func TestParseFetchTokensShapes(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []TType
		wantStr []string
	}{
		{
			name:    "section spec stays one word",
			input:   "(UID 3 BODY[HEADER.FIELDS (SUBJECT)] {4}\r\nabcd)",
			want:    []TType{TLiteral, TNumber, TLiteral, TAtom},
			wantStr: []string{"UID", "", "BODY[HEADER.FIELDS (SUBJECT)]", "abcd"},
		},
		{
			name:    "quoted with escapes and NIL",
			input:   `(X "a \"b\" c" NIL)`,
			want:    []TType{TLiteral, TQuoted, TNil},
			wantStr: []string{"X", `a "b" c`, ""},
		},
		{
			name:    "keywords",
			input:   `(FLAGS (\Seen $MDNSent \*))`,
			want:    []TType{TLiteral, TContainer},
			wantStr: []string{"FLAGS", ""},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := parseFetchTokens(tt.input)
			if err != nil {
				t.Fatalf("parseFetchTokens() error = %v", err)
			}
			if len(tokens) != len(tt.want) {
				t.Fatalf("got %d tokens %v, want %d", len(tokens), tokens, len(tt.want))
			}
			for i, tok := range tokens {
				if tok.Type != tt.want[i] {
					t.Errorf("token %d type = %s, want %s", i, GetTokenName(tok.Type), GetTokenName(tt.want[i]))
				}
				if tt.wantStr[i] != "" && tok.Str != tt.wantStr[i] {
					t.Errorf("token %d = %q, want %q", i, tok.Str, tt.wantStr[i])
				}
			}
		})
	}
}

func TestParseFetchTokensErrors(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		errContains string
	}{
		{"unmatched close", "(UID 1))", "unmatched ')'"},
		{"unclosed list", "(UID 1", "mismatched parentheses"},
		{"unterminated quote", `(X "abc)`, "unterminated quoted string"},
		{"bad literal size", "(BODY {x}\r\n)", "literal size Atoi failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseFetchTokens(tt.input)
			if err == nil || !contains(err.Error(), tt.errContains) {
				t.Errorf("parseFetchTokens(%q) error = %v, want error containing %q", tt.input, err, tt.errContains)
			}
		})
	}
}

func contains(s, substr string) bool {
	return strings.Contains(s, substr)
}
