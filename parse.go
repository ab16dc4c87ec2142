package imap

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

const (
	nl         = "\r\n"
	TimeFormat = "_2-Jan-2006 15:04:05 -0700"
)

var fetchLineStartRE = regexp.MustCompile(`(?m)^\* \d+ FETCH`)

// Token represents a parsed IMAP token
type Token struct {
	Type   TType
	Str    string
	Num    int
	Tokens []*Token
}

// TType represents the type of an IMAP token
type TType uint8

const (
	TUnset     TType = iota
	TAtom            // {n} literal content
	TNumber          // bare number
	TLiteral         // bare word such as UID, FLAGS or \Seen
	TQuoted          // quoted string
	TNil             // NIL
	TContainer       // parenthesized list
)

type tokenizer struct {
	s string
	i int
}

// parseFetchTokens parses the parenthesized data of one FETCH response.
func parseFetchTokens(r string) ([]*Token, error) {
	t := &tokenizer{s: r}
	tokens, err := t.list(0)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 1 && tokens[0].Type == TContainer {
		tokens = tokens[0].Tokens
	}
	return tokens, nil
}

func (t *tokenizer) list(depth int) ([]*Token, error) {
	tokens := make([]*Token, 0)
	for t.i < len(t.s) {
		b := t.s[t.i]
		switch {
		case b == ' ', b == '\r', b == '\n':
			t.i++
		case b == '(':
			t.i++
			children, err := t.list(depth + 1)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, &Token{Type: TContainer, Tokens: children})
		case b == ')':
			if depth == 0 {
				return nil, fmt.Errorf("unmatched ')' at char %d in %s", t.i, t.s)
			}
			t.i++
			return tokens, nil
		case b == '"':
			tok, err := t.quoted()
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
		case b == '{':
			tok, err := t.literal()
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
		case IsLiteral(rune(b)):
			tokens = append(tokens, t.word())
		default:
			return nil, fmt.Errorf("unexpected %q at char %d in %s", b, t.i, t.s)
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("mismatched parentheses, depth %d at end of parsing %s", depth, t.s)
	}
	return tokens, nil
}

// word reads a bare token. A section spec in brackets, as in
// BODY[HEADER.FIELDS (SUBJECT)], is part of the word.
func (t *tokenizer) word() *Token {
	start := t.i
	for t.i < len(t.s) {
		b := t.s[t.i]
		if b == '[' {
			if end := strings.IndexByte(t.s[t.i:], ']'); end != -1 {
				t.i += end + 1
				continue
			}
		}
		if !IsLiteral(rune(b)) {
			break
		}
		t.i++
	}
	s := t.s[start:t.i]
	if num, err := strconv.Atoi(s); err == nil {
		return &Token{Type: TNumber, Num: num}
	}
	if strings.EqualFold(s, "NIL") {
		return &Token{Type: TNil}
	}
	return &Token{Type: TLiteral, Str: s}
}

func (t *tokenizer) quoted() (*Token, error) {
	start := t.i
	t.i++
	var b strings.Builder
	for t.i < len(t.s) {
		c := t.s[t.i]
		switch c {
		case '\\':
			if t.i+1 < len(t.s) {
				t.i++
				c = t.s[t.i]
			}
		case '"':
			t.i++
			return &Token{Type: TQuoted, Str: b.String()}, nil
		}
		b.WriteByte(c)
		t.i++
	}
	return nil, fmt.Errorf("unterminated quoted string at char %d in %s", start, t.s)
}

func (t *tokenizer) literal() (*Token, error) {
	end := strings.IndexByte(t.s[t.i:], '}')
	if end == -1 {
		return nil, fmt.Errorf("unterminated literal size at char %d in %s", t.i, t.s)
	}
	size, err := strconv.Atoi(t.s[t.i+1 : t.i+end])
	if err != nil {
		return nil, fmt.Errorf("literal size Atoi failed for '%s': %w", t.s[t.i+1:t.i+end], err)
	}
	t.i += end + 1
	if t.i < len(t.s) && t.s[t.i] == '\r' {
		t.i++
	}
	if t.i < len(t.s) && t.s[t.i] == '\n' {
		t.i++
	}
	if t.i+size > len(t.s) {
		return nil, fmt.Errorf("literal size %d but only %d bytes left at char %d", size, len(t.s)-t.i, t.i)
	}
	tok := &Token{Type: TAtom, Str: t.s[t.i : t.i+size]}
	t.i += size
	return tok, nil
}

// ParseFetchResponse parses a multi-line FETCH response
func (d *Dialer) ParseFetchResponse(responseBody string) (records [][]*Token, err error) {
	records = make([][]*Token, 0)
	body := strings.TrimSpace(responseBody)
	locs := fetchLineStartRE.FindAllStringIndex(body, -1)

	for i, loc := range locs {
		end := len(body)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		line := strings.TrimSpace(body[loc[0]:end])

		rest := line[2:]
		idx := strings.IndexByte(rest, ' ')
		if _, convErr := strconv.Atoi(rest[:idx]); convErr != nil {
			return nil, fmt.Errorf("unable to parse Fetch line (invalid seq num %s): %#v: %w", rest[:idx], line, convErr)
		}
		fetchContent := strings.TrimSpace(rest[idx+1:])[len("FETCH"):]
		tokens, err := parseFetchTokens(fetchContent)
		if err != nil {
			return nil, fmt.Errorf("token parsing failed for line part [%s] from original line [%s]: %w", fetchContent, line, err)
		}
		records = append(records, tokens)
	}
	return records, nil
}

// parseUIDSearchResponse parses UID SEARCH command responses
func parseUIDSearchResponse(r string) ([]uint32, error) {
	for _, line := range strings.Split(r, nl) {
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[0] != "*" || !strings.EqualFold(fields[1], "SEARCH") {
			continue
		}
		uids := make([]uint32, 0, len(fields)-2)
		for _, f := range fields[2:] {
			if strings.HasPrefix(f, "(") {
				// (MODSEQ n) trailer
				break
			}
			u, err := strconv.ParseUint(f, 10, 32)
			if err != nil {
				return nil, err
			}
			uids = append(uids, uint32(u))
		}
		return uids, nil
	}
	return nil, fmt.Errorf("invalid response: %q", r)
}

// IsLiteral checks if a rune is valid for a bare token
func IsLiteral(b rune) bool {
	switch {
	case unicode.IsDigit(b),
		unicode.IsLetter(b),
		b == '\\',
		b == '.',
		b == '[',
		b == ']',
		b == '$',
		b == '-',
		b == '_',
		b == '*',
		b == '+',
		b == '!',
		b == '#',
		b == '&',
		b == '\'',
		b == ',',
		b == '/',
		b == ':',
		b == ';',
		b == '<',
		b == '>',
		b == '=',
		b == '?',
		b == '@',
		b == '^',
		b == '|',
		b == '~':
		return true
	}
	return false
}

// GetTokenName returns the string name of a token type
func GetTokenName(tokenType TType) string {
	switch tokenType {
	case TUnset:
		return "TUnset"
	case TAtom:
		return "TAtom"
	case TNumber:
		return "TNumber"
	case TLiteral:
		return "TLiteral"
	case TQuoted:
		return "TQuoted"
	case TNil:
		return "TNil"
	case TContainer:
		return "TContainer"
	}
	return ""
}

// String returns a string representation of a Token
func (t Token) String() string {
	tokenType := GetTokenName(t.Type)
	switch t.Type {
	case TUnset, TNil:
		return tokenType
	case TAtom, TQuoted:
		return fmt.Sprintf("(%s, len %d, chars %d %#v)", tokenType, len(t.Str), len([]rune(t.Str)), t.Str)
	case TNumber:
		return fmt.Sprintf("(%s %d)", tokenType, t.Num)
	case TLiteral:
		return fmt.Sprintf("(%s %s)", tokenType, t.Str)
	case TContainer:
		return fmt.Sprintf("(%s children: %s)", tokenType, t.Tokens)
	}
	return ""
}

// CheckType validates that a token is one of the acceptable types
func (d *Dialer) CheckType(token *Token, acceptableTypes []TType, tks []*Token, loc string, v ...interface{}) (err error) {
	for _, a := range acceptableTypes {
		if token.Type == a {
			return nil
		}
	}
	types := make([]string, len(acceptableTypes))
	for i, a := range acceptableTypes {
		types[i] = GetTokenName(a)
	}
	return fmt.Errorf("IMAP%d:%s: expected %s token %s, got %+v in %v", d.ConnNum, d.Folder, strings.Join(types, "|"), fmt.Sprintf(loc, v...), token, tks)
}
