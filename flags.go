package imap

import (
	"maps"
	"sort"
	"strings"
)

// Flags used by the harness.
const (
	FlagSeen     = `\Seen`
	FlagDeleted  = `\Deleted`
	FlagMDNSent  = `$MDNSent`
	FlagWildcard = `\*`
)

// StoreMode selects how UID STORE applies its flag list.
type StoreMode int

const (
	StoreReplace StoreMode = iota
	StoreAdd
	StoreRemove
)

// item returns the STORE data item name for the mode.
func (m StoreMode) item() string {
	switch m {
	case StoreAdd:
		return "+FLAGS"
	case StoreRemove:
		return "-FLAGS"
	}
	return "FLAGS"
}

func (m StoreMode) String() string {
	switch m {
	case StoreAdd:
		return "add"
	case StoreRemove:
		return "remove"
	}
	return "replace"
}

// FlagSet holds the flags of one message. Flags compare case-insensitively.
type FlagSet map[string]struct{}

// NewFlagSet returns a set holding flags.
func NewFlagSet(flags ...string) FlagSet {
	s := make(FlagSet, len(flags))
	for _, f := range flags {
		s.Add(f)
	}
	return s
}

// Add inserts flag.
func (s FlagSet) Add(flag string) {
	s[strings.ToLower(flag)] = struct{}{}
}

// Has reports whether flag is present.
func (s FlagSet) Has(flag string) bool {
	_, ok := s[strings.ToLower(flag)]
	return ok
}

// Slice returns the normalized flags in sorted order.
func (s FlagSet) Slice() []string {
	flags := make([]string, 0, len(s))
	for f := range s {
		flags = append(flags, f)
	}
	sort.Strings(flags)
	return flags
}

// Equal reports whether both sets hold the same flags.
func (s FlagSet) Equal(other FlagSet) bool {
	return maps.Equal(s, other)
}

func (s FlagSet) String() string {
	return "(" + strings.Join(s.Slice(), " ") + ")"
}

// parseFlagList parses a parenthesized flag list like `(\Seen $MDNSent)`.
func parseFlagList(s string) FlagSet {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "(")
	s = strings.TrimSuffix(s, ")")
	return NewFlagSet(strings.Fields(s)...)
}
