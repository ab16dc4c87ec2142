package imap

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

var (
	// ErrMalformedUIDSet is returned when text does not match the UID set
	// grammar: comma separated numbers, ranges and the "*" wildcard.
	ErrMalformedUIDSet = errors.New("malformed uid set")

	// ErrUnboundedWildcard is returned when a set containing "*" has to be
	// materialized without knowing the largest UID in the mailbox.
	ErrUnboundedWildcard = errors.New("uid set contains * and no largest uid is known")
)

// UIDRange is a single UID or a closed range of UIDs. A zero bound stands
// for "*". Start may be larger than Stop; IMAP defines both orders as the
// same set.
type UIDRange struct {
	Start, Stop uint32
}

// UIDSet is an ordered list of UID ranges, kept exactly as received or
// built.
type UIDSet []UIDRange

// UIDSetNum builds a set from individual UIDs. Ascending runs of
// consecutive UIDs are joined into ranges, anything else is kept as is so
// Expand returns uids in the same order.
func UIDSetNum(uids ...uint32) UIDSet {
	var s UIDSet
	for _, uid := range uids {
		if n := len(s); n > 0 && s[n-1].Stop != 0 && s[n-1].Start <= s[n-1].Stop && uid == s[n-1].Stop+1 {
			s[n-1].Stop = uid
			continue
		}
		s = append(s, UIDRange{Start: uid, Stop: uid})
	}
	return s
}

// ParseUIDSet decodes the wire form of a UID set. At least one range is
// required.
func ParseUIDSet(text string) (UIDSet, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: empty input", ErrMalformedUIDSet)
	}
	parts := strings.Split(text, ",")
	s := make(UIDSet, 0, len(parts))
	for _, part := range parts {
		r, err := parseUIDRange(part)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %s", ErrMalformedUIDSet, text, err)
		}
		s = append(s, r)
	}
	return s, nil
}

func parseUIDRange(token string) (UIDRange, error) {
	if token == "" {
		return UIDRange{}, errors.New("empty element")
	}
	lo, hi, isRange := strings.Cut(token, ":")
	start, err := parseUIDBound(lo)
	if err != nil {
		return UIDRange{}, err
	}
	if !isRange {
		return UIDRange{Start: start, Stop: start}, nil
	}
	stop, err := parseUIDBound(hi)
	if err != nil {
		return UIDRange{}, err
	}
	return UIDRange{Start: start, Stop: stop}, nil
}

func parseUIDBound(s string) (uint32, error) {
	if s == "*" {
		return 0, nil
	}
	n, err := parseNumber(s)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("%q is not positive", s)
	}
	return n, nil
}

func formatUIDBound(n uint32) string {
	if n == 0 {
		return "*"
	}
	return strconv.FormatUint(uint64(n), 10)
}

// String returns the canonical wire form. Single valued ranges are written
// as a bare number.
func (r UIDRange) String() string {
	if r.Start == r.Stop {
		return formatUIDBound(r.Start)
	}
	return formatUIDBound(r.Start) + ":" + formatUIDBound(r.Stop)
}

// Dynamic reports whether the range refers to "*".
func (r UIDRange) Dynamic() bool {
	return r.Start == 0 || r.Stop == 0
}

// bounds returns the range in ascending order with "*" replaced by max.
func (r UIDRange) bounds(max uint32) (lo, hi uint32) {
	lo, hi = r.Start, r.Stop
	if lo == 0 {
		lo = max
	}
	if hi == 0 {
		hi = max
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo, hi
}

// String returns the canonical wire form of the set.
func (s UIDSet) String() string {
	parts := make([]string, len(s))
	for i, r := range s {
		parts[i] = r.String()
	}
	return strings.Join(parts, ",")
}

// Dynamic reports whether any range refers to "*".
func (s UIDSet) Dynamic() bool {
	for _, r := range s {
		if r.Dynamic() {
			return true
		}
	}
	return false
}

// Count returns the number of UIDs denoted by the set, counting
// duplicates between ranges, without materializing it.
func (s UIDSet) Count() (int, error) {
	if s.Dynamic() {
		return 0, ErrUnboundedWildcard
	}
	n := 0
	for _, r := range s {
		lo, hi := r.bounds(0)
		n += int(hi-lo) + 1
	}
	return n, nil
}

// Expand materializes every UID. Ranges are visited in listed order and
// each range is walked upwards.
func (s UIDSet) Expand() ([]uint32, error) {
	return s.ExpandMax(0)
}

// ExpandMax is like Expand but resolves "*" to max, the largest UID
// assigned in the mailbox. A max of zero means unknown.
func (s UIDSet) ExpandMax(max uint32) ([]uint32, error) {
	if max == 0 && s.Dynamic() {
		return nil, ErrUnboundedWildcard
	}
	uids := make([]uint32, 0, len(s))
	for _, r := range s {
		lo, hi := r.bounds(max)
		for uid := lo; ; uid++ {
			uids = append(uids, uid)
			if uid == hi {
				break
			}
		}
	}
	return uids, nil
}

// Contains reports whether uid is in one of the static ranges.
func (s UIDSet) Contains(uid uint32) bool {
	for _, r := range s {
		if r.Dynamic() {
			continue
		}
		lo, hi := r.bounds(0)
		if uid >= lo && uid <= hi {
			return true
		}
	}
	return false
}

// Min returns the smallest UID in the set. ok is false when the set is
// empty or contains "*".
func (s UIDSet) Min() (uid uint32, ok bool) {
	if len(s) == 0 || s.Dynamic() {
		return 0, false
	}
	for i, r := range s {
		lo, _ := r.bounds(0)
		if i == 0 || lo < uid {
			uid = lo
		}
	}
	return uid, true
}

// Equal reports whether both sets denote the same UIDs, ignoring order and
// duplicates. Sets containing "*" are never equal. Ranges are compared as
// intervals, so neither set is materialized.
func (s UIDSet) Equal(other UIDSet) bool {
	if s.Dynamic() || other.Dynamic() {
		return false
	}
	return slices.Equal(s.merged(), other.merged())
}

// merged returns the ranges of a static set in ascending order, with
// overlapping and adjacent ranges joined.
func (s UIDSet) merged() UIDSet {
	out := make(UIDSet, 0, len(s))
	for _, r := range s {
		lo, hi := r.bounds(0)
		out = append(out, UIDRange{Start: lo, Stop: hi})
	}
	slices.SortFunc(out, func(a, b UIDRange) int { return cmp.Compare(a.Start, b.Start) })
	joined := out[:0]
	for _, r := range out {
		if n := len(joined); n > 0 && r.Start-1 <= joined[n-1].Stop {
			joined[n-1].Stop = max(joined[n-1].Stop, r.Stop)
			continue
		}
		joined = append(joined, r)
	}
	return joined
}

// SameUIDs reports whether a and b hold the same UIDs as sets.
func SameUIDs(a, b []uint32) bool {
	seen := make(map[uint32]bool, len(a))
	for _, uid := range a {
		seen[uid] = true
	}
	other := make(map[uint32]bool, len(b))
	for _, uid := range b {
		if !seen[uid] {
			return false
		}
		other[uid] = true
	}
	return len(other) == len(seen)
}
