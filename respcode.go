package imap

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Response code names decoded into their own types.
const (
	CodeAppendUID      = "APPENDUID"
	CodeCopyUID        = "COPYUID"
	CodePermanentFlags = "PERMANENTFLAGS"
	CodeUIDValidity    = "UIDVALIDITY"
	CodeUIDNext        = "UIDNEXT"
	CodeCapability     = "CAPABILITY"
)

var (
	// ErrMalformedResponseCode is returned when the data of a known
	// response code does not have the expected shape.
	ErrMalformedResponseCode = errors.New("malformed response code")

	// ErrCardinalityMismatch is returned when a COPYUID source and
	// destination set differ in size.
	ErrCardinalityMismatch = errors.New("uid set cardinality mismatch")
)

// ResponseCode is the bracketed part of a status response, split into its
// name and the data that follows it.
type ResponseCode struct {
	Name string
	Data string
}

// String returns the code as it appears on the wire, without brackets.
func (c ResponseCode) String() string {
	if c.Data == "" {
		return c.Name
	}
	return c.Name + " " + c.Data
}

// ParseResponseCode extracts the response code from a status line such as
// "* OK [UIDNEXT 4392] Predicted next UID" or
// "A1 OK [APPENDUID 38505 3955] APPEND completed". ok is false when the
// line carries no code.
func ParseResponseCode(line string) (code ResponseCode, ok bool) {
	line = strings.TrimRight(line, "\r\n")
	// tag or "*", then status
	fields := strings.SplitN(line, " ", 3)
	if len(fields) < 3 || !strings.HasPrefix(fields[2], "[") {
		return ResponseCode{}, false
	}
	rest := fields[2][1:]
	end := strings.IndexByte(rest, ']')
	if end == -1 {
		return ResponseCode{}, false
	}
	name, data, _ := strings.Cut(rest[:end], " ")
	return ResponseCode{Name: strings.ToUpper(name), Data: data}, true
}

// ExtensionCode is a decoded response code. It is one of *AppendUID,
// *CopyUID or *OtherCode.
type ExtensionCode interface {
	CodeName() string
}

// AppendUID is the UIDPLUS APPENDUID code.
type AppendUID struct {
	UIDValidity uint32
	UID         uint32
}

func (c *AppendUID) CodeName() string { return CodeAppendUID }

func (c *AppendUID) String() string {
	return fmt.Sprintf("APPENDUID %d %d", c.UIDValidity, c.UID)
}

// CopyUID is the UIDPLUS COPYUID code. The i-th source UID was copied to
// the i-th destination UID.
type CopyUID struct {
	UIDValidity uint32
	SourceUIDs  UIDSet
	DestUIDs    UIDSet
}

func (c *CopyUID) CodeName() string { return CodeCopyUID }

func (c *CopyUID) String() string {
	return fmt.Sprintf("COPYUID %d %s %s", c.UIDValidity, c.SourceUIDs, c.DestUIDs)
}

// Pairs maps every source UID to the destination UID it was copied to.
func (c *CopyUID) Pairs() (map[uint32]uint32, error) {
	src, err := c.SourceUIDs.Expand()
	if err != nil {
		return nil, err
	}
	dst, err := c.DestUIDs.Expand()
	if err != nil {
		return nil, err
	}
	if len(src) != len(dst) {
		return nil, &CardinalityError{Source: len(src), Dest: len(dst)}
	}
	pairs := make(map[uint32]uint32, len(src))
	for i, uid := range src {
		pairs[uid] = dst[i]
	}
	return pairs, nil
}

// OtherCode is any response code without UIDPLUS meaning, passed through
// verbatim.
type OtherCode struct {
	Name string
	Data string
}

func (c *OtherCode) CodeName() string { return c.Name }

// CardinalityError reports a COPYUID whose sets differ in size.
type CardinalityError struct {
	Source, Dest int
}

func (e *CardinalityError) Error() string {
	return fmt.Sprintf("%s: %d source uids, %d destination uids", ErrCardinalityMismatch, e.Source, e.Dest)
}

func (e *CardinalityError) Is(target error) bool {
	return target == ErrCardinalityMismatch
}

// DecodeResponseCode turns a raw response code into its typed form.
// Unknown names are not an error, they come back as *OtherCode.
func DecodeResponseCode(rc ResponseCode) (ExtensionCode, error) {
	switch strings.ToUpper(rc.Name) {
	case CodeAppendUID:
		return decodeAppendUID(rc)
	case CodeCopyUID:
		return decodeCopyUID(rc)
	}
	return &OtherCode{Name: rc.Name, Data: rc.Data}, nil
}

func decodeAppendUID(rc ResponseCode) (*AppendUID, error) {
	fields := strings.Split(rc.Data, " ")
	if len(fields) != 2 {
		return nil, fmt.Errorf("%w: %q: want 2 fields, got %d", ErrMalformedResponseCode, rc.String(), len(fields))
	}
	validity, err := parseNumber(fields[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %q: uidvalidity: %s", ErrMalformedResponseCode, rc.String(), err)
	}
	uid, err := parseNumber(fields[1])
	if err != nil || uid == 0 {
		return nil, fmt.Errorf("%w: %q: uid %q is not a positive number", ErrMalformedResponseCode, rc.String(), fields[1])
	}
	return &AppendUID{UIDValidity: validity, UID: uid}, nil
}

func decodeCopyUID(rc ResponseCode) (*CopyUID, error) {
	fields := strings.Split(rc.Data, " ")
	if len(fields) != 3 {
		return nil, fmt.Errorf("%w: %q: want 3 fields, got %d", ErrMalformedResponseCode, rc.String(), len(fields))
	}
	validity, err := parseNumber(fields[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %q: uidvalidity: %s", ErrMalformedResponseCode, rc.String(), err)
	}
	c := &CopyUID{UIDValidity: validity}
	for _, f := range []struct {
		dst  *UIDSet
		text string
	}{
		{&c.SourceUIDs, fields[1]},
		{&c.DestUIDs, fields[2]},
	} {
		set, err := ParseUIDSet(f.text)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrMalformedResponseCode, rc.String(), err)
		}
		if set.Dynamic() {
			return nil, fmt.Errorf("%w: %q: uid set %q contains *", ErrMalformedResponseCode, rc.String(), f.text)
		}
		*f.dst = set
	}
	src, _ := c.SourceUIDs.Count()
	dst, _ := c.DestUIDs.Count()
	if src != dst {
		return nil, &CardinalityError{Source: src, Dest: dst}
	}
	return c, nil
}

func parseNumber(s string) (uint32, error) {
	if s == "" {
		return 0, errors.New("empty number")
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("%q is not a number", s)
		}
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%q out of range", s)
	}
	return uint32(n), nil
}
