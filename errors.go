package imap

import (
	"errors"
	"fmt"
	"net"
)

var (
	// ErrConnection wraps failures to reach the server or a lost
	// connection.
	ErrConnection = errors.New("imap connection failed")

	// ErrAuthentication is returned when LOGIN or AUTHENTICATE is refused.
	ErrAuthentication = errors.New("imap authentication failed")

	// ErrTimeout wraps commands that did not complete within
	// Options.CommandTimeout or were interrupted.
	ErrTimeout = errors.New("imap command timed out")

	// ErrRejectedStore is returned when the server answers UID STORE with
	// NO or BAD.
	ErrRejectedStore = errors.New("imap store rejected")
)

// CommandError is a tagged NO or BAD completion.
type CommandError struct {
	Command string
	Status  string // "NO" or "BAD"
	Code    *ResponseCode
	Text    string
}

func (e *CommandError) Error() string {
	if e.Code != nil {
		return fmt.Sprintf("imap command failed: %s [%s] %s", e.Status, e.Code, e.Text)
	}
	return fmt.Sprintf("imap command failed: %s %s", e.Status, e.Text)
}

// ByeParseError is raised when the bytes trailing a server's BYE line
// cannot be parsed. Logout tolerates it; nothing else does.
type ByeParseError struct {
	Trailing []byte
	Err      error
}

func (e *ByeParseError) Error() string {
	return fmt.Sprintf("imap: unparsable data after BYE %q: %v", e.Trailing, e.Err)
}

func (e *ByeParseError) Unwrap() error { return e.Err }

// wrapNetErr classifies a transport error.
func wrapNetErr(err error) error {
	if err == nil {
		return nil
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrConnection, err)
}
