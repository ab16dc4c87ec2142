package imap

import (
	"strings"
	"time"
)

// String replacers for escaping/unescaping quotes
var (
	AddSlashes    = strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	RemoveSlashes = strings.NewReplacer(`\\`, `\`, `\"`, `"`)
)

// Options configures a single Dialer. Every Dialer carries its own copy, so
// sessions running side by side never share settings.
type Options struct {
	// TLS dials with implicit TLS (e.g. port 993). Plain TCP otherwise.
	TLS bool

	// TLSSkipVerify disables certificate verification. Use with caution;
	// skipping verification exposes the connection to man-in-the-middle
	// attacks.
	TLSSkipVerify bool

	// DialTimeout defines how long to wait when establishing a new
	// connection. Zero means no timeout.
	DialTimeout time.Duration

	// CommandTimeout defines how long to wait for a command to complete.
	// Zero means no timeout.
	CommandTimeout time.Duration

	// RetryCount is how many times connection establishment is retried.
	RetryCount int

	// ReadRetries is how many times a read-only command (SELECT, SEARCH,
	// FETCH) is retried after reconnecting. Commands that change the
	// mailbox are never retried.
	ReadRetries int

	// Verbose logs every command and its response at debug level.
	Verbose bool

	// SkipResponses skips logging server responses in verbose mode.
	SkipResponses bool

	// Logger receives the session's logs. Nil means the default slog
	// text logger on stderr.
	Logger Logger
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		DialTimeout:    10 * time.Second,
		CommandTimeout: 30 * time.Second,
		RetryCount:     3,
	}
}
