package conformance

import (
	"context"
	"errors"
	"fmt"

	imap "github.com/BrianLeishman/go-imap-conform"
)

// Rule names, as reported in Violation.Check.
const (
	RuleGreetingUIDPLUS     = "greeting-uidplus"
	RuleAppendUIDContinuity = "appenduid-continuity"
	RuleCopyUIDContinuity   = "copyuid-continuity"
	RuleCopyUIDSource       = "copyuid-source"
	RuleCopyUIDPairing      = "copyuid-pairing"
	RuleMDNSentOnCopy       = "mdnsent-copy"
	RuleMDNSentImmutable    = "mdnsent-immutable"
	RuleMDNSentSearch       = "mdnsent-search"
	RulePermanentFlags      = "permanentflags"
)

// Violation is a server answer inconsistent with the extension contract.
// It is never retried.
type Violation struct {
	Check       string
	Expected    any
	Observed    any
	Description string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("%s: %s: expected %v, observed %v", v.Check, v.Description, v.Expected, v.Observed)
}

// Outcome classifies how a scenario ended.
type Outcome int

const (
	Pass Outcome = iota
	// Fail is a conformance violation.
	Fail
	// Malformed is server data that does not parse.
	Malformed
	// Infrastructure is an unreachable server, refused login or timeout.
	Infrastructure
	// Error is anything else, such as a NO to a command the scenario
	// needed to succeed.
	Error
)

func (o Outcome) String() string {
	switch o {
	case Pass:
		return "PASS"
	case Fail:
		return "FAIL"
	case Malformed:
		return "MALFORMED"
	case Infrastructure:
		return "INFRA"
	}
	return "ERROR"
}

// Classify maps a scenario's error to its outcome.
func Classify(err error) Outcome {
	var v *Violation
	switch {
	case err == nil:
		return Pass
	case errors.As(err, &v):
		return Fail
	case errors.Is(err, imap.ErrMalformedUIDSet),
		errors.Is(err, imap.ErrMalformedResponseCode),
		errors.Is(err, imap.ErrCardinalityMismatch),
		errors.Is(err, imap.ErrUnboundedWildcard):
		return Malformed
	case errors.Is(err, imap.ErrConnection),
		errors.Is(err, imap.ErrAuthentication),
		errors.Is(err, imap.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return Infrastructure
	}
	return Error
}
