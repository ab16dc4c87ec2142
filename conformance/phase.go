package conformance

import "strings"

// Phase is a step of a scenario's life. Phases are test steps, not IMAP
// protocol states.
type Phase int

const (
	Connected Phase = iota
	Authenticated
	MailboxSelected
	OperationIssued
	ResponseVerified
	LoggedOut
)

func (p Phase) String() string {
	switch p {
	case Connected:
		return "connected"
	case Authenticated:
		return "authenticated"
	case MailboxSelected:
		return "mailbox-selected"
	case OperationIssued:
		return "operation-issued"
	case ResponseVerified:
		return "response-verified"
	case LoggedOut:
		return "logged-out"
	}
	return "unknown"
}

// Trail records the phases a scenario went through.
type Trail []Phase

// Last returns the most recent phase. An empty trail has not connected yet
// and reports Connected.
func (t Trail) Last() Phase {
	if len(t) == 0 {
		return Connected
	}
	return t[len(t)-1]
}

func (t Trail) String() string {
	names := make([]string, len(t))
	for i, p := range t {
		names[i] = p.String()
	}
	return strings.Join(names, " > ")
}

// allowed lists the phases reachable from each phase. LoggedOut is
// reachable from everywhere because cleanup runs on every exit path.
var allowed = map[Phase][]Phase{
	Connected:        {Authenticated, ResponseVerified},
	Authenticated:    {MailboxSelected, OperationIssued, ResponseVerified},
	MailboxSelected:  {OperationIssued, MailboxSelected, ResponseVerified},
	OperationIssued:  {ResponseVerified},
	ResponseVerified: {OperationIssued, MailboxSelected, Authenticated},
}

func canEnter(from, to Phase) bool {
	if to == LoggedOut {
		return from != LoggedOut
	}
	for _, p := range allowed[from] {
		if p == to {
			return true
		}
	}
	return false
}
