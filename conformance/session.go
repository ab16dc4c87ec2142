// Package conformance checks an IMAP server's UIDPLUS (RFC 4315) support
// and its handling of the $MDNSent keyword.
//
// Each Scenario drives one Session through a sequence of commands and
// holds the server's answers against pure check functions. A failed check
// is a *Violation and ends that scenario only; the Runner keeps going with
// the next one.
package conformance

import (
	"context"
	"time"

	imap "github.com/BrianLeishman/go-imap-conform"
)

// Session is the live IMAP peer a scenario talks to. *imap.Dialer
// implements it.
type Session interface {
	Greeting() imap.Greeting
	Login(username, password string) error
	Authenticate(username, accessToken string) error
	Select(folder string) (*imap.MailboxState, error)
	LastResponse(key string) (string, bool)
	Create(folder string) error
	Delete(folder string) error
	Append(folder string, msg []byte, flags []string, date time.Time) (imap.ExtensionCode, error)
	UIDCopy(set imap.UIDSet, dest string) (imap.ExtensionCode, error)
	UIDStore(set imap.UIDSet, mode imap.StoreMode, flags []string) error
	UIDSearch(keys string) (imap.UIDSet, error)
	UIDFetch(set imap.UIDSet, items string) (map[uint32]imap.FetchAttrs, error)
	FetchFlags(set imap.UIDSet) (map[uint32]imap.FlagSet, error)
	FetchSubjects(set imap.UIDSet) (map[uint32]string, error)
	CloseMailbox() error
	Logout() error
	// Interrupt aborts the command in progress, if any.
	Interrupt()
}

var _ Session = (*imap.Dialer)(nil)

// DialFunc opens a connected, not yet authenticated session.
type DialFunc func(ctx context.Context) (Session, error)

// Dialer returns a DialFunc connecting to the configured server.
func Dialer(cfg *Config, logger imap.Logger) DialFunc {
	return func(ctx context.Context) (Session, error) {
		opts, err := cfg.Options(logger)
		if err != nil {
			return nil, err
		}
		if deadline, ok := ctx.Deadline(); ok {
			if left := time.Until(deadline); opts.DialTimeout == 0 || left < opts.DialTimeout {
				opts.DialTimeout = left
			}
		}
		d, err := imap.Dial(cfg.Server.Host, cfg.Server.GetPort(), opts)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}

// login authenticates s as acct, using XOAUTH2 when a token is set.
func login(s Session, acct Account) error {
	if acct.OAuth2Token != "" {
		return s.Authenticate(acct.Username, acct.OAuth2Token)
	}
	return s.Login(acct.Username, acct.Password)
}
