package conformance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	imap "github.com/BrianLeishman/go-imap-conform"
)

var errPhase = errors.New("phase out of order")

// Env is what a running scenario sees: its session, the configuration and
// helpers that keep the phase trail. An Env is used by one goroutine.
type Env struct {
	Session Session
	Config  *Config
	Log     imap.Logger

	ctx     context.Context
	name    string
	id      string
	dial    DialFunc
	trail   Trail
	folders []string
	extra   []Session
}

// Context is cancelled when the scenario times out or the run is aborted.
func (e *Env) Context() context.Context {
	return e.ctx
}

// Trail returns the phases entered so far.
func (e *Env) Trail() Trail {
	return e.trail
}

// Account returns the account the session logged in with.
func (e *Env) Account() Account {
	return e.Config.Accounts[0]
}

// Enter moves the scenario to phase p.
func (e *Env) Enter(p Phase) error {
	if err := e.ctx.Err(); err != nil {
		return err
	}
	if len(e.trail) > 0 && !canEnter(e.trail.Last(), p) {
		return fmt.Errorf("%w: %s after %s", errPhase, p, e.trail.Last())
	}
	e.trail = append(e.trail, p)
	return nil
}

// Verified enters ResponseVerified when err is nil and returns err
// otherwise. Verifying twice in a row stays in ResponseVerified.
func (e *Env) Verified(err error) error {
	if err != nil {
		return err
	}
	if e.trail.Last() == ResponseVerified {
		return nil
	}
	return e.Enter(ResponseVerified)
}

// Folder creates a mailbox private to this scenario run and returns its
// name. The mailbox is deleted when the scenario ends.
func (e *Env) Folder(label string) (string, error) {
	name := fmt.Sprintf("%s-%s-%s", e.Config.FolderPrefix, e.name, e.id)
	if label != "" {
		name += "-" + label
	}
	if err := e.Session.Create(name); err != nil {
		return "", fmt.Errorf("creating %q: %w", name, err)
	}
	e.folders = append(e.folders, name)
	return name, nil
}

// Select opens folder and returns its fresh state.
func (e *Env) Select(folder string) (*imap.MailboxState, error) {
	if err := e.Enter(MailboxSelected); err != nil {
		return nil, err
	}
	return e.Session.Select(folder)
}

// Append stores a generated message with the given subject and flags in
// folder.
func (e *Env) Append(folder, subject string, flags ...string) (imap.ExtensionCode, error) {
	msg, err := imap.Message{
		From:    "conform@" + e.Config.Server.Host,
		To:      e.recipient(),
		Subject: subject,
		Body:    "Generated by imapconform for " + e.name + ".\r\n",
	}.Bytes()
	if err != nil {
		return nil, err
	}
	if err = e.Enter(OperationIssued); err != nil {
		return nil, err
	}
	return e.Session.Append(folder, msg, flags, time.Now())
}

// Copy runs UID COPY of set into dest.
func (e *Env) Copy(set imap.UIDSet, dest string) (imap.ExtensionCode, error) {
	if err := e.Enter(OperationIssued); err != nil {
		return nil, err
	}
	return e.Session.UIDCopy(set, dest)
}

// Store runs UID STORE on set.
func (e *Env) Store(set imap.UIDSet, mode imap.StoreMode, flags ...string) error {
	if err := e.Enter(OperationIssued); err != nil {
		return err
	}
	return e.Session.UIDStore(set, mode, flags)
}

// Search runs UID SEARCH.
func (e *Env) Search(keys string) (imap.UIDSet, error) {
	if err := e.Enter(OperationIssued); err != nil {
		return nil, err
	}
	return e.Session.UIDSearch(keys)
}

// Subject returns a subject unique to this run.
func (e *Env) Subject(n int) string {
	return fmt.Sprintf("%s %s #%d", e.name, e.id, n)
}

// Dial opens and logs in an additional session for acct. It is logged out
// when the scenario ends.
func (e *Env) Dial(acct Account) (Session, error) {
	s, err := e.dial(e.ctx)
	if err != nil {
		return nil, err
	}
	e.extra = append(e.extra, s)
	stop := context.AfterFunc(e.ctx, s.Interrupt)
	defer stop()
	if err = login(s, acct); err != nil {
		return nil, err
	}
	return s, nil
}

func (e *Env) recipient() string {
	if u := e.Account().Username; strings.Contains(u, "@") {
		return u
	}
	return e.Account().Username + "@" + e.Config.Server.Host
}

// cleanup deletes the scenario's folders and logs out every session.
// Failures are logged and dropped.
func (e *Env) cleanup() {
	if len(e.folders) > 0 {
		if err := e.Session.CloseMailbox(); err != nil {
			e.Log.Debug("close before cleanup failed", "error", err)
		}
		for _, f := range e.folders {
			if err := e.Session.Delete(f); err != nil {
				e.Log.Warn("folder cleanup failed", "folder", f, "error", err)
			}
		}
	}
	for _, s := range append(e.extra, e.Session) {
		if err := s.Logout(); err != nil {
			e.Log.Warn("logout failed", "error", err)
		}
	}
	e.trail = append(e.trail, LoggedOut)
}
