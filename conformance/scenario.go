package conformance

import (
	"fmt"

	imap "github.com/BrianLeishman/go-imap-conform"
)

// Scenario is one independent conformance test.
type Scenario struct {
	Name        string
	Description string
	// NoLogin hands Run a session that is connected but not logged in.
	NoLogin bool
	Run     func(e *Env) error
}

// copyBatch is how many messages copy-uid copies in one command.
const copyBatch = 3

// Scenarios returns the catalogue in run order.
func Scenarios() []Scenario {
	return []Scenario{
		{
			Name:        "greeting-uidplus",
			Description: "greeting advertises UIDPLUS",
			NoLogin:     true,
			Run:         greetingUIDPLUS,
		},
		{
			Name:        "permanentflags-mdnsent",
			Description: "PERMANENTFLAGS lists $MDNSent",
			Run:         permanentFlagsMDNSent,
		},
		{
			Name:        "append-uid",
			Description: "APPENDUID keeps UIDVALIDITY and never precedes UIDNEXT",
			Run:         appendUID,
		},
		{
			Name:        "copy-uid",
			Description: "COPYUID keeps the target's UIDVALIDITY and pairs source and destination UIDs by position",
			Run:         copyUID,
		},
		{
			Name:        "mdnsent-copy",
			Description: "$MDNSent survives UID COPY",
			Run:         mdnsentCopy,
		},
		{
			Name:        "mdnsent-immutable",
			Description: "$MDNSent cannot be removed once set",
			Run:         mdnsentImmutable,
		},
		{
			Name:        "mdnsent-search",
			Description: "KEYWORD and UNKEYWORD $MDNSent find exactly the right messages",
			Run:         mdnsentSearch,
		},
		{
			Name:        "logins",
			Description: "every configured account can log in and out",
			NoLogin:     true,
			Run:         logins,
		},
	}
}

// Lookup finds a scenario by name.
func Lookup(name string) (Scenario, bool) {
	for _, s := range Scenarios() {
		if s.Name == name {
			return s, true
		}
	}
	return Scenario{}, false
}

// Select returns the named scenarios in catalogue order, or all of them
// when names is empty.
func Select(names []string) ([]Scenario, error) {
	all := Scenarios()
	if len(names) == 0 {
		return all, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := Lookup(n); !ok {
			return nil, fmt.Errorf("unknown scenario %q", n)
		}
		want[n] = true
	}
	var out []Scenario
	for _, s := range all {
		if want[s.Name] {
			out = append(out, s)
		}
	}
	return out, nil
}

func greetingUIDPLUS(e *Env) error {
	return e.Verified(CheckGreetingUIDPLUS(e.Session.Greeting().Code))
}

func permanentFlagsMDNSent(e *Env) error {
	folder, err := e.Folder("")
	if err != nil {
		return err
	}
	st, err := e.Select(folder)
	if err != nil {
		return err
	}
	return e.Verified(CheckPermanentFlags(st, imap.FlagMDNSent))
}

func appendUID(e *Env) error {
	folder, err := e.Folder("")
	if err != nil {
		return err
	}
	var prev *imap.AppendUID
	for i := 1; i <= 2; i++ {
		st, err := e.Select(folder)
		if err != nil {
			return err
		}
		code, err := e.Append(folder, e.Subject(i))
		if err != nil {
			return err
		}
		if err = e.Verified(CheckAppendUID(st, code)); err != nil {
			return err
		}
		au := code.(*imap.AppendUID)
		if prev != nil && au.UID <= prev.UID {
			return &Violation{
				Check:       RuleAppendUIDContinuity,
				Expected:    fmt.Sprintf("> %d", prev.UID),
				Observed:    au.UID,
				Description: "second APPEND was not assigned a larger UID",
			}
		}
		prev = au
	}
	return nil
}

// appendAll appends one message per subject to the selected folder and
// returns the assigned UIDs in order.
func appendAll(e *Env, st *imap.MailboxState, subjects []string, flags ...string) ([]uint32, error) {
	uids := make([]uint32, 0, len(subjects))
	for _, subj := range subjects {
		code, err := e.Append(st.Name, subj, flags...)
		if err != nil {
			return nil, err
		}
		if err = e.Verified(CheckAppendUID(st, code)); err != nil {
			return nil, err
		}
		uids = append(uids, code.(*imap.AppendUID).UID)
	}
	return uids, nil
}

// copyInto copies set from the selected folder src to dst, checking
// COPYUID, and returns the decoded code with dst selected.
func copyInto(e *Env, src, dst string, set imap.UIDSet) (*imap.CopyUID, error) {
	target, err := e.Select(dst)
	if err != nil {
		return nil, err
	}
	if _, err = e.Select(src); err != nil {
		return nil, err
	}
	code, err := e.Copy(set, dst)
	if err != nil {
		return nil, err
	}
	if err = e.Verified(firstErr(
		CheckCopyUIDContinuity(target, code),
		CheckCopyUIDSource(set, code),
	)); err != nil {
		return nil, err
	}
	if _, err = e.Select(dst); err != nil {
		return nil, err
	}
	return code.(*imap.CopyUID), nil
}

func copyUID(e *Env) error {
	src, err := e.Folder("src")
	if err != nil {
		return err
	}
	dst, err := e.Folder("dst")
	if err != nil {
		return err
	}
	st, err := e.Select(src)
	if err != nil {
		return err
	}
	subjects := make([]string, copyBatch)
	for i := range subjects {
		subjects[i] = e.Subject(i + 1)
	}
	uids, err := appendAll(e, st, subjects)
	if err != nil {
		return err
	}
	set := imap.UIDSetNum(uids...)

	srcSubjects, err := e.Session.FetchSubjects(set)
	if err != nil {
		return err
	}
	cu, err := copyInto(e, src, dst, set)
	if err != nil {
		return err
	}
	pairs, err := cu.Pairs()
	if err != nil {
		return err
	}
	dstSubjects, err := e.Session.FetchSubjects(cu.DestUIDs)
	if err != nil {
		return err
	}
	return e.Verified(CheckCopyUIDPairing(pairs, srcSubjects, dstSubjects))
}

// copyFlagged appends a message flagged $MDNSent and \Seen to a fresh
// folder, copies it to a second one and returns the destination UID with
// the destination folder selected.
func copyFlagged(e *Env) (uint32, error) {
	src, err := e.Folder("src")
	if err != nil {
		return 0, err
	}
	dst, err := e.Folder("dst")
	if err != nil {
		return 0, err
	}
	st, err := e.Select(src)
	if err != nil {
		return 0, err
	}
	uids, err := appendAll(e, st, []string{e.Subject(1)}, imap.FlagMDNSent, imap.FlagSeen)
	if err != nil {
		return 0, err
	}
	cu, err := copyInto(e, src, dst, imap.UIDSetNum(uids...))
	if err != nil {
		return 0, err
	}
	pairs, err := cu.Pairs()
	if err != nil {
		return 0, err
	}
	return pairs[uids[0]], nil
}

func mdnsentCopy(e *Env) error {
	uid, err := copyFlagged(e)
	if err != nil {
		return err
	}
	flags, err := e.Session.FetchFlags(imap.UIDSetNum(uid))
	if err != nil {
		return err
	}
	return e.Verified(CheckFlagPresent(RuleMDNSentOnCopy, imap.FlagMDNSent, uid, flags))
}

func mdnsentImmutable(e *Env) error {
	uid, err := copyFlagged(e)
	if err != nil {
		return err
	}
	set := imap.UIDSetNum(uid)
	before, err := e.Session.FetchFlags(set)
	if err != nil {
		return err
	}
	err = e.Store(set, imap.StoreRemove, imap.FlagMDNSent)
	if err = e.Verified(CheckStoreRejected(imap.FlagMDNSent, err)); err != nil {
		return err
	}
	after, err := e.Session.FetchFlags(set)
	if err != nil {
		return err
	}
	if err = CheckFlagPresent(RuleMDNSentImmutable, imap.FlagMDNSent, uid, after); err != nil {
		return err
	}
	return e.Verified(CheckFlagsUnchanged(uid, before[uid], after[uid]))
}

func mdnsentSearch(e *Env) error {
	folder, err := e.Folder("")
	if err != nil {
		return err
	}
	st, err := e.Select(folder)
	if err != nil {
		return err
	}
	flagged, err := appendAll(e, st, []string{e.Subject(1)}, imap.FlagMDNSent)
	if err != nil {
		return err
	}
	plain, err := appendAll(e, st, []string{e.Subject(2)})
	if err != nil {
		return err
	}

	for _, q := range []struct {
		keys string
		want []uint32
	}{
		{"KEYWORD " + imap.FlagMDNSent, flagged},
		{"UNKEYWORD " + imap.FlagMDNSent, plain},
	} {
		got, err := e.Search(q.keys)
		if err != nil {
			return err
		}
		// the folder is private to this run, so nothing is out of scope
		if err = e.Verified(CheckSearchResult(q.keys, imap.UIDSetNum(q.want...), got, nil)); err != nil {
			return err
		}
	}
	return nil
}

func logins(e *Env) error {
	for i, acct := range e.Config.Accounts {
		if err := e.Enter(Authenticated); err != nil {
			return err
		}
		var err error
		if i == 0 {
			err = login(e.Session, acct)
		} else {
			_, err = e.Dial(acct)
		}
		if err != nil {
			return fmt.Errorf("account %s: %w", acct.Username, err)
		}
		if err = e.Verified(nil); err != nil {
			return err
		}
	}
	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
