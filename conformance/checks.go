package conformance

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	imap "github.com/BrianLeishman/go-imap-conform"
)

// CheckGreetingUIDPLUS requires the greeting's response code to list
// UIDPLUS as a whole word.
func CheckGreetingUIDPLUS(code *imap.ResponseCode) error {
	if code == nil {
		return &Violation{
			Check:       RuleGreetingUIDPLUS,
			Expected:    "UIDPLUS",
			Observed:    "no response code",
			Description: "greeting carries no capability list",
		}
	}
	for _, w := range strings.Fields(code.Data) {
		if strings.EqualFold(w, "UIDPLUS") {
			return nil
		}
	}
	return &Violation{
		Check:       RuleGreetingUIDPLUS,
		Expected:    "UIDPLUS",
		Observed:    code.String(),
		Description: "greeting does not advertise UIDPLUS",
	}
}

// CheckAppendUID holds an APPEND result against the state captured before
// the APPEND. The assigned UID must not precede the captured UIDNEXT.
func CheckAppendUID(state *imap.MailboxState, code imap.ExtensionCode) error {
	au, ok := code.(*imap.AppendUID)
	if !ok {
		return &Violation{
			Check:       RuleAppendUIDContinuity,
			Expected:    imap.CodeAppendUID,
			Observed:    codeName(code),
			Description: "APPEND completed without APPENDUID",
		}
	}
	if au.UIDValidity != state.UIDValidity {
		return &Violation{
			Check:       RuleAppendUIDContinuity,
			Expected:    state.UIDValidity,
			Observed:    au.UIDValidity,
			Description: fmt.Sprintf("APPENDUID validity differs from UIDVALIDITY of %q", state.Name),
		}
	}
	if au.UID < state.UIDNext {
		return &Violation{
			Check:       RuleAppendUIDContinuity,
			Expected:    fmt.Sprintf(">= %d", state.UIDNext),
			Observed:    au.UID,
			Description: fmt.Sprintf("appended UID precedes UIDNEXT of %q", state.Name),
		}
	}
	return nil
}

// CheckCopyUIDContinuity holds a COPY result against the target mailbox
// state captured before the copy.
func CheckCopyUIDContinuity(target *imap.MailboxState, code imap.ExtensionCode) error {
	cu, ok := code.(*imap.CopyUID)
	if !ok {
		return &Violation{
			Check:       RuleCopyUIDContinuity,
			Expected:    imap.CodeCopyUID,
			Observed:    codeName(code),
			Description: "UID COPY completed without COPYUID",
		}
	}
	if cu.UIDValidity != target.UIDValidity {
		return &Violation{
			Check:       RuleCopyUIDContinuity,
			Expected:    target.UIDValidity,
			Observed:    cu.UIDValidity,
			Description: fmt.Sprintf("COPYUID validity differs from UIDVALIDITY of %q", target.Name),
		}
	}
	low, ok := cu.DestUIDs.Min()
	if !ok {
		return fmt.Errorf("COPYUID destination %s: %w", cu.DestUIDs, imap.ErrUnboundedWildcard)
	}
	if low < target.UIDNext {
		return &Violation{
			Check:       RuleCopyUIDContinuity,
			Expected:    fmt.Sprintf(">= %d", target.UIDNext),
			Observed:    cu.DestUIDs.String(),
			Description: fmt.Sprintf("destination UID %d precedes UIDNEXT of %q", low, target.Name),
		}
	}
	return nil
}

// CheckCopyUIDSource requires the COPYUID source set to name exactly the
// UIDs that were sent, in any order.
func CheckCopyUIDSource(sent imap.UIDSet, code imap.ExtensionCode) error {
	cu, ok := code.(*imap.CopyUID)
	if !ok {
		return &Violation{
			Check:       RuleCopyUIDSource,
			Expected:    imap.CodeCopyUID,
			Observed:    codeName(code),
			Description: "UID COPY completed without COPYUID",
		}
	}
	if !cu.SourceUIDs.Equal(sent) {
		return &Violation{
			Check:       RuleCopyUIDSource,
			Expected:    sent.String(),
			Observed:    cu.SourceUIDs.String(),
			Description: "COPYUID source set differs from the copied set",
		}
	}
	src, err := cu.SourceUIDs.Count()
	if err != nil {
		return err
	}
	dst, err := cu.DestUIDs.Count()
	if err != nil {
		return err
	}
	if src != dst {
		return &Violation{
			Check:       RuleCopyUIDSource,
			Expected:    src,
			Observed:    dst,
			Description: "COPYUID destination count differs from source count",
		}
	}
	return nil
}

// CheckCopyUIDPairing requires each destination message to carry the
// subject of the source message it is paired with.
func CheckCopyUIDPairing(pairs map[uint32]uint32, srcSubjects, dstSubjects map[uint32]string) error {
	srcs := make([]uint32, 0, len(pairs))
	for src := range pairs {
		srcs = append(srcs, src)
	}
	slices.Sort(srcs)
	for _, src := range srcs {
		dst := pairs[src]
		want, ok := srcSubjects[src]
		if !ok {
			continue
		}
		got, ok := dstSubjects[dst]
		if !ok {
			return &Violation{
				Check:       RuleCopyUIDPairing,
				Expected:    want,
				Observed:    "no message",
				Description: fmt.Sprintf("destination UID %d for source %d does not exist", dst, src),
			}
		}
		if got != want {
			return &Violation{
				Check:       RuleCopyUIDPairing,
				Expected:    want,
				Observed:    got,
				Description: fmt.Sprintf("destination UID %d is not a copy of source %d", dst, src),
			}
		}
	}
	return nil
}

// CheckFlagPresent requires flags[uid] to hold flag. check names the rule
// being verified.
func CheckFlagPresent(check, flag string, uid uint32, flags map[uint32]imap.FlagSet) error {
	fs, ok := flags[uid]
	if !ok {
		return &Violation{
			Check:       check,
			Expected:    flag,
			Observed:    "no message",
			Description: fmt.Sprintf("FETCH returned no flags for UID %d", uid),
		}
	}
	if !fs.Has(flag) {
		return &Violation{
			Check:       check,
			Expected:    flag,
			Observed:    fs.String(),
			Description: fmt.Sprintf("UID %d lacks %s", uid, flag),
		}
	}
	return nil
}

// CheckStoreRejected requires err, the result of a STORE removing flag, to
// be a refusal. Errors other than a refusal are returned unchanged.
func CheckStoreRejected(flag string, err error) error {
	switch {
	case err == nil:
		return &Violation{
			Check:       RuleMDNSentImmutable,
			Expected:    "NO",
			Observed:    "OK",
			Description: fmt.Sprintf("server accepted removal of %s", flag),
		}
	case errors.Is(err, imap.ErrRejectedStore):
		return nil
	}
	return err
}

// CheckFlagsUnchanged requires a refused STORE to leave every flag of uid
// as it was, not only the one the STORE tried to remove.
func CheckFlagsUnchanged(uid uint32, before, after imap.FlagSet) error {
	if before.Equal(after) {
		return nil
	}
	return &Violation{
		Check:       RuleMDNSentImmutable,
		Expected:    before.String(),
		Observed:    after.String(),
		Description: fmt.Sprintf("refused STORE changed the flags of UID %d", uid),
	}
}

// CheckSearchResult requires got to hold exactly the UIDs in want. When
// scope is not nil, UIDs outside it are ignored, which lets scenarios share
// a folder with foreign messages.
func CheckSearchResult(keys string, want, got, scope imap.UIDSet) error {
	gotUIDs, err := got.Expand()
	if err != nil {
		return err
	}
	if scope != nil {
		kept := gotUIDs[:0]
		for _, uid := range gotUIDs {
			if scope.Contains(uid) {
				kept = append(kept, uid)
			}
		}
		gotUIDs = kept
	}
	wantUIDs, err := want.Expand()
	if err != nil {
		return err
	}
	if !imap.SameUIDs(wantUIDs, gotUIDs) {
		return &Violation{
			Check:       RuleMDNSentSearch,
			Expected:    imap.UIDSetNum(wantUIDs...).String(),
			Observed:    imap.UIDSetNum(gotUIDs...).String(),
			Description: fmt.Sprintf("SEARCH %s returned the wrong messages", keys),
		}
	}
	return nil
}

// CheckPermanentFlags requires the PERMANENTFLAGS code of a freshly
// selected mailbox to list flag.
func CheckPermanentFlags(state *imap.MailboxState, flag string) error {
	if !state.HasPermanentFlags {
		return &Violation{
			Check:       RulePermanentFlags,
			Expected:    flag,
			Observed:    "no PERMANENTFLAGS",
			Description: fmt.Sprintf("SELECT %q sent no PERMANENTFLAGS code", state.Name),
		}
	}
	if !state.PermanentFlags.Has(flag) {
		return &Violation{
			Check:       RulePermanentFlags,
			Expected:    flag,
			Observed:    state.PermanentFlags.String(),
			Description: fmt.Sprintf("PERMANENTFLAGS of %q lacks %s", state.Name, flag),
		}
	}
	return nil
}

func codeName(code imap.ExtensionCode) string {
	if code == nil || code.CodeName() == "" {
		return "no response code"
	}
	return code.CodeName()
}
