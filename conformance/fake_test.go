package conformance

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jhillyerd/enmime/v2"

	imap "github.com/BrianLeishman/go-imap-conform"
)

type fakeMessage struct {
	uid     uint32
	subject string
	flags   imap.FlagSet
}

type fakeMailbox struct {
	validity uint32
	next     uint32
	msgs     []*fakeMessage
}

func (b *fakeMailbox) find(uid uint32) *fakeMessage {
	for _, m := range b.msgs {
		if m.uid == uid {
			return m
		}
	}
	return nil
}

// fakeServer is an in-memory mailbox store shared by the sessions it
// hands out. The zero knobs describe a conforming server.
type fakeServer struct {
	mu           sync.Mutex
	boxes        map[string]*fakeMailbox
	nextValidity uint32

	capability       string
	permanentFlags   []string
	noPermanentFlags bool
	noUIDPLUS        bool
	appendSkew       uint32
	copyValiditySkew uint32
	reverseCopy      bool
	dropFlagsOnCopy  bool
	mutableMDNSent   bool
	rejectDropsSeen  bool
	badStore         bool
	searchAll        bool
	failLogin        bool
	dialErr          error
	stall            string

	dials    int
	logouts  int
	logins   []string
	rejected int
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		boxes:          map[string]*fakeMailbox{"INBOX": {validity: 1, next: 1}},
		nextValidity:   7,
		capability:     "IMAP4rev1 UIDPLUS IDLE",
		permanentFlags: []string{imap.FlagSeen, imap.FlagDeleted, imap.FlagMDNSent},
	}
}

func (srv *fakeServer) dial(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.dialErr != nil {
		return nil, srv.dialErr
	}
	srv.dials++
	return &fakeSession{srv: srv, interrupt: make(chan struct{})}, nil
}

// folders returns the mailbox names other than INBOX.
func (srv *fakeServer) folders() []string {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	var names []string
	for name := range srv.boxes {
		if name != "INBOX" {
			names = append(names, name)
		}
	}
	return names
}

type fakeSession struct {
	srv       *fakeServer
	selected  string
	interrupt chan struct{}
	once      sync.Once
}

var _ Session = (*fakeSession)(nil)

// enter locks the server, first blocking until Interrupt when cmd is the
// stalled command.
func (s *fakeSession) enter(cmd string) error {
	s.srv.mu.Lock()
	stall := s.srv.stall == cmd
	s.srv.mu.Unlock()
	if stall {
		<-s.interrupt
		return fmt.Errorf("%w: %s interrupted", imap.ErrTimeout, cmd)
	}
	s.srv.mu.Lock()
	return nil
}

func (s *fakeSession) box() (*fakeMailbox, error) {
	b, ok := s.srv.boxes[s.selected]
	if !ok {
		return nil, &imap.CommandError{Command: "UID", Status: "BAD", Text: "no mailbox selected"}
	}
	return b, nil
}

func (s *fakeSession) Greeting() imap.Greeting {
	g := imap.Greeting{Status: "OK", Text: "fake ready"}
	if s.srv.capability != "" {
		g.Code = &imap.ResponseCode{Name: imap.CodeCapability, Data: s.srv.capability}
	}
	return g
}

func (s *fakeSession) Login(username, password string) error {
	if err := s.enter("Login"); err != nil {
		return err
	}
	defer s.srv.mu.Unlock()
	if s.srv.failLogin {
		return fmt.Errorf("%w: LOGIN %s", imap.ErrAuthentication, username)
	}
	s.srv.logins = append(s.srv.logins, username)
	return nil
}

func (s *fakeSession) Authenticate(username, accessToken string) error {
	if err := s.enter("Authenticate"); err != nil {
		return err
	}
	defer s.srv.mu.Unlock()
	if s.srv.failLogin {
		return fmt.Errorf("%w: XOAUTH2 %s", imap.ErrAuthentication, username)
	}
	s.srv.logins = append(s.srv.logins, "xoauth2:"+username)
	return nil
}

func (s *fakeSession) Select(folder string) (*imap.MailboxState, error) {
	if err := s.enter("Select"); err != nil {
		return nil, err
	}
	defer s.srv.mu.Unlock()
	b, ok := s.srv.boxes[folder]
	if !ok {
		return nil, &imap.CommandError{Command: "SELECT", Status: "NO", Text: "no such mailbox"}
	}
	s.selected = folder
	return &imap.MailboxState{
		Name:              folder,
		UIDValidity:       b.validity,
		UIDNext:           b.next,
		Exists:            len(b.msgs),
		Flags:             imap.NewFlagSet(s.srv.permanentFlags...),
		PermanentFlags:    imap.NewFlagSet(s.srv.permanentFlags...),
		HasPermanentFlags: !s.srv.noPermanentFlags,
	}, nil
}

func (s *fakeSession) LastResponse(string) (string, bool) { return "", false }

func (s *fakeSession) Create(folder string) error {
	if err := s.enter("Create"); err != nil {
		return err
	}
	defer s.srv.mu.Unlock()
	if _, ok := s.srv.boxes[folder]; !ok {
		s.srv.boxes[folder] = &fakeMailbox{validity: s.srv.nextValidity, next: 101}
		s.srv.nextValidity++
	}
	return nil
}

func (s *fakeSession) Delete(folder string) error {
	if err := s.enter("Delete"); err != nil {
		return err
	}
	defer s.srv.mu.Unlock()
	delete(s.srv.boxes, folder)
	return nil
}

func (s *fakeSession) Append(folder string, msg []byte, flags []string, date time.Time) (imap.ExtensionCode, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(msg))
	if err != nil {
		return nil, err
	}
	if err = s.enter("Append"); err != nil {
		return nil, err
	}
	defer s.srv.mu.Unlock()
	b, ok := s.srv.boxes[folder]
	if !ok {
		return nil, &imap.CommandError{Command: "APPEND", Status: "NO", Text: "[TRYCREATE] no such mailbox"}
	}
	m := &fakeMessage{uid: b.next, subject: env.GetHeader("Subject"), flags: imap.NewFlagSet(flags...)}
	b.msgs = append(b.msgs, m)
	b.next++
	if s.srv.noUIDPLUS {
		return &imap.OtherCode{}, nil
	}
	return &imap.AppendUID{UIDValidity: b.validity, UID: m.uid - s.srv.appendSkew}, nil
}

func (s *fakeSession) UIDCopy(set imap.UIDSet, dest string) (imap.ExtensionCode, error) {
	if err := s.enter("UIDCopy"); err != nil {
		return nil, err
	}
	defer s.srv.mu.Unlock()
	src, err := s.box()
	if err != nil {
		return nil, err
	}
	dst, ok := s.srv.boxes[dest]
	if !ok {
		return nil, &imap.CommandError{Command: "UID COPY", Status: "NO", Text: "[TRYCREATE] no such mailbox"}
	}
	uids, err := set.ExpandMax(src.next - 1)
	if err != nil {
		return nil, err
	}
	var from, to []uint32
	for _, uid := range uids {
		m := src.find(uid)
		if m == nil {
			continue
		}
		c := &fakeMessage{uid: dst.next, subject: m.subject, flags: imap.NewFlagSet()}
		if !s.srv.dropFlagsOnCopy {
			for _, f := range m.flags.Slice() {
				c.flags.Add(f)
			}
		}
		dst.msgs = append(dst.msgs, c)
		dst.next++
		from = append(from, uid)
		to = append(to, c.uid)
	}
	if s.srv.noUIDPLUS {
		return &imap.OtherCode{}, nil
	}
	if s.srv.reverseCopy {
		slices.Reverse(to)
	}
	return &imap.CopyUID{
		UIDValidity: dst.validity + s.srv.copyValiditySkew,
		SourceUIDs:  imap.UIDSetNum(from...),
		DestUIDs:    imap.UIDSetNum(to...),
	}, nil
}

func (s *fakeSession) UIDStore(set imap.UIDSet, mode imap.StoreMode, flags []string) error {
	if err := s.enter("UIDStore"); err != nil {
		return err
	}
	defer s.srv.mu.Unlock()
	b, err := s.box()
	if err != nil {
		return err
	}
	uids, err := set.ExpandMax(b.next - 1)
	if err != nil {
		return err
	}
	if s.srv.badStore {
		return &imap.CommandError{Command: "UID STORE", Status: "BAD", Text: "Unknown store item"}
	}
	if mode == imap.StoreRemove && !s.srv.mutableMDNSent && slices.ContainsFunc(flags, func(f string) bool {
		return strings.EqualFold(f, imap.FlagMDNSent)
	}) {
		s.srv.rejected++
		if s.srv.rejectDropsSeen {
			for _, uid := range uids {
				if m := b.find(uid); m != nil {
					delete(m.flags, strings.ToLower(imap.FlagSeen))
				}
			}
		}
		return fmt.Errorf("%w: %w", imap.ErrRejectedStore,
			&imap.CommandError{Command: "UID STORE", Status: "NO", Text: "[CANNOT] $MDNSent cannot be removed"})
	}
	for _, uid := range uids {
		m := b.find(uid)
		if m == nil {
			continue
		}
		switch mode {
		case imap.StoreReplace:
			m.flags = imap.NewFlagSet(flags...)
		case imap.StoreAdd:
			for _, f := range flags {
				m.flags.Add(f)
			}
		case imap.StoreRemove:
			for _, f := range flags {
				delete(m.flags, strings.ToLower(f))
			}
		}
	}
	return nil
}

func (s *fakeSession) UIDSearch(keys string) (imap.UIDSet, error) {
	if err := s.enter("UIDSearch"); err != nil {
		return nil, err
	}
	defer s.srv.mu.Unlock()
	b, err := s.box()
	if err != nil {
		return nil, err
	}
	op, flag, _ := strings.Cut(keys, " ")
	var uids []uint32
	for _, m := range b.msgs {
		switch {
		case s.srv.searchAll,
			strings.EqualFold(op, "KEYWORD") && m.flags.Has(flag),
			strings.EqualFold(op, "UNKEYWORD") && !m.flags.Has(flag):
			uids = append(uids, m.uid)
		}
	}
	return imap.UIDSetNum(uids...), nil
}

func (s *fakeSession) UIDFetch(imap.UIDSet, string) (map[uint32]imap.FetchAttrs, error) {
	return nil, errors.New("UID FETCH of raw items is not modelled")
}

func (s *fakeSession) FetchFlags(set imap.UIDSet) (map[uint32]imap.FlagSet, error) {
	if err := s.enter("FetchFlags"); err != nil {
		return nil, err
	}
	defer s.srv.mu.Unlock()
	b, err := s.box()
	if err != nil {
		return nil, err
	}
	out := make(map[uint32]imap.FlagSet)
	uids, err := set.ExpandMax(b.next - 1)
	if err != nil {
		return nil, err
	}
	for _, uid := range uids {
		if m := b.find(uid); m != nil {
			out[uid] = imap.NewFlagSet(m.flags.Slice()...)
		}
	}
	return out, nil
}

func (s *fakeSession) FetchSubjects(set imap.UIDSet) (map[uint32]string, error) {
	if err := s.enter("FetchSubjects"); err != nil {
		return nil, err
	}
	defer s.srv.mu.Unlock()
	b, err := s.box()
	if err != nil {
		return nil, err
	}
	out := make(map[uint32]string)
	uids, err := set.ExpandMax(b.next - 1)
	if err != nil {
		return nil, err
	}
	for _, uid := range uids {
		if m := b.find(uid); m != nil {
			out[uid] = m.subject
		}
	}
	return out, nil
}

func (s *fakeSession) CloseMailbox() error {
	s.selected = ""
	return nil
}

func (s *fakeSession) Logout() error {
	s.srv.mu.Lock()
	defer s.srv.mu.Unlock()
	s.srv.logouts++
	return nil
}

func (s *fakeSession) Interrupt() {
	s.once.Do(func() { close(s.interrupt) })
}
