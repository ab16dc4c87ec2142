package imap

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/jhillyerd/enmime/v2"
)

// FetchAttrs holds the data items of one FETCH response, keyed by upper
// case item name (UID, FLAGS, BODY[HEADER], ...).
type FetchAttrs map[string]*Token

// Flags returns the FLAGS item as a set. ok is false when FLAGS was not
// fetched.
func (a FetchAttrs) Flags() (flags FlagSet, ok bool) {
	t, ok := a["FLAGS"]
	if !ok || t.Type != TContainer {
		return nil, false
	}
	flags = NewFlagSet()
	for _, f := range t.Tokens {
		flags.Add(f.Str)
	}
	return flags, true
}

// Message is a test message to append.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
	Date    time.Time
}

// Bytes renders the message as RFC 5322 text with CRLF line endings.
func (m Message) Bytes() ([]byte, error) {
	date := m.Date
	if date.IsZero() {
		date = time.Now()
	}
	part, err := enmime.Builder().
		From("", m.From).
		To("", m.To).
		Subject(m.Subject).
		Date(date).
		Text([]byte(m.Body)).
		Build()
	if err != nil {
		return nil, fmt.Errorf("building message: %w", err)
	}
	var buf bytes.Buffer
	if err = part.Encode(&buf); err != nil {
		return nil, fmt.Errorf("encoding message: %w", err)
	}
	return buf.Bytes(), nil
}

// Append stores msg in folder and returns the decoded response code of
// the tagged OK, normally APPENDUID. A completion without a code comes back
// as an *OtherCode with an empty name.
func (d *Dialer) Append(folder string, msg []byte, flags []string, date time.Time) (ExtensionCode, error) {
	cmd := `APPEND "` + AddSlashes.Replace(folder) + `"`
	if len(flags) > 0 {
		cmd += " (" + strings.Join(flags, " ") + ")"
	}
	if !date.IsZero() {
		cmd += ` "` + date.Format(TimeFormat) + `"`
	}
	d.debugLog("appending message", "folder", folder, "size", humanize.Bytes(uint64(len(msg))), "flags", flags)

	_, done, err := d.exec(cmd, msg, false, 0, nil)
	if err != nil {
		return nil, err
	}
	return decodeCompletion(done)
}

// UIDCopy copies the messages in set to dest and returns the decoded
// response code, normally COPYUID.
func (d *Dialer) UIDCopy(set UIDSet, dest string) (ExtensionCode, error) {
	_, done, err := d.exec(`UID COPY `+set.String()+` "`+AddSlashes.Replace(dest)+`"`, nil, false, 0, nil)
	if err != nil {
		return nil, err
	}
	return decodeCompletion(done)
}

func decodeCompletion(done *completion) (ExtensionCode, error) {
	if done.Code == nil {
		return &OtherCode{}, nil
	}
	return DecodeResponseCode(*done.Code)
}

// UIDStore changes the flags of the messages in set. A NO completion wraps
// ErrRejectedStore. A BAD completion is returned as a plain *CommandError.
func (d *Dialer) UIDStore(set UIDSet, mode StoreMode, flags []string) error {
	cmd := fmt.Sprintf("UID STORE %s %s (%s)", set, mode.item(), strings.Join(flags, " "))
	_, err := d.Exec(cmd, false, 0, nil)
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) && cmdErr.Status == "NO" {
		return fmt.Errorf("%w: %w", ErrRejectedStore, err)
	}
	return err
}

// UIDSearch runs UID SEARCH with the given search keys.
func (d *Dialer) UIDSearch(keys string) (UIDSet, error) {
	r, err := d.Exec(`UID SEARCH `+keys, true, d.opts.ReadRetries, nil)
	if err != nil {
		return nil, err
	}
	uids, err := parseUIDSearchResponse(r)
	if err != nil {
		return nil, err
	}
	return UIDSetNum(uids...), nil
}

// UIDFetch fetches items, a FETCH attribute list such as "(FLAGS)", for
// the messages in set. The result is keyed by UID.
func (d *Dialer) UIDFetch(set UIDSet, items string) (map[uint32]FetchAttrs, error) {
	r, err := d.Exec("UID FETCH "+set.String()+" "+items, true, d.opts.ReadRetries, nil)
	if err != nil {
		return nil, err
	}
	records, err := d.ParseFetchResponse(r)
	if err != nil {
		return nil, err
	}

	msgs := make(map[uint32]FetchAttrs, len(records))
	for _, tks := range records {
		for len(tks) == 1 && tks[0].Type == TContainer {
			tks = tks[0].Tokens
		}
		attrs := make(FetchAttrs, len(tks)/2)
		for i := 0; i+1 < len(tks); i += 2 {
			if err = d.CheckType(tks[i], []TType{TLiteral}, tks, "for item name %d", i/2); err != nil {
				return nil, err
			}
			attrs[strings.ToUpper(tks[i].Str)] = tks[i+1]
		}
		uid, ok := attrs["UID"]
		if !ok {
			// unsolicited FETCH for a flag change elsewhere
			continue
		}
		if err = d.CheckType(uid, []TType{TNumber}, tks, "after UID"); err != nil {
			return nil, err
		}
		msgs[uint32(uid.Num)] = attrs
	}
	return msgs, nil
}

// FetchFlags returns the flags of every message in set.
func (d *Dialer) FetchFlags(set UIDSet) (map[uint32]FlagSet, error) {
	msgs, err := d.UIDFetch(set, "(UID FLAGS)")
	if err != nil {
		return nil, err
	}
	flags := make(map[uint32]FlagSet, len(msgs))
	for uid, attrs := range msgs {
		if f, ok := attrs.Flags(); ok {
			flags[uid] = f
		}
	}
	return flags, nil
}

// FetchSubjects returns the Subject header of every message in set.
func (d *Dialer) FetchSubjects(set UIDSet) (map[uint32]string, error) {
	msgs, err := d.UIDFetch(set, "(UID BODY.PEEK[HEADER])")
	if err != nil {
		return nil, err
	}
	subjects := make(map[uint32]string, len(msgs))
	for uid, attrs := range msgs {
		hdr, ok := attrs["BODY[HEADER]"]
		if !ok {
			continue
		}
		env, err := enmime.ReadEnvelope(strings.NewReader(hdr.Str))
		if err != nil {
			d.log().Warn("message header could not be parsed, skipping", "uid", uid, "error", err)
			continue
		}
		subjects[uid] = env.GetHeader("Subject")
	}
	return subjects, nil
}
