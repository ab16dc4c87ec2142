package imap

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MailboxState is what SELECT or EXAMINE reported about a mailbox.
type MailboxState struct {
	Name           string
	UIDValidity    uint32
	UIDNext        uint32
	Exists         int
	Flags          FlagSet
	PermanentFlags FlagSet
	// HasPermanentFlags is false when the server sent no PERMANENTFLAGS
	// code, which means every flag in Flags is permanent.
	HasPermanentFlags bool
}

// GetFolders retrieves the list of available folders
func (d *Dialer) GetFolders() (folders []string, err error) {
	folders = make([]string, 0)
	_, err = d.Exec(`LIST "" "*"`, false, d.opts.ReadRetries, func(line []byte) (err error) {
		line = dropNl(line)
		if !bytes.HasPrefix(line, []byte("* LIST ")) {
			return nil
		}
		if b := bytes.IndexByte(line, '\n'); b != -1 {
			folders = append(folders, string(line[b+1:]))
			return nil
		}
		i := len(line) - 1
		quoted := line[i] == '"'
		delim := byte(' ')
		if quoted {
			delim = '"'
			i--
		}
		end := i
		for i > 0 {
			if line[i] == delim {
				if !quoted || line[i-1] != '\\' {
					break
				}
			}
			i--
		}
		folders = append(folders, RemoveSlashes.Replace(string(line[i+1:end+1])))
		return nil
	})
	if err != nil {
		return nil, err
	}

	return folders, nil
}

// Examine selects a folder in read-only mode
func (d *Dialer) Examine(folder string) (*MailboxState, error) {
	return d.open("EXAMINE", folder, d.opts.ReadRetries)
}

// Select selects a folder in read-write mode
func (d *Dialer) Select(folder string) (*MailboxState, error) {
	return d.open("SELECT", folder, d.opts.ReadRetries)
}

func (d *Dialer) open(verb, folder string, retries int) (*MailboxState, error) {
	// registers describe the previous mailbox until this one answers
	d.registers = nil
	_, err := d.Exec(verb+` "`+AddSlashes.Replace(folder)+`"`, false, retries, nil)
	if err != nil {
		d.Folder = ""
		return nil, err
	}
	d.Folder = folder
	d.ReadOnly = verb == "EXAMINE"
	return d.mailboxState(folder)
}

// mailboxState builds the state of folder from the response registers.
func (d *Dialer) mailboxState(folder string) (*MailboxState, error) {
	st := &MailboxState{Name: folder, Flags: NewFlagSet(), PermanentFlags: NewFlagSet()}

	v, ok := d.LastResponse(CodeUIDValidity)
	if !ok {
		return nil, fmt.Errorf("%w: no UIDVALIDITY for %q", ErrMalformedResponseCode, folder)
	}
	n, err := parseNumber(v)
	if err != nil {
		return nil, fmt.Errorf("%w: UIDVALIDITY %s", ErrMalformedResponseCode, err)
	}
	st.UIDValidity = n

	if v, ok = d.LastResponse(CodeUIDNext); !ok {
		return nil, fmt.Errorf("%w: no UIDNEXT for %q", ErrMalformedResponseCode, folder)
	}
	if st.UIDNext, err = parseNumber(v); err != nil {
		return nil, fmt.Errorf("%w: UIDNEXT %s", ErrMalformedResponseCode, err)
	}
	if v, ok = d.LastResponse("EXISTS"); ok {
		st.Exists, _ = strconv.Atoi(v)
	}
	if v, ok = d.LastResponse("FLAGS"); ok {
		st.Flags = parseFlagList(v)
	}
	if v, ok = d.LastResponse(CodePermanentFlags); ok {
		st.PermanentFlags = parseFlagList(v)
		st.HasPermanentFlags = true
	}
	return st, nil
}

// CloseMailbox sends CLOSE, leaving the selected state.
func (d *Dialer) CloseMailbox() error {
	_, err := d.Exec("CLOSE", false, 0, nil)
	if err != nil {
		return err
	}
	d.Folder = ""
	return nil
}

// Create creates a folder. An existing folder is not an error.
func (d *Dialer) Create(folder string) error {
	_, err := d.Exec(`CREATE "`+AddSlashes.Replace(folder)+`"`, false, 0, nil)
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code != nil && strings.EqualFold(cmdErr.Code.Name, "ALREADYEXISTS") {
		return nil
	}
	return err
}

// Delete removes a folder.
func (d *Dialer) Delete(folder string) error {
	_, err := d.Exec(`DELETE "`+AddSlashes.Replace(folder)+`"`, false, 0, nil)
	return err
}
