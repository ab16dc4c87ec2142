package imap

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	retry "github.com/StirlingMarketingGroup/go-retry"
	"github.com/rs/xid"
)

var literalSuffix = regexp.MustCompile(`{\d+}$`)

// completion is the tagged status line ending a command.
type completion struct {
	Status string // OK, NO or BAD
	Code   *ResponseCode
	Text   string
}

// Exec executes an IMAP command with retry logic and response building.
// A NO or BAD completion is returned as *CommandError and is never retried.
func (d *Dialer) Exec(command string, buildResponse bool, retryCount int, processLine func(line []byte) error) (response string, err error) {
	response, _, err = d.exec(command, nil, buildResponse, retryCount, processLine)
	return response, err
}

// exec runs command, sending literal as a synchronizing literal after the
// command line when it is not nil.
func (d *Dialer) exec(command string, literal []byte, buildResponse bool, retryCount int, processLine func(line []byte) error) (string, *completion, error) {
	var resp strings.Builder
	var done *completion
	var failed error
	err := retry.Retry(func() (err error) {
		if failed != nil && d.interrupted.Load() {
			return &retry.PermFail{Err: failed}
		}
		if buildResponse {
			resp.Reset()
		}
		done, err = d.roundTrip(command, literal, func(line []byte) error {
			if processLine != nil {
				if err := processLine(line); err != nil {
					return err
				}
			}
			if buildResponse {
				resp.Write(line)
			}
			return nil
		})
		if err != nil && d.interrupted.Load() {
			_ = d.Close()
			return &retry.PermFail{Err: err}
		}
		failed = err
		return err
	}, retryCount, func(err error) error {
		d.log().Warn("command failed, closing connection", "error", err)
		_ = d.Close()
		return nil
	}, func() error {
		if d.interrupted.Load() {
			return nil
		}
		return d.Reconnect()
	})
	if err != nil {
		var bye *ByeParseError
		if !errors.As(err, &bye) {
			d.log().Error("command failed", "command", d.sanitize(command), "error", err)
		}
		return "", nil, wrapNetErr(err)
	}

	if done.Status != "OK" {
		return "", done, &CommandError{
			Command: firstWord(command),
			Status:  done.Status,
			Code:    done.Code,
			Text:    done.Text,
		}
	}
	return resp.String(), done, nil
}

// roundTrip writes one tagged command and reads until its completion.
func (d *Dialer) roundTrip(command string, literal []byte, handle func(line []byte) error) (*completion, error) {
	if !d.Connected {
		return nil, errors.New("not connected")
	}
	tag := []byte(strings.ToUpper(xid.New().String()))

	if d.opts.CommandTimeout != 0 {
		_ = d.conn.SetDeadline(time.Now().Add(d.opts.CommandTimeout))
	} else {
		_ = d.conn.SetDeadline(time.Time{})
	}

	c := fmt.Sprintf("%s %s", tag, command)
	if literal != nil {
		c += fmt.Sprintf(" {%d}", len(literal))
	}
	d.debugLog("sending command", "command", d.sanitize(c))

	if _, err := d.conn.Write([]byte(c + nl)); err != nil {
		return nil, err
	}

	if literal != nil {
		for {
			line, err := d.readLine()
			if err != nil {
				return nil, err
			}
			if bytes.HasPrefix(line, []byte("+")) {
				break
			}
			if done := d.tagged(tag, line); done != nil {
				return done, nil
			}
			if err = d.untagged(line, handle); err != nil {
				return nil, err
			}
		}
		d.debugLog("sending literal", "size", len(literal))
		if _, err := d.conn.Write(append(append([]byte{}, literal...), nl...)); err != nil {
			return nil, err
		}
	}

	for {
		line, err := d.readLine()
		if err != nil {
			if d.sawBye && (errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)) {
				return nil, &ByeParseError{Trailing: line, Err: err}
			}
			return nil, err
		}
		if done := d.tagged(tag, line); done != nil {
			return done, nil
		}
		if err = d.untagged(line, handle); err != nil {
			return nil, err
		}
	}
}

// tagged parses line as the completion of the command tagged tag, or
// returns nil when it is something else.
func (d *Dialer) tagged(tag, line []byte) *completion {
	taglen := len(tag)
	if len(line) < taglen+3 || !bytes.Equal(line[:taglen], tag) || line[taglen] != ' ' {
		return nil
	}
	d.traceResponse(line)
	rest := string(dropNl(line[taglen+1:]))
	status, text, _ := strings.Cut(rest, " ")
	done := &completion{Status: strings.ToUpper(status), Text: text}
	if code, ok := ParseResponseCode(string(line)); ok {
		done.Code = &code
		d.setRegister(code.Name, code.Data)
		if end := strings.IndexByte(text, ']'); end != -1 {
			done.Text = strings.TrimSpace(text[end+1:])
		}
	}
	return done
}

// untagged records what an untagged line tells about the session and passes
// it on to handle.
func (d *Dialer) untagged(line []byte, handle func(line []byte) error) error {
	d.traceResponse(line)
	l := dropNl(line)
	switch {
	case bytes.HasPrefix(l, []byte("* ")):
	case d.sawBye:
		return &ByeParseError{Trailing: append([]byte{}, line...), Err: errors.New("not an untagged response")}
	default:
		// tagged lines from an earlier, interrupted command
		return nil
	}

	fields := strings.SplitN(string(l), " ", 4)
	if len(fields) >= 2 {
		switch strings.ToUpper(fields[1]) {
		case "BYE":
			d.sawBye = true
		case "FLAGS":
			d.setRegister("FLAGS", strings.TrimSpace(strings.TrimPrefix(string(l), fields[0]+" "+fields[1])))
		}
	}
	if len(fields) >= 3 {
		if _, err := strconv.ParseUint(fields[1], 10, 32); err == nil {
			switch strings.ToUpper(fields[2]) {
			case "EXISTS", "RECENT":
				d.setRegister(strings.ToUpper(fields[2]), fields[1])
			}
		}
	}
	if code, ok := ParseResponseCode(string(l)); ok {
		d.setRegister(code.Name, code.Data)
	}
	return handle(line)
}

// readLine reads one response line, including any literals it announces.
func (d *Dialer) readLine() ([]byte, error) {
	line, err := d.r.ReadBytes('\n')
	if err != nil {
		return line, err
	}
	for {
		a := literalSuffix.Find(dropNl(line))
		if a == nil {
			return line, nil
		}
		n, err := strconv.Atoi(string(a[1 : len(a)-1]))
		if err != nil {
			return line, err
		}
		buf := make([]byte, n)
		if _, err = io.ReadFull(d.r, buf); err != nil {
			return line, err
		}
		line = append(line, buf...)

		buf, err = d.r.ReadBytes('\n')
		if err != nil {
			return line, err
		}
		line = append(line, buf...)
	}
}

func (d *Dialer) traceResponse(line []byte) {
	if d.opts.Verbose && !d.opts.SkipResponses {
		d.debugLog("server response", "response", string(dropNl(line)))
	}
}

// sanitize masks the password in a LOGIN command.
func (d *Dialer) sanitize(c string) string {
	if d.Password == "" {
		return strings.TrimSpace(c)
	}
	return strings.ReplaceAll(strings.TrimSpace(c), `"`+AddSlashes.Replace(d.Password)+`"`, `"****"`)
}

func (d *Dialer) setRegister(key, value string) {
	if d.registers == nil {
		d.registers = make(map[string]string)
	}
	d.registers[strings.ToUpper(key)] = value
}

// LastResponse returns the data of the most recent response code or
// untagged datum named key, such as "UIDNEXT", "PERMANENTFLAGS" or
// "EXISTS".
func (d *Dialer) LastResponse(key string) (string, bool) {
	v, ok := d.registers[strings.ToUpper(key)]
	return v, ok
}

func firstWord(command string) string {
	f := strings.Fields(command)
	if len(f) == 0 {
		return ""
	}
	if strings.EqualFold(f[0], "UID") && len(f) > 1 {
		return "UID " + strings.ToUpper(f[1])
	}
	return strings.ToUpper(f[0])
}
