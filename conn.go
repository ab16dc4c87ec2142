package imap

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	retry "github.com/StirlingMarketingGroup/go-retry"
)

var nextConnNum atomic.Int64

// Dialer represents an IMAP connection
type Dialer struct {
	connMu    sync.Mutex // guards conn against Interrupt
	conn      net.Conn
	r         *bufio.Reader
	opts      Options
	Folder    string
	ReadOnly  bool
	Username  string
	Password  string
	Host      string
	Port      int
	Connected bool
	ConnNum   int
	greeting  Greeting
	registers map[string]string
	sawBye    bool
	// useXOAUTH2 indicates whether XOAUTH2 authentication should be used
	// on reconnection instead of LOGIN. It is set by NewWithOAuth2.
	useXOAUTH2 bool
	// interrupted is set by Interrupt and stops further retries.
	interrupted atomic.Bool
}

// Greeting is the first line the server sent.
type Greeting struct {
	Raw    string
	Status string // OK, PREAUTH or BYE
	Code   *ResponseCode
	Text   string
}

// dialHost establishes a TCP or TLS connection to the IMAP server
func dialHost(host string, port int, opts Options) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: opts.DialTimeout}
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	if !opts.TLS {
		return dialer.Dial("tcp", addr)
	}
	cfg := &tls.Config{ServerName: host}
	if opts.TLSSkipVerify {
		cfg.InsecureSkipVerify = true
	}
	return tls.DialWithDialer(dialer, "tcp", addr, cfg)
}

// Dial connects to the server and reads its greeting. Only establishing the
// connection is retried.
func Dial(host string, port int, opts Options) (d *Dialer, err error) {
	d = &Dialer{
		Host:    host,
		Port:    port,
		ConnNum: int(nextConnNum.Add(1) - 1),
		opts:    opts,
	}

	err = retry.Retry(func() error {
		d.debugLog("establishing connection")
		conn, err := dialHost(host, port, opts)
		if err != nil {
			d.debugLog("failed to connect", "error", err)
			return err
		}
		d.attach(conn)
		return nil
	}, opts.RetryCount, func(err error) error {
		d.debugLog("failed to connect, retrying shortly", "error", err)
		return nil
	}, func() error {
		d.debugLog("retrying connection now")
		return nil
	})
	if err != nil {
		d.log().Error("failed to establish connection", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	if err = d.readGreeting(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

// New connects and logs in with username and password.
func New(username string, password string, host string, port int, opts Options) (d *Dialer, err error) {
	d, err = Dial(host, port, opts)
	if err != nil {
		return nil, err
	}
	// no retry for auth failures
	if err = d.Login(username, password); err != nil {
		d.log().Error("authentication failed", "error", err)
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

// NewWithOAuth2 connects and authenticates with XOAUTH2.
func NewWithOAuth2(username string, accessToken string, host string, port int, opts Options) (d *Dialer, err error) {
	d, err = Dial(host, port, opts)
	if err != nil {
		return nil, err
	}
	if err = d.Authenticate(username, accessToken); err != nil {
		d.log().Error("authentication failed", "error", err)
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

func (d *Dialer) attach(conn net.Conn) {
	d.connMu.Lock()
	d.conn = conn
	d.connMu.Unlock()
	d.r = bufio.NewReader(conn)
	d.Connected = true
	d.sawBye = false
}

func (d *Dialer) readGreeting() error {
	if d.opts.DialTimeout != 0 {
		_ = d.conn.SetReadDeadline(time.Now().Add(d.opts.DialTimeout))
		defer func() { _ = d.conn.SetReadDeadline(time.Time{}) }()
	}
	line, err := d.readLine()
	if err != nil {
		return wrapNetErr(fmt.Errorf("reading greeting: %w", err))
	}
	raw := string(line)
	d.debugLog("server greeting", "greeting", string(dropNl(line)))

	fields := strings.SplitN(string(dropNl(line)), " ", 3)
	if len(fields) < 2 || fields[0] != "*" {
		return fmt.Errorf("%w: malformed greeting %q", ErrConnection, raw)
	}
	g := Greeting{Raw: raw, Status: strings.ToUpper(fields[1])}
	if len(fields) == 3 {
		g.Text = fields[2]
	}
	if code, ok := ParseResponseCode(raw); ok {
		g.Code = &code
		if end := strings.IndexByte(g.Text, ']'); end != -1 {
			g.Text = strings.TrimSpace(g.Text[end+1:])
		}
	}
	d.greeting = g
	if g.Status == "BYE" {
		return fmt.Errorf("%w: server refused connection: %s", ErrConnection, g.Text)
	}
	return nil
}

// Greeting returns the greeting read when the connection was opened.
func (d *Dialer) Greeting() Greeting {
	return d.greeting
}

// Close closes the IMAP connection
func (d *Dialer) Close() (err error) {
	if d.Connected {
		d.debugLog("closing connection")
		d.connMu.Lock()
		err = d.conn.Close()
		d.connMu.Unlock()
		d.Connected = false
		if err != nil {
			return fmt.Errorf("imap close: %s", err)
		}
	}
	return err
}

// Interrupt makes any read or write in progress fail with a timeout. A
// failed command is not retried or reconnected once Interrupt was called.
// The next command sets fresh deadlines, so a best-effort LOGOUT still
// works.
func (d *Dialer) Interrupt() {
	d.interrupted.Store(true)
	d.connMu.Lock()
	defer d.connMu.Unlock()
	if d.conn != nil {
		_ = d.conn.SetDeadline(time.Now())
	}
}

// Reconnect closes and reopens the IMAP connection with re-authentication
func (d *Dialer) Reconnect() (err error) {
	_ = d.Close()
	d.debugLog("reopening connection")

	conn, err := dialHost(d.Host, d.Port, d.opts)
	if err != nil {
		return fmt.Errorf("%w: imap reconnect dial: %w", ErrConnection, err)
	}
	d.attach(conn)
	if err = d.readGreeting(); err != nil {
		_ = d.Close()
		return err
	}

	// Re-authenticate using the original method
	if d.useXOAUTH2 {
		err = d.Authenticate(d.Username, d.Password)
	} else {
		err = d.Login(d.Username, d.Password)
	}
	if err != nil {
		_ = d.Close()
		return fmt.Errorf("imap reconnect: %w", err)
	}

	// Restore selected folder state if any
	if d.Folder != "" {
		verb := "SELECT"
		if d.ReadOnly {
			verb = "EXAMINE"
		}
		if _, err = d.open(verb, d.Folder, 0); err != nil {
			return fmt.Errorf("imap reconnect select: %w", err)
		}
	}

	return nil
}
