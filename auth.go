package imap

import (
	"errors"
	"fmt"

	"github.com/sqs/go-xoauth2"
)

// Authenticate performs XOAUTH2 authentication using an access token
func (d *Dialer) Authenticate(user string, accessToken string) (err error) {
	d.Username, d.Password, d.useXOAUTH2 = user, accessToken, true
	b64 := xoauth2.XOAuth2String(user, accessToken)
	// Don't retry authentication - auth failures should not trigger reconnection
	_, err = d.Exec(fmt.Sprintf("AUTHENTICATE XOAUTH2 %s", b64), false, 0, nil)
	return authErr(err)
}

// Login performs LOGIN authentication using username and password
func (d *Dialer) Login(username string, password string) (err error) {
	d.Username, d.Password, d.useXOAUTH2 = username, password, false
	// Don't retry authentication - auth failures should not trigger reconnection
	_, err = d.Exec(fmt.Sprintf(`LOGIN "%s" "%s"`, AddSlashes.Replace(username), AddSlashes.Replace(password)), false, 0, nil)
	return authErr(err)
}

func authErr(err error) error {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return fmt.Errorf("%w: %w", ErrAuthentication, err)
	}
	return err
}

// Logout sends LOGOUT and closes the connection. Some servers follow their
// BYE line with bytes that are not a valid response, or drop the connection
// before the tagged OK; that single case is tolerated. Every other failure
// is returned.
func (d *Dialer) Logout() error {
	defer func() { _ = d.Close() }()
	_, err := d.Exec("LOGOUT", false, 0, nil)
	var bye *ByeParseError
	if errors.As(err, &bye) {
		d.debugLog("ignoring unparsable data after BYE", "trailing", string(bye.Trailing))
		return nil
	}
	return err
}
