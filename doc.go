// Package imap is the wire side of an IMAP UIDPLUS conformance harness.
//
// It provides:
//
//   - A raw IMAP session (Dialer) over plain TCP or implicit TLS, with LOGIN
//     or XOAUTH2, SELECT/EXAMINE, APPEND, UID COPY/STORE/SEARCH/FETCH, CLOSE
//     and LOGOUT
//   - A codec between the UID set wire syntax ("1,3:5,7:*") and UIDSet
//   - A decoder for the APPENDUID and COPYUID response codes
//
// Commands are sent one at a time; a Dialer is not safe for concurrent
// use. Every Dialer carries its own Options, nothing is configured
// globally. The checks that use all of this live in package conformance.
package imap
