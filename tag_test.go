package imap

import (
	"regexp"
	"testing"
)

var tagPattern = regexp.MustCompile(`^[0-9A-V]{20}$`)

// Every command the Dialer sends carries a fresh upper-case xid tag, and
// each one is matched by its tagged completion.
func TestCommandTags(t *testing.T) {
	s := newMockIMAPServer(t, false)
	d := login(t, s)

	if err := d.Create("Box"); err != nil {
		t.Fatal(err)
	}
	appendMessage(t, d, "Box", "tagged")
	if _, err := d.Select("Box"); err != nil {
		t.Fatal(err)
	}
	for range 50 {
		if _, err := d.Exec("NOOP", false, 0, nil); err != nil {
			t.Fatalf("NOOP failed: %v", err)
		}
	}

	s.mu.Lock()
	tags := append([]string(nil), s.tags...)
	s.mu.Unlock()

	// LOGIN, CREATE, APPEND, SELECT and the NOOPs
	if len(tags) != 54 {
		t.Fatalf("server saw %d commands, want 54: %v", len(tags), tags)
	}
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		if !tagPattern.MatchString(tag) {
			t.Errorf("tag %q is not 20 characters of [0-9A-V]", tag)
		}
		if seen[tag] {
			t.Errorf("tag %q sent twice", tag)
		}
		seen[tag] = true
	}
}

func TestTaggedCompletion(t *testing.T) {
	d := &Dialer{}
	tag := []byte("C9T4M3V0000000000001")

	tests := []struct {
		name   string
		line   string
		status string
	}{
		{"ok", "C9T4M3V0000000000001 OK NOOP completed\r\n", "OK"},
		{"lower case status", "C9T4M3V0000000000001 no [CANNOT] refused\r\n", "NO"},
		{"other tag", "C9T4M3V0000000000002 OK NOOP completed\r\n", ""},
		{"lower case tag", "c9t4m3v0000000000001 OK NOOP completed\r\n", ""},
		{"tag prefix", "C9T4M3V00000000000012 OK NOOP completed\r\n", ""},
		{"untagged", "* OK [UIDNEXT 4] Predicted next UID\r\n", ""},
		{"bare tag", "C9T4M3V0000000000001\r\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			done := d.tagged(tag, []byte(tt.line))
			if tt.status == "" {
				if done != nil {
					t.Fatalf("tagged(%q) = %+v, want nil", tt.line, done)
				}
				return
			}
			if done == nil || done.Status != tt.status {
				t.Fatalf("tagged(%q) = %+v, want status %s", tt.line, done, tt.status)
			}
		})
	}
}
