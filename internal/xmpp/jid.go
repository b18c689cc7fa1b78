// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package xmpp

import (
	"fmt"
	"strings"
)

// JID is an XMPP address of the form [local@]domain[/resource].
type JID struct {
	Local    string
	Domain   string
	Resource string
}

// ParseJID splits s into its parts. Only the domain part is mandatory.
func ParseJID(s string) (JID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return JID{}, fmt.Errorf("%w: empty jid", ErrParse)
	}

	var j JID
	rest := s
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		j.Resource = rest[i+1:]
		rest = rest[:i]
	}
	if i := strings.IndexByte(rest, '@'); i >= 0 {
		j.Local = rest[:i]
		rest = rest[i+1:]
		if j.Local == "" {
			return JID{}, fmt.Errorf("%w: jid %q has an empty local part", ErrParse, s)
		}
	}
	j.Domain = rest
	if j.Domain == "" {
		return JID{}, fmt.Errorf("%w: jid %q has no domain", ErrParse, s)
	}
	return j, nil
}

// String renders the JID in its canonical textual form.
func (j JID) String() string {
	var b strings.Builder
	if j.Local != "" {
		b.WriteString(j.Local)
		b.WriteByte('@')
	}
	b.WriteString(j.Domain)
	if j.Resource != "" {
		b.WriteByte('/')
		b.WriteString(j.Resource)
	}
	return b.String()
}

// Bare returns the JID without its resource.
func (j JID) Bare() JID {
	return JID{Local: j.Local, Domain: j.Domain}
}

// IsZero reports whether no part of the JID is set.
func (j JID) IsZero() bool {
	return j == JID{}
}
