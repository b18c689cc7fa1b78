// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package xmpp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJID(t *testing.T) {
	tests := []struct {
		in   string
		want JID
	}{
		{"client@1111/auth", JID{Local: "client", Domain: "1111", Resource: "auth"}},
		{"guest@connect.logitech.com/gatorade", JID{Local: "guest", Domain: "connect.logitech.com", Resource: "gatorade"}},
		{"harmonyhub", JID{Domain: "harmonyhub"}},
		{"1111/main", JID{Domain: "1111", Resource: "main"}},
		{"a@b/c/d", JID{Local: "a", Domain: "b", Resource: "c/d"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseJID(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}
}

func TestParseJIDRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "   ", "@domain", "user@", "/res"} {
		_, err := ParseJID(in)
		assert.ErrorIs(t, err, ErrParse, "input %q", in)
	}
}

func TestJIDBare(t *testing.T) {
	j := JID{Local: "client", Domain: "1111", Resource: "auth"}
	assert.Equal(t, "client@1111", j.Bare().String())
	assert.False(t, j.IsZero())
	assert.True(t, JID{}.IsZero())
}
