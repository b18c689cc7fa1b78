// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package harmony

import (
	"encoding/xml"
	"errors"
	"strings"
	"testing"

	"github.com/ManuGH/hubctl/internal/xmpp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseWith(t *testing.T, p xmpp.Provider, raw string) (xmpp.Extension, error) {
	t.Helper()
	dec := xml.NewDecoder(strings.NewReader(raw))
	for {
		tok, err := dec.Token()
		require.NoError(t, err)
		if start, ok := tok.(xml.StartElement); ok {
			return p.ParseExtension(dec, start)
		}
	}
}

func oaXML(mime, code, errorString, body string) string {
	return `<oa xmlns='connect.logitech.com' errorcode='` + code + `' errorstring='` + errorString +
		`' mime='` + mime + `'><![CDATA[` + body + `]]></oa>`
}

func TestOAReplyProvider_Pair(t *testing.T) {
	ext, err := parseWith(t, NewOAReplyProvider(), oaXML(MimePair, StatusOK, "OK",
		"serverIdentity=s1:hubId=106:identity=abc:status=succeeded:friendlyName=Living Room"))
	require.NoError(t, err)

	reply, ok := ext.(*OAReply)
	require.True(t, ok)
	assert.Equal(t, MimePair, reply.Mime)
	assert.Equal(t, StatusOK, reply.StatusCode)
	assert.Equal(t, "OK", reply.ErrorString)
	assert.False(t, reply.Continuation())

	pair, ok := reply.Value.(*PairReply)
	require.True(t, ok)
	assert.Equal(t, "abc", pair.Identity)
	assert.Equal(t, "106", pair.HubID)
	assert.Equal(t, "Living Room", pair.FriendlyName)

	creds, err := pair.Credentials()
	require.NoError(t, err)
	assert.Equal(t, Credentials{Username: "abc@connect.logitech.com/gatorade", Password: "abc"}, creds)
	assert.Contains(t, creds.String(), "<redacted>")
}

func TestOAReplyProvider_UnknownMime(t *testing.T) {
	_, err := parseWith(t, NewOAReplyProvider(), oaXML("unknown/type", StatusOK, "OK", ""))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProtocol))
	assert.Contains(t, err.Error(), "unable to handle reply type 'unknown/type'")
}

func TestOAReplyProvider_StatusCodes(t *testing.T) {
	tests := []struct {
		name    string
		mime    string
		code    string
		wantErr bool
	}{
		{"pair continue", MimePair, StatusContinue, false},
		{"pair ok", MimePair, StatusOK, false},
		{"pair bluetooth down", MimePair, StatusBluetoothDown, false},
		{"pair command not found", MimePair, StatusCommandNotFound, false},
		{"pair unauthorized", MimePair, StatusUnauthorized, true},
		{"pair server error", MimePair, "500", true},
		{"start activity unauthorized", MimeStartActivity, StatusUnauthorized, false},
		{"start activity short mime", MimeStartActivityShort, StatusOK, false},
		{"start activity server error", MimeStartActivity, "500", true},
		{"hold action ok", MimeHoldAction, StatusOK, false},
		{"hold action unauthorized", MimeHoldAction, StatusUnauthorized, true},
		{"missing code", MimeHoldAction, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext, err := parseWith(t, NewOAReplyProvider(), oaXML(tt.mime, tt.code, "Server Error", ""))
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, tt.code, ext.(*OAReply).StatusCode)
				return
			}
			require.Error(t, err)
			var hubErr *HubError
			require.True(t, errors.As(err, &hubErr))
			assert.Equal(t, ErrProtocol, hubErr.Sentinel)
			assert.Equal(t, tt.code, hubErr.StatusCode)
			assert.Equal(t, "Server Error", hubErr.ErrorString)
		})
	}
}

func TestOAReplyProvider_ConcatenatesText(t *testing.T) {
	raw := `<oa xmlns='connect.logitech.com' errorcode='200' errorstring='OK' mime='` + MimeHoldAction + `'>` +
		`a=1<b>:c=2</b>:d=3</oa>`
	ext, err := parseWith(t, NewOAReplyProvider(), raw)
	require.NoError(t, err)

	hold, ok := ext.(*OAReply).Value.(*HoldActionReply)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"a": "1", "c": "2", "d": "3"}, hold.Fields)
}

func TestBindProvider(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		want     string
		resource string
	}{
		{
			name: "domain only",
			raw:  `<bind xmlns='urn:ietf:params:xml:ns:xmpp-bind'><jid>X.Y</jid></bind>`,
			want: "client@X.Y",
		},
		{
			name: "domain and resource",
			raw:  `<bind xmlns='urn:ietf:params:xml:ns:xmpp-bind'><jid>1111/auth</jid></bind>`,
			want: "client@1111/auth",
		},
		{
			name: "full jid kept",
			raw:  `<bind xmlns='urn:ietf:params:xml:ns:xmpp-bind'><jid>user@hub/main</jid></bind>`,
			want: "user@hub/main",
		},
		{
			name:     "resource and unknown children",
			raw:      `<bind xmlns='urn:ietf:params:xml:ns:xmpp-bind'><resource> main </resource><extra a='1'>x</extra><jid>1111/main</jid></bind>`,
			want:     "client@1111/main",
			resource: "main",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext, err := parseWith(t, BindProvider{}, tt.raw)
			require.NoError(t, err)
			b, ok := ext.(*xmpp.Bind)
			require.True(t, ok)
			assert.Equal(t, tt.want, b.Bound.String())
			assert.Equal(t, tt.resource, b.Resource)
		})
	}
}

func TestRegistryInstall(t *testing.T) {
	r := NewRegistry()

	p, ok := r.Lookup(xml.Name{Space: NamespaceOA, Local: "oa"})
	require.True(t, ok)
	assert.IsType(t, &OAReplyProvider{}, p)

	p, ok = r.Lookup(xml.Name{Space: xmpp.NSBind, Local: "bind"})
	require.True(t, ok)
	assert.IsType(t, BindProvider{}, p)

	RegisterProviders()
	RegisterProviders()
	_, ok = xmpp.DefaultRegistry.Lookup(xml.Name{Space: NamespaceOA, Local: "oa"})
	assert.True(t, ok)
}
