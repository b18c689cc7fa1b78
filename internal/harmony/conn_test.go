// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package harmony

import (
	"encoding/xml"
	"errors"
	"testing"

	"github.com/ManuGH/hubctl/internal/xmpp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func element(t *testing.T, raw string) *xmpp.Element {
	t.Helper()
	el := &xmpp.Element{}
	require.NoError(t, xml.Unmarshal([]byte(raw), el))
	return el
}

func TestParseHook_TypelessIQ(t *testing.T) {
	called := false
	next := func(*xmpp.Element) (xmpp.Stanza, error) {
		called = true
		return nil, errors.New("unexpected")
	}

	s, err := ParseHook(element(t, `<iq/>`), next)
	require.NoError(t, err)
	assert.False(t, called, "type-less iq must not reach the generic parser")

	iq, ok := s.(*xmpp.IQ)
	require.True(t, ok)
	assert.True(t, iq.Typeless)
	assert.Equal(t, xmpp.IQResult, iq.Type)

	s, err = ParseHook(element(t, `<iq id='ack-1'/>`), next)
	require.NoError(t, err)
	assert.Equal(t, "ack-1", s.StanzaHeader().ID)
}

func TestParseHook_PassesTypedStanzas(t *testing.T) {
	want := &xmpp.IQ{Header: xmpp.Header{ID: "1"}, Type: xmpp.IQGet}
	s, err := ParseHook(element(t, `<iq type='get' id='1'/>`), func(*xmpp.Element) (xmpp.Stanza, error) {
		return want, nil
	})
	require.NoError(t, err)
	assert.Same(t, want, s)
}

func TestParseHook_WrapsParseErrors(t *testing.T) {
	cause := errors.New("boom")
	_, err := ParseHook(element(t, `<presence type='x'/>`), func(*xmpp.Element) (xmpp.Stanza, error) {
		return nil, cause
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "message parsing exception. Content: '<presence")
}

func TestOutboundFilter(t *testing.T) {
	request := &xmpp.IQ{Header: xmpp.Header{ID: "7", From: "hub"}, Type: xmpp.IQGet}

	tests := []struct {
		name   string
		stanza xmpp.Stanza
		want   bool
	}{
		{"service unavailable reply", request.ErrorReply(xmpp.ConditionServiceUnavailable, "cancel"), false},
		{"other error reply", request.ErrorReply(xmpp.ConditionFeatureNotImpl, "cancel"), true},
		{"error condition on a non-error iq", &xmpp.IQ{
			Header: xmpp.Header{ID: "8"},
			Type:   xmpp.IQResult,
			Error:  &xmpp.StanzaError{Condition: xmpp.ConditionServiceUnavailable},
		}, true},
		{"command request", NewPairRequest().Stanza(xmpp.JID{}), true},
		{"presence", &xmpp.Presence{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OutboundFilter(tt.stanza))
		})
	}
}

func TestOARequestStanza(t *testing.T) {
	req := NewStartActivityRequest(DeviceAll)
	self := xmpp.JID{Local: "client", Domain: "1111", Resource: "main"}

	data, err := xml.Marshal(req.Stanza(self))
	require.NoError(t, err)

	var got struct {
		ID   string `xml:"id,attr"`
		Type string `xml:"type,attr"`
		From string `xml:"from,attr"`
		OA   struct {
			XMLName xml.Name
			Mime    string `xml:"mime,attr"`
			Body    string `xml:",chardata"`
		} `xml:"oa"`
	}
	require.NoError(t, xml.Unmarshal(data, &got))
	assert.Equal(t, req.ID, got.ID)
	assert.Equal(t, "get", got.Type)
	assert.Equal(t, "client@1111/main", got.From)
	assert.Equal(t, NamespaceOA, got.OA.XMLName.Space)
	assert.Equal(t, MimeStartActivity, got.OA.Mime)
	assert.Regexp(t, `^activityId=-1:timestamp=\d+$`, got.OA.Body)
}

func TestOARequestStanza_EscapesBody(t *testing.T) {
	req, err := NewHoldActionRequest(5, "A&B<C>", ButtonPress)
	require.NoError(t, err)

	data, err := xml.Marshal(req.Stanza(xmpp.JID{}))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "A&B<C>")

	var got struct {
		Body string `xml:"oa"`
	}
	require.NoError(t, xml.Unmarshal(data, &got))
	assert.Equal(t, req.Body(), got.Body)
}
