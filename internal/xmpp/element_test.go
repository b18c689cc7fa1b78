// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package xmpp

import (
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeElement(t *testing.T, raw string) *Element {
	t.Helper()
	el := &Element{}
	require.NoError(t, xml.Unmarshal([]byte(raw), el))
	return el
}

func TestParserIQWithUnknownPayload(t *testing.T) {
	p := parser{registry: NewRegistry()}
	el := decodeElement(t, `<iq id='a1' type='result' from='harmonyhub'><query xmlns='jabber:iq:roster' ver='ver7'/></iq>`)

	s, err := p.parse(el)
	require.NoError(t, err)
	iq := s.(*IQ)
	assert.Equal(t, "a1", iq.ID)
	assert.Equal(t, "harmonyhub", iq.From)
	assert.Equal(t, IQResult, iq.Type)
	ext, ok := iq.Payload.(*UnknownExtension)
	require.True(t, ok)
	assert.Equal(t, xml.Name{Space: "jabber:iq:roster", Local: "query"}, ext.XMLName)
}

func TestParserIQError(t *testing.T) {
	p := parser{registry: NewRegistry()}
	el := decodeElement(t, `<iq id='e1' type='error'><error type='cancel'><service-unavailable xmlns='urn:ietf:params:xml:ns:xmpp-stanzas'/><text xmlns='urn:ietf:params:xml:ns:xmpp-stanzas'>nope</text></error></iq>`)

	s, err := p.parse(el)
	require.NoError(t, err)
	iq := s.(*IQ)
	require.NotNil(t, iq.Error)
	assert.Equal(t, ConditionServiceUnavailable, iq.Error.Condition)
	assert.Equal(t, "cancel", iq.Error.Type)
	assert.Equal(t, "nope", iq.Error.Text)
}

func TestParserRejectsBadIQ(t *testing.T) {
	p := parser{registry: NewRegistry()}
	for _, raw := range []string{
		`<iq/>`,
		`<iq id='x' type='bogus'/>`,
		`<iq type='get'/>`,
	} {
		_, err := p.parse(decodeElement(t, raw))
		assert.ErrorIs(t, err, ErrParse, raw)
	}
}

func TestParserPresenceAndMessage(t *testing.T) {
	p := parser{registry: NewRegistry()}

	s, err := p.parse(decodeElement(t, `<presence type='unavailable' from='a@b'/>`))
	require.NoError(t, err)
	assert.Equal(t, "unavailable", s.(*Presence).Type)

	s, err = p.parse(decodeElement(t, `<message id='m1' type='chat'><body>hello</body></message>`))
	require.NoError(t, err)
	assert.Equal(t, "hello", s.(*Message).Body)
}

func TestElementString(t *testing.T) {
	el := decodeElement(t, `<iq id='1'><x>y</x></iq>`)
	assert.Equal(t, `<iq id="1"><x>y</x></iq>`, el.String())
	assert.Equal(t, "<iq/>", decodeElement(t, "<iq/>").String())
}

func TestIQMarshal(t *testing.T) {
	iq := &IQ{Header: Header{ID: "b1"}, Type: IQSet, Payload: &Bind{Resource: "auth"}}
	out, err := xml.Marshal(iq)
	require.NoError(t, err)
	assert.Equal(t, `<iq id="b1" type="set"><bind xmlns="urn:ietf:params:xml:ns:xmpp-bind"><resource>auth</resource></bind></iq>`, string(out))
}

func TestErrorReplyMarshal(t *testing.T) {
	req := &IQ{Header: Header{ID: "r1", From: "harmonyhub", To: "client@1111/auth"}, Type: IQGet}
	out, err := xml.Marshal(req.ErrorReply(ConditionServiceUnavailable, "cancel"))
	require.NoError(t, err)
	assert.Equal(t,
		`<iq id="r1" to="harmonyhub" from="client@1111/auth" type="error"><error type="cancel"><service-unavailable xmlns="urn:ietf:params:xml:ns:xmpp-stanzas"></service-unavailable></error></iq>`,
		string(out))
}
