// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package xmpp

import (
	"encoding/xml"

	"github.com/google/uuid"
)

// Namespaces used by the client stream.
const (
	NSClient   = "jabber:client"
	NSStream   = "http://etherx.jabber.org/streams"
	NSSASL     = "urn:ietf:params:xml:ns:xmpp-sasl"
	NSBind     = "urn:ietf:params:xml:ns:xmpp-bind"
	NSSession  = "urn:ietf:params:xml:ns:xmpp-session"
	NSStanzas  = "urn:ietf:params:xml:ns:xmpp-stanzas"
	NSStreamsE = "urn:ietf:params:xml:ns:xmpp-streams"
)

// IQType is the type attribute of an info/query stanza.
type IQType string

const (
	IQGet    IQType = "get"
	IQSet    IQType = "set"
	IQResult IQType = "result"
	IQError  IQType = "error"
)

func (t IQType) valid() bool {
	switch t {
	case IQGet, IQSet, IQResult, IQError:
		return true
	}
	return false
}

// Header holds the addressing attributes shared by every stanza.
type Header struct {
	ID   string
	From string
	To   string
}

// Stanza is a top-level element exchanged on the stream.
type Stanza interface {
	StanzaHeader() Header
}

// Extension is the payload carried inside an IQ. Outbound extensions are
// written with encoding/xml, so they must be marshalable.
type Extension interface{}

// NewID returns a fresh stanza id.
func NewID() string {
	return uuid.NewString()[:8]
}

// IQ is an info/query request or reply.
type IQ struct {
	Header
	Type IQType
	// Typeless is set for inbound IQs that carried no type attribute.
	Typeless bool
	Payload  Extension
	Error    *StanzaError
}

// StanzaHeader implements Stanza.
func (iq *IQ) StanzaHeader() Header { return iq.Header }

// IsRequest reports whether the IQ expects a reply.
func (iq *IQ) IsRequest() bool {
	return iq.Type == IQGet || iq.Type == IQSet
}

// MarshalXML implements xml.Marshaler.
func (iq *IQ) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	start := xml.StartElement{Name: xml.Name{Local: "iq"}}
	start.Attr = headerAttrs(iq.Header)
	if iq.Type != "" {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "type"}, Value: string(iq.Type)})
	}
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	if iq.Payload != nil {
		if err := e.Encode(iq.Payload); err != nil {
			return err
		}
	}
	if iq.Error != nil {
		if err := e.Encode(iq.Error); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}

// ErrorReply builds the error answer to a request IQ.
func (iq *IQ) ErrorReply(condition, errType string) *IQ {
	return &IQ{
		Header: Header{ID: iq.ID, To: iq.From, From: iq.To},
		Type:   IQError,
		Error:  &StanzaError{Type: errType, Condition: condition},
	}
}

// Presence announces availability.
type Presence struct {
	Header
	Type string
}

// StanzaHeader implements Stanza.
func (p *Presence) StanzaHeader() Header { return p.Header }

// MarshalXML implements xml.Marshaler.
func (p *Presence) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	start := xml.StartElement{Name: xml.Name{Local: "presence"}}
	start.Attr = headerAttrs(p.Header)
	if p.Type != "" {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "type"}, Value: p.Type})
	}
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	return e.EncodeToken(start.End())
}

// Message is a chat message. The client only ever receives them.
type Message struct {
	Header
	Type string
	Body string
}

// StanzaHeader implements Stanza.
func (m *Message) StanzaHeader() Header { return m.Header }

// MarshalXML implements xml.Marshaler.
func (m *Message) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	start := xml.StartElement{Name: xml.Name{Local: "message"}}
	start.Attr = headerAttrs(m.Header)
	if m.Type != "" {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "type"}, Value: m.Type})
	}
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	if m.Body != "" {
		if err := e.EncodeElement(m.Body, xml.StartElement{Name: xml.Name{Local: "body"}}); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}

func headerAttrs(h Header) []xml.Attr {
	attrs := make([]xml.Attr, 0, 4)
	if h.ID != "" {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "id"}, Value: h.ID})
	}
	if h.To != "" {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "to"}, Value: h.To})
	}
	if h.From != "" {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "from"}, Value: h.From})
	}
	return attrs
}

// Stanza error conditions used by the client.
const (
	ConditionServiceUnavailable = "service-unavailable"
	ConditionFeatureNotImpl     = "feature-not-implemented"
)

// StanzaError is the <error/> child of an error stanza.
type StanzaError struct {
	Type      string
	Condition string
	Text      string
}

func (e *StanzaError) Error() string {
	if e.Text != "" {
		return "xmpp: stanza error " + e.Condition + ": " + e.Text
	}
	return "xmpp: stanza error " + e.Condition
}

// MarshalXML implements xml.Marshaler.
func (e *StanzaError) MarshalXML(enc *xml.Encoder, _ xml.StartElement) error {
	start := xml.StartElement{Name: xml.Name{Local: "error"}}
	if e.Type != "" {
		start.Attr = []xml.Attr{{Name: xml.Name{Local: "type"}, Value: e.Type}}
	}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	cond := xml.StartElement{Name: xml.Name{Space: NSStanzas, Local: e.Condition}}
	if err := enc.EncodeToken(cond); err != nil {
		return err
	}
	if err := enc.EncodeToken(cond.End()); err != nil {
		return err
	}
	if e.Text != "" {
		text := xml.StartElement{Name: xml.Name{Space: NSStanzas, Local: "text"}}
		if err := enc.EncodeElement(e.Text, text); err != nil {
			return err
		}
	}
	return enc.EncodeToken(start.End())
}

// Bind is the resource binding payload.
type Bind struct {
	XMLName  xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-bind bind"`
	Resource string   `xml:"resource,omitempty"`
	JID      string   `xml:"jid,omitempty"`

	// Bound is the parsed form of JID on inbound results.
	Bound JID `xml:"-"`
}

// Session is the legacy session establishment payload.
type Session struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-session session"`
}

// UnknownExtension keeps payloads no provider was registered for.
type UnknownExtension struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Inner   []byte     `xml:",innerxml"`
}
