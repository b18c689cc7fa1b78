// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package xmpp

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Element is a top-level stream element as read from the wire, before it
// has been turned into a Stanza.
type Element struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Inner   []byte     `xml:",innerxml"`
}

// Attr returns the value of the unqualified attribute name.
func (el *Element) Attr(name string) (string, bool) {
	for _, a := range el.Attrs {
		if a.Name.Space == "" && a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// String renders the element back to XML text for diagnostics.
func (el *Element) String() string {
	var b strings.Builder
	b.WriteByte('<')
	b.WriteString(el.XMLName.Local)
	for _, a := range el.Attrs {
		b.WriteByte(' ')
		if a.Name.Space != "" {
			b.WriteString(a.Name.Space)
			b.WriteByte(':')
		}
		b.WriteString(a.Name.Local)
		b.WriteString(`="`)
		_ = xml.EscapeText(&b, []byte(a.Value))
		b.WriteByte('"')
	}
	if len(el.Inner) == 0 {
		b.WriteString("/>")
		return b.String()
	}
	b.WriteByte('>')
	b.Write(el.Inner)
	b.WriteString("</")
	b.WriteString(el.XMLName.Local)
	b.WriteByte('>')
	return b.String()
}

func (el *Element) header() Header {
	var h Header
	h.ID, _ = el.Attr("id")
	h.From, _ = el.Attr("from")
	h.To, _ = el.Attr("to")
	return h
}

// ParseFunc turns an element into a stanza.
type ParseFunc func(el *Element) (Stanza, error)

// ParseHook intercepts parsing. It may handle the element itself or defer
// to next, which is the generic parser.
type ParseHook func(el *Element, next ParseFunc) (Stanza, error)

// parser is the generic element parser backed by a provider registry.
type parser struct {
	registry *Registry
}

func (p parser) parse(el *Element) (Stanza, error) {
	switch el.XMLName.Local {
	case "iq":
		return p.parseIQ(el)
	case "presence":
		typ, _ := el.Attr("type")
		return &Presence{Header: el.header(), Type: typ}, nil
	case "message":
		return p.parseMessage(el)
	default:
		return nil, fmt.Errorf("%w: unsupported element <%s>", ErrParse, el.XMLName.Local)
	}
}

func (p parser) parseIQ(el *Element) (Stanza, error) {
	iq := &IQ{Header: el.header()}
	typ, ok := el.Attr("type")
	if !ok {
		return nil, fmt.Errorf("%w: iq without type attribute", ErrParse)
	}
	iq.Type = IQType(typ)
	if !iq.Type.valid() {
		return nil, fmt.Errorf("%w: invalid iq type %q", ErrParse, typ)
	}
	if iq.ID == "" {
		return nil, fmt.Errorf("%w: iq without id", ErrParse)
	}

	dec := xml.NewDecoder(bytes.NewReader(el.Inner))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return iq, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrParse, err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local == "error" {
			se, err := parseStanzaError(dec, start)
			if err != nil {
				return nil, err
			}
			iq.Error = se
			continue
		}
		if iq.Payload != nil {
			if err := dec.Skip(); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrParse, err)
			}
			continue
		}
		ext, err := p.parseExtension(dec, start)
		if err != nil {
			return nil, err
		}
		iq.Payload = ext
	}
}

func (p parser) parseExtension(dec *xml.Decoder, start xml.StartElement) (Extension, error) {
	if provider, ok := p.registry.Lookup(start.Name); ok {
		ext, err := provider.ParseExtension(dec, start)
		if err != nil {
			return nil, fmt.Errorf("%w: <%s xmlns=%q>: %w", ErrParse, start.Name.Local, start.Name.Space, err)
		}
		return ext, nil
	}
	unknown := &UnknownExtension{}
	if err := dec.DecodeElement(unknown, &start); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	return unknown, nil
}

func (p parser) parseMessage(el *Element) (Stanza, error) {
	msg := &Message{Header: el.header()}
	msg.Type, _ = el.Attr("type")
	var body struct {
		Body string `xml:"body"`
	}
	wrapped := append(append([]byte("<m>"), el.Inner...), "</m>"...)
	if err := xml.Unmarshal(wrapped, &body); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	msg.Body = body.Body
	return msg, nil
}

func parseStanzaError(dec *xml.Decoder, start xml.StartElement) (*StanzaError, error) {
	se := &StanzaError{}
	for _, a := range start.Attr {
		if a.Name.Local == "type" {
			se.Type = a.Value
		}
	}
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: stanza error: %w", ErrParse, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "text" {
				var text string
				if err := dec.DecodeElement(&text, &t); err != nil {
					return nil, fmt.Errorf("%w: stanza error text: %w", ErrParse, err)
				}
				se.Text = text
				continue
			}
			if se.Condition == "" {
				se.Condition = t.Name.Local
			}
			if err := dec.Skip(); err != nil {
				return nil, fmt.Errorf("%w: stanza error: %w", ErrParse, err)
			}
		case xml.EndElement:
			return se, nil
		}
	}
}
