// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package harmony

import (
	"encoding/xml"
	"strings"

	"github.com/ManuGH/hubctl/internal/xmpp"
)

// bindLocalPart is prepended to the domain-only JIDs the hub binds.
const bindLocalPart = "client"

// BindProvider parses bind results whose JID lacks a local part. The
// "client@" local part is added only when the hub sends a domain-only JID;
// a JID that already carries a local part is kept unchanged.
type BindProvider struct{}

// ParseExtension implements xmpp.Provider.
func (BindProvider) ParseExtension(dec *xml.Decoder, _ xml.StartElement) (xmpp.Extension, error) {
	b := &xmpp.Bind{}
	for depth := 1; depth > 0; {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "resource":
				text, err := elementText(dec)
				if err != nil {
					return nil, err
				}
				b.Resource = strings.TrimSpace(text)
			case "jid":
				text, err := elementText(dec)
				if err != nil {
					return nil, err
				}
				raw := strings.TrimSpace(text)
				if !strings.Contains(raw, "@") {
					raw = bindLocalPart + "@" + raw
				}
				jid, err := xmpp.ParseJID(raw)
				if err != nil {
					return nil, err
				}
				b.JID = raw
				b.Bound = jid
			default:
				depth++
			}
		case xml.EndElement:
			depth--
		}
	}
	return b, nil
}

// OAReplyProvider dispatches command envelope replies to their decoder.
type OAReplyProvider struct {
	decoders map[string]ReplyDecoder
}

// NewOAReplyProvider returns a provider backed by the built-in decoders.
func NewOAReplyProvider() *OAReplyProvider {
	return &OAReplyProvider{decoders: replyDecoders}
}

// ParseExtension implements xmpp.Provider.
func (p *OAReplyProvider) ParseExtension(dec *xml.Decoder, start xml.StartElement) (xmpp.Extension, error) {
	attrs := make(map[string]string, len(start.Attr))
	for _, a := range start.Attr {
		if a.Name.Space != "" {
			attrs[a.Name.Space+":"+a.Name.Local] = a.Value
			continue
		}
		attrs[a.Name.Local] = a.Value
	}
	statusCode := attrs["errorcode"]
	errorString := attrs["errorstring"]
	mime := attrs["mime"]

	decoder, ok := p.decoders[mime]
	if !ok {
		return nil, protocolError("unable to handle reply type '%s'", mime)
	}
	if !decoder.ValidStatus(statusCode) {
		return nil, &HubError{Sentinel: ErrProtocol, Operation: "reply " + mime, StatusCode: statusCode, ErrorString: errorString}
	}

	contents, err := elementText(dec)
	if err != nil {
		return nil, err
	}
	value, err := decoder.Decode(statusCode, errorString, contents)
	if err != nil {
		return nil, err
	}
	return &OAReply{Mime: mime, StatusCode: statusCode, ErrorString: errorString, Value: value}, nil
}

// elementText concatenates every text token up to the end of the element
// the decoder is currently inside. Nested markup contributes its text only.
func elementText(dec *xml.Decoder) (string, error) {
	var b strings.Builder
	for depth := 1; depth > 0; {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.CharData:
			b.Write(t)
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		}
	}
	return b.String(), nil
}
