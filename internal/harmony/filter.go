// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package harmony

import "github.com/ManuGH/hubctl/internal/xmpp"

// StrictFilter accepts the reply to req: a get or error IQ carrying req's
// id and a command envelope of one of req's reply mime types. The hub
// answers with type get, not result.
func StrictFilter(req *OARequest) xmpp.Filter {
	expected := make(map[string]bool, len(req.ReplyMimes))
	for _, m := range req.ReplyMimes {
		expected[m] = true
	}
	return func(s xmpp.Stanza) bool {
		iq, ok := s.(*xmpp.IQ)
		if !ok || (iq.Type != xmpp.IQGet && iq.Type != xmpp.IQError) {
			return false
		}
		if iq.ID != req.ID {
			return false
		}
		reply, ok := iq.Payload.(*OAReply)
		return ok && expected[reply.Mime]
	}
}

// AckFilter accepts a type-less acknowledgement or any stanza with id.
func AckFilter(id string) xmpp.Filter {
	return func(s xmpp.Stanza) bool {
		if iq, ok := s.(*xmpp.IQ); ok && iq.Typeless {
			return true
		}
		return s.StanzaHeader().ID == id
	}
}
