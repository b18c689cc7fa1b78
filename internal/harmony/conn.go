// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package harmony

import (
	"context"
	"fmt"

	"github.com/ManuGH/hubctl/internal/metrics"
	"github.com/ManuGH/hubctl/internal/xmpp"
)

// ParseHook turns the hub's type-less <iq/> acknowledgements into empty
// results and annotates every other parse failure with the raw element.
func ParseHook(el *xmpp.Element, next xmpp.ParseFunc) (xmpp.Stanza, error) {
	if el.XMLName.Local == "iq" {
		if _, ok := el.Attr("type"); !ok {
			id, _ := el.Attr("id")
			return &xmpp.IQ{Header: xmpp.Header{ID: id}, Type: xmpp.IQResult, Typeless: true}, nil
		}
	}
	s, err := next(el)
	if err != nil {
		return nil, fmt.Errorf("message parsing exception. Content: '%s': %w", el.String(), err)
	}
	return s, nil
}

// OutboundFilter drops service-unavailable error replies. The hub closes
// the connection when it receives one.
func OutboundFilter(s xmpp.Stanza) bool {
	iq, ok := s.(*xmpp.IQ)
	if ok && iq.Type == xmpp.IQError && iq.Error != nil && iq.Error.Condition == xmpp.ConditionServiceUnavailable {
		metrics.IncDroppedOutbound(iq.Error.Condition)
		return false
	}
	return true
}

// Dial opens a hub connection with the parse and send adaptations applied.
func Dial(ctx context.Context, cfg xmpp.Config) (*xmpp.Conn, error) {
	cfg.ParseHook = ParseHook
	cfg.Outbound = OutboundFilter
	cfg.BindFilter = AckFilter
	return xmpp.Dial(ctx, cfg)
}
