// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package xmpp

import (
	"encoding/xml"
	"fmt"
	"sync"
)

// Provider parses one IQ payload element. The decoder is positioned right
// after start; the provider must consume tokens up to and including the
// matching end element.
type Provider interface {
	ParseExtension(dec *xml.Decoder, start xml.StartElement) (Extension, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(dec *xml.Decoder, start xml.StartElement) (Extension, error)

// ParseExtension implements Provider.
func (f ProviderFunc) ParseExtension(dec *xml.Decoder, start xml.StartElement) (Extension, error) {
	return f(dec, start)
}

// Registry maps payload element names to providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[xml.Name]Provider
}

// NewRegistry returns a registry with the standard bind provider installed.
func NewRegistry() *Registry {
	r := &Registry{providers: make(map[xml.Name]Provider)}
	r.Register(xml.Name{Space: NSBind, Local: "bind"}, ProviderFunc(parseBind))
	return r
}

// DefaultRegistry is used by connections that are not given their own.
var DefaultRegistry = NewRegistry()

// Register installs p for name, replacing any previous provider.
func (r *Registry) Register(name xml.Name, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// Lookup returns the provider registered for name.
func (r *Registry) Lookup(name xml.Name) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// parseBind is the standard bind result parser. A bound JID must carry a
// local part.
func parseBind(dec *xml.Decoder, start xml.StartElement) (Extension, error) {
	b := &Bind{}
	if err := dec.DecodeElement(b, &start); err != nil {
		return nil, err
	}
	if b.JID == "" {
		return b, nil
	}
	jid, err := ParseJID(b.JID)
	if err != nil {
		return nil, err
	}
	if jid.Local == "" {
		return nil, fmt.Errorf("bound jid %q has no local part", b.JID)
	}
	b.Bound = jid
	return b, nil
}
