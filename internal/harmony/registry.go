// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package harmony

import (
	"encoding/xml"
	"sync"

	"github.com/ManuGH/hubctl/internal/xmpp"
)

var registerOnce sync.Once

// RegisterProviders installs the hub providers into xmpp.DefaultRegistry.
// It must run before the first task whose Options.Registry is
// xmpp.DefaultRegistry; repeated calls are no-ops. Tasks built without a
// registry get a private one from NewRegistry instead.
func RegisterProviders() {
	registerOnce.Do(func() {
		Install(xmpp.DefaultRegistry)
	})
}

// Install registers the hub providers into r.
func Install(r *xmpp.Registry) {
	r.Register(xml.Name{Space: xmpp.NSBind, Local: "bind"}, BindProvider{})
	r.Register(xml.Name{Space: NamespaceOA, Local: "oa"}, NewOAReplyProvider())
}

// NewRegistry returns a private registry with the hub providers installed.
func NewRegistry() *xmpp.Registry {
	r := xmpp.NewRegistry()
	Install(r)
	return r
}
