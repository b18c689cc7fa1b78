// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package trigger

import (
	"context"
	"net"
	"time"
)

// Connectivity reports whether the network precondition of a run holds.
type Connectivity interface {
	Online() bool
}

// ConnectivityFunc adapts a function to Connectivity.
type ConnectivityFunc func() bool

// Online implements Connectivity.
func (f ConnectivityFunc) Online() bool { return f() }

// InterfaceConnectivity is online when at least one interface that is up
// and not a loopback carries an address.
type InterfaceConnectivity struct {
	// interfaces is swapped in tests.
	interfaces func() ([]net.Interface, error)
	addrs      func(net.Interface) ([]net.Addr, error)
}

// NewInterfaceConnectivity checks the host's network interfaces.
func NewInterfaceConnectivity() *InterfaceConnectivity {
	return &InterfaceConnectivity{
		interfaces: net.Interfaces,
		addrs:      func(i net.Interface) ([]net.Addr, error) { return i.Addrs() },
	}
}

// Online implements Connectivity.
func (c *InterfaceConnectivity) Online() bool {
	ifaces, err := c.interfaces()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := c.addrs(iface)
		if err == nil && len(addrs) > 0 {
			return true
		}
	}
	return false
}

// waitOnline polls c until it reports online or ctx ends.
func waitOnline(ctx context.Context, c Connectivity, interval time.Duration) error {
	if c.Online() {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if c.Online() {
				return nil
			}
		}
	}
}
