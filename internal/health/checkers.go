// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"net"
	"time"
)

// DialFunc opens a connection; net.Dialer.DialContext satisfies it.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// HubChecker reports whether the hub accepts TCP connections. An
// unreachable hub degrades the service but does not make it unready:
// power-off requests are still accepted and fail individually.
type HubChecker struct {
	addr    func() string
	timeout time.Duration
	dial    DialFunc
}

// NewHubChecker creates a checker for the address returned by addr, which
// is read on every check so configuration reloads are honoured.
func NewHubChecker(addr func() string, timeout time.Duration) *HubChecker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	d := &net.Dialer{}
	return &HubChecker{addr: addr, timeout: timeout, dial: d.DialContext}
}

// Name implements Checker.
func (c *HubChecker) Name() string {
	return "hub"
}

// Check implements Checker.
func (c *HubChecker) Check(ctx context.Context) CheckResult {
	addr := c.addr()
	if addr == "" {
		return CheckResult{Status: StatusUnhealthy, Error: "hub address not configured"}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	conn, err := c.dial(ctx, "tcp", addr)
	if err != nil {
		return CheckResult{
			Status:  StatusDegraded,
			Message: addr,
			Error:   err.Error(),
		}
	}
	_ = conn.Close()
	return CheckResult{
		Status:  StatusHealthy,
		Message: "reachable in " + time.Since(start).Round(time.Millisecond).String(),
	}
}

// LastRunChecker reports the outcome of the most recent power-off session.
type LastRunChecker struct {
	getLastRun func() (time.Time, error)
}

// NewLastRunChecker creates a checker for the last session outcome.
func NewLastRunChecker(getLastRun func() (time.Time, error)) *LastRunChecker {
	return &LastRunChecker{getLastRun: getLastRun}
}

// Name implements Checker.
func (c *LastRunChecker) Name() string {
	return "last_session"
}

// Check implements Checker. A failed session degrades the service; the
// next idle event retries anyway.
func (c *LastRunChecker) Check(context.Context) CheckResult {
	lastRun, lastErr := c.getLastRun()

	if lastRun.IsZero() {
		return CheckResult{Status: StatusHealthy, Message: "no session run yet"}
	}
	if lastErr != nil {
		return CheckResult{
			Status:  StatusDegraded,
			Error:   lastErr.Error(),
			Message: "last session failed at " + lastRun.Format(time.RFC3339),
		}
	}
	return CheckResult{
		Status:  StatusHealthy,
		Message: "last session succeeded at " + lastRun.Format(time.RFC3339),
	}
}
