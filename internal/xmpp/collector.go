// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package xmpp

import (
	"context"
	"fmt"
	"sync"
)

// Filter selects inbound stanzas.
type Filter func(Stanza) bool

// IDFilter accepts stanzas whose id equals id.
func IDFilter(id string) Filter {
	return func(s Stanza) bool {
		return s.StanzaHeader().ID == id
	}
}

// Collector receives the inbound stanzas accepted by its filter from the
// moment it is created until Cancel is called. Its queue is unbounded so the
// read loop never blocks and no accepted stanza is lost.
type Collector struct {
	conn   *Conn
	filter Filter

	mu     sync.Mutex
	queue  []Stanza
	signal chan struct{}

	once sync.Once
}

// NewCollector registers a collector. Callers must Cancel it on every path.
func (c *Conn) NewCollector(f Filter) *Collector {
	col := &Collector{
		conn:   c,
		filter: f,
		signal: make(chan struct{}, 1),
	}
	c.mu.Lock()
	c.collectors[col] = struct{}{}
	c.mu.Unlock()
	return col
}

func (col *Collector) deliver(s Stanza) {
	col.mu.Lock()
	col.queue = append(col.queue, s)
	col.mu.Unlock()
	select {
	case col.signal <- struct{}{}:
	default:
	}
}

func (col *Collector) pop() (Stanza, bool) {
	col.mu.Lock()
	defer col.mu.Unlock()
	if len(col.queue) == 0 {
		return nil, false
	}
	s := col.queue[0]
	col.queue[0] = nil
	col.queue = col.queue[1:]
	return s, true
}

// Len reports the number of queued stanzas.
func (col *Collector) Len() int {
	col.mu.Lock()
	defer col.mu.Unlock()
	return len(col.queue)
}

// Next waits for the next matching stanza. It fails with ErrNoResponse once
// ctx is done and with the connection's terminal error once the stream ends.
// Stanzas queued before either event are still returned first.
func (col *Collector) Next(ctx context.Context) (Stanza, error) {
	for {
		if s, ok := col.pop(); ok {
			return s, nil
		}
		select {
		case <-col.signal:
		case <-col.conn.done:
			if s, ok := col.pop(); ok {
				return s, nil
			}
			return nil, col.conn.Err()
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrNoResponse, ctx.Err())
		}
	}
}

// Cancel unregisters the collector. It is safe to call more than once.
func (col *Collector) Cancel() {
	col.once.Do(func() {
		col.conn.mu.Lock()
		delete(col.conn.collectors, col)
		col.conn.mu.Unlock()
	})
}
