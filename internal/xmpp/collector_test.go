// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package xmpp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeConn returns a Conn over an in-memory pipe and the peer end.
func pipeConn(t *testing.T) (*Conn, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	return newConn(Config{}.normalize(), client, zerolog.New(io.Discard)), server
}

func TestCollectorKeepsEveryStanza(t *testing.T) {
	for _, n := range []int{0, 1, 16, 17, 40, 200} {
		t.Run(fmt.Sprintf("%d stanzas", n), func(t *testing.T) {
			c, _ := pipeConn(t)
			col := c.NewCollector(func(Stanza) bool { return true })
			defer col.Cancel()

			for i := 0; i < n; i++ {
				c.dispatch(&Message{Header: Header{ID: fmt.Sprint(i)}})
			}
			c.dispatch(&Message{Header: Header{ID: "final"}})
			assert.Equal(t, n+1, col.Len())

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			for i := 0; i < n; i++ {
				s, err := col.Next(ctx)
				require.NoError(t, err)
				assert.Equal(t, fmt.Sprint(i), s.StanzaHeader().ID)
			}
			s, err := col.Next(ctx)
			require.NoError(t, err)
			assert.Equal(t, "final", s.StanzaHeader().ID)
			assert.Zero(t, col.Len())
		})
	}
}

func TestCollectorDrainsBeforeStreamError(t *testing.T) {
	c, _ := pipeConn(t)
	col := c.NewCollector(IDFilter("a"))
	defer col.Cancel()

	c.dispatch(&Message{Header: Header{ID: "a"}})
	c.dispatch(&Message{Header: Header{ID: "b"}})
	c.fail(fmt.Errorf("%w: reset", ErrStreamClosed))

	ctx := context.Background()
	s, err := col.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", s.StanzaHeader().ID)

	_, err = col.Next(ctx)
	assert.ErrorIs(t, err, ErrStreamClosed)
}

func TestCollectorWakesWaiter(t *testing.T) {
	c, _ := pipeConn(t)
	col := c.NewCollector(IDFilter("late"))
	defer col.Cancel()

	go func() {
		time.Sleep(20 * time.Millisecond)
		c.dispatch(&Message{Header: Header{ID: "late"}})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := col.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "late", s.StanzaHeader().ID)
}

func TestCollectorCancelUnregisters(t *testing.T) {
	c, _ := pipeConn(t)
	a := c.NewCollector(IDFilter("a"))
	b := c.NewCollector(IDFilter("b"))
	assert.Equal(t, 2, c.Collectors())

	a.Cancel()
	a.Cancel()
	assert.Equal(t, 1, c.Collectors())

	c.dispatch(&Message{Header: Header{ID: "a"}})
	assert.Zero(t, a.Len(), "cancelled collectors receive nothing")

	b.Cancel()
	assert.Zero(t, c.Collectors())
}

func TestSendResetsWriteDeadline(t *testing.T) {
	c, peer := pipeConn(t)

	expired, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	err := c.Send(expired, &Presence{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStreamClosed)

	received := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(peer).ReadString('>')
		received <- line
	}()
	require.NoError(t, c.Send(context.Background(), &Presence{Type: "unavailable"}),
		"a send without deadline must not inherit an earlier one")
	assert.True(t, strings.HasPrefix(<-received, "<presence"))
}

func TestConcurrentSendsStayWhole(t *testing.T) {
	c, peer := pipeConn(t)

	const senders = 8
	var wg sync.WaitGroup
	errs := make(chan error, senders)
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx := context.Background()
			if i%2 == 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, 2*time.Second)
				defer cancel()
			}
			errs <- c.Send(ctx, &Message{Header: Header{ID: fmt.Sprintf("m%d", i)}})
		}(i)
	}

	var got strings.Builder
	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 4096)
		for strings.Count(got.String(), "</message>") < senders {
			n, err := peer.Read(buf)
			if err != nil {
				return
			}
			got.Write(buf[:n])
		}
	}()

	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("not every stanza reached the peer")
	}
	for i := 0; i < senders; i++ {
		assert.Equal(t, 1, strings.Count(got.String(), fmt.Sprintf("id=\"m%d\"", i)))
	}
}
