// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package harmony

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ManuGH/hubctl/internal/testutil"
	"github.com/ManuGH/hubctl/internal/xmpp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loggedInConn dials hub for task and logs in as guest.
func loggedInConn(t *testing.T, task *PowerOffTask, hub *testutil.FakeHub) *xmpp.Conn {
	t.Helper()
	ctx := context.Background()
	conn, err := task.dial(ctx, hub.Addr(), task.logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.Login(ctx, task.opts.GuestUser, task.opts.GuestPassword, task.opts.AuthResource))
	return conn
}

func TestPowerOffTask_LongContinuationRuns(t *testing.T) {
	for _, n := range []int{0, 16, 17, 40, 200} {
		t.Run(fmt.Sprintf("%d continuations", n), func(t *testing.T) {
			hub := testutil.NewFakeHub(t, testutil.HubOptions{
				OnRequest: func(session int, req testutil.HubRequest) []string {
					if req.Mime != testutil.MimeStartActivity {
						return testutil.AcceptAll(session, req)
					}
					replies := make([]string, 0, n+1)
					for i := 0; i < n; i++ {
						replies = append(replies, testutil.ContinuationReply(req.ID, req.Mime))
					}
					return append(replies, testutil.AcceptAll(session, req)...)
				},
			})

			task := NewPowerOffTask(testOptions(hub))
			require.NoError(t, task.Run(context.Background()))
			assert.Equal(t, StateDone, task.State())
		})
	}
}

func TestDispatch_OneOutstandingRequest(t *testing.T) {
	const (
		callers = 4
		delay   = 50 * time.Millisecond
	)

	var (
		current     atomic.Pointer[xmpp.Conn]
		maxInFlight atomic.Int32
	)
	hub := testutil.NewFakeHub(t, testutil.HubOptions{
		OnRequest: func(session int, req testutil.HubRequest) []string {
			if conn := current.Load(); conn != nil {
				if n := int32(conn.Collectors()); n > maxInFlight.Load() {
					maxInFlight.Store(n)
				}
			}
			time.Sleep(delay)
			return testutil.AcceptAll(session, req)
		},
	})

	task := NewPowerOffTask(testOptions(hub))
	conn := loggedInConn(t, task, hub)
	current.Store(conn)

	var wg sync.WaitGroup
	errs := make([]error, callers)
	start := time.Now()
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = task.dispatch(context.Background(), conn, NewStartActivityRequest(DeviceAll), 2*time.Second, StateAwaitingCommandReply)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "caller %d", i)
	}
	assert.GreaterOrEqual(t, time.Since(start), callers*delay)
	assert.Equal(t, int32(1), maxInFlight.Load(), "at most one correlated request per task")
	assert.Zero(t, conn.Collectors())
}

func TestDispatch_ReleasesCollector(t *testing.T) {
	t.Run("after timeout", func(t *testing.T) {
		var calls atomic.Int32
		hub := testutil.NewFakeHub(t, testutil.HubOptions{
			OnRequest: func(session int, req testutil.HubRequest) []string {
				if calls.Add(1) == 1 {
					return nil
				}
				return testutil.AcceptAll(session, req)
			},
		})
		task := NewPowerOffTask(testOptions(hub))
		conn := loggedInConn(t, task, hub)

		_, err := task.dispatch(context.Background(), conn, NewStartActivityRequest(DeviceAll), 100*time.Millisecond, StateAwaitingCommandReply)
		require.ErrorIs(t, err, ErrNoReply)
		assert.Zero(t, conn.Collectors())

		reply, err := task.dispatch(context.Background(), conn, NewStartActivityRequest(DeviceAll), 2*time.Second, StateAwaitingCommandReply)
		require.NoError(t, err, "the dispatch lock is released after a timeout")
		assert.Equal(t, "200", reply.StatusCode)
		assert.Zero(t, conn.Collectors())
	})

	t.Run("after error reply", func(t *testing.T) {
		hub := testutil.NewFakeHub(t, testutil.HubOptions{
			OnRequest: func(_ int, req testutil.HubRequest) []string {
				return []string{testutil.OAReply(req.ID, req.Mime, "500", "Internal Error", "")}
			},
		})
		task := NewPowerOffTask(testOptions(hub))
		conn := loggedInConn(t, task, hub)

		_, err := task.dispatch(context.Background(), conn, NewStartActivityRequest(DeviceAll), 2*time.Second, StateAwaitingCommandReply)
		require.ErrorIs(t, err, ErrProtocol)
		assert.Zero(t, conn.Collectors())

		locked := task.mu.TryLock()
		assert.True(t, locked, "the dispatch lock is released after an error")
		if locked {
			task.mu.Unlock()
		}
	})
}
