// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package xmpp

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/ManuGH/hubctl/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type ping struct {
	XMLName xml.Name `xml:"urn:xmpp:ping ping"`
}

func testConfig(hub *testutil.FakeHub) Config {
	logger := zerolog.New(io.Discard)
	return Config{
		Host:             hub.Host(),
		Port:             hub.Port(),
		Domain:           "harmonyhub",
		HandshakeTimeout: 2 * time.Second,
		Registry:         NewRegistry(),
		Logger:           &logger,
	}
}

// acceptTypeless keeps the hub's bare <iq/> presence ack from failing the stream.
func acceptTypeless(el *Element, next ParseFunc) (Stanza, error) {
	if _, ok := el.Attr("type"); el.XMLName.Local == "iq" && !ok {
		return &IQ{Type: IQResult, Typeless: true}, nil
	}
	return next(el)
}

func TestConnLoginAndClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	hub := testutil.NewFakeHub(t, testutil.HubOptions{FullBindJID: true})
	cfg := testConfig(hub)
	cfg.ParseHook = acceptTypeless

	ctx := context.Background()
	conn, err := Dial(ctx, cfg)
	require.NoError(t, err)

	require.NoError(t, conn.Login(ctx, "guest@connect.logitech.com/gatorade", "gatorade.", "auth"))
	assert.Equal(t, "client@1111/auth", conn.JID().String())

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close(), "second close is a no-op")
	require.NoError(t, hub.Close())

	sessions := hub.Sessions()
	require.Len(t, sessions, 1)
	s := sessions[0]
	assert.Equal(t, "guest@connect.logitech.com/gatorade", s.Username)
	assert.Equal(t, "gatorade.", s.Password)
	assert.Equal(t, "auth", s.Resource)
	assert.Equal(t, []string{"", "unavailable"}, s.Presences)
	assert.True(t, s.Closed)
}

func TestConnLoginRejected(t *testing.T) {
	hub := testutil.NewFakeHub(t, testutil.HubOptions{RejectAuth: true})

	ctx := context.Background()
	conn, err := Dial(ctx, testConfig(hub))
	require.NoError(t, err)
	defer conn.Close()

	err = conn.Login(ctx, "guest", "wrong", "auth")
	require.ErrorIs(t, err, ErrSASLFailure)
	assert.Contains(t, err.Error(), "not-authorized")
}

func TestConnStrictBindRejectsDomainOnlyJID(t *testing.T) {
	hub := testutil.NewFakeHub(t, testutil.HubOptions{})

	ctx := context.Background()
	conn, err := Dial(ctx, testConfig(hub))
	require.NoError(t, err)
	defer conn.Close()

	err = conn.Login(ctx, "guest", "pass", "auth")
	require.ErrorIs(t, err, ErrParse)
	assert.Contains(t, err.Error(), "no local part")
}

func TestConnTypelessIQIsFatalWithoutHook(t *testing.T) {
	hub := testutil.NewFakeHub(t, testutil.HubOptions{FullBindJID: true})

	ctx := context.Background()
	conn, err := Dial(ctx, testConfig(hub))
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Login(ctx, "guest", "pass", "auth"))
	require.Eventually(t, func() bool {
		return errors.Is(conn.Err(), ErrParse)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConnAnswersUnhandledRequests(t *testing.T) {
	hub := testutil.NewFakeHub(t, testutil.HubOptions{
		FullBindJID: true,
		OnRequest: func(_ int, req testutil.HubRequest) []string {
			return []string{
				`<iq id='srv1' type='get' from='harmonyhub'><query xmlns='urn:example'/></iq>`,
				`<iq id='` + req.ID + `' type='result'/>`,
			}
		},
	})
	cfg := testConfig(hub)
	cfg.ParseHook = acceptTypeless

	ctx := context.Background()
	conn, err := Dial(ctx, cfg)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.Login(ctx, "guest", "pass", "auth"))

	col := conn.NewCollector(IDFilter("srv1"))
	defer col.Cancel()
	require.NoError(t, conn.Send(ctx, &IQ{Header: Header{ID: NewID()}, Type: IQGet, Payload: &ping{}}))

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	s, err := col.Next(waitCtx)
	require.NoError(t, err)
	assert.Equal(t, IQGet, s.(*IQ).Type)

	require.Eventually(t, func() bool {
		sessions := hub.Sessions()
		return len(sessions) == 1 && len(sessions[0].Errors) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "srv1", hub.Sessions()[0].Errors[0])
}

func TestConnOutboundFilterDrops(t *testing.T) {
	hub := testutil.NewFakeHub(t, testutil.HubOptions{
		FullBindJID: true,
		OnRequest: func(_ int, req testutil.HubRequest) []string {
			return []string{
				`<iq id='srv2' type='get'><query xmlns='urn:example'/></iq>`,
				`<iq id='` + req.ID + `' type='result'/>`,
			}
		},
	})
	dropped := make(chan string, 1)
	cfg := testConfig(hub)
	cfg.ParseHook = acceptTypeless
	cfg.Outbound = func(s Stanza) bool {
		if iq, ok := s.(*IQ); ok && iq.Type == IQError {
			dropped <- iq.ID
			return false
		}
		return true
	}

	ctx := context.Background()
	conn, err := Dial(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, conn.Login(ctx, "guest", "pass", "auth"))

	req := &IQ{Header: Header{ID: NewID()}, Type: IQGet, Payload: &ping{}}
	col := conn.NewCollector(IDFilter(req.ID))
	require.NoError(t, conn.Send(ctx, req))

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err = col.Next(waitCtx)
	require.NoError(t, err)
	col.Cancel()

	select {
	case id := <-dropped:
		assert.Equal(t, "srv2", id)
	case <-time.After(2 * time.Second):
		t.Fatal("error reply never reached the outbound filter")
	}

	require.NoError(t, conn.Close())
	require.NoError(t, hub.Close())
	assert.Empty(t, hub.Sessions()[0].Errors)
}

func TestCollectorTimesOut(t *testing.T) {
	hub := testutil.NewFakeHub(t, testutil.HubOptions{FullBindJID: true})
	cfg := testConfig(hub)
	cfg.ParseHook = acceptTypeless

	ctx := context.Background()
	conn, err := Dial(ctx, cfg)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.Login(ctx, "guest", "pass", "auth"))

	col := conn.NewCollector(IDFilter("never"))
	defer col.Cancel()

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = col.Next(waitCtx)
	require.ErrorIs(t, err, ErrNoResponse)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSendAfterCloseFails(t *testing.T) {
	hub := testutil.NewFakeHub(t, testutil.HubOptions{})

	conn, err := Dial(context.Background(), testConfig(hub))
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	err = conn.Send(context.Background(), &Presence{})
	assert.ErrorIs(t, err, ErrNotConnected)
	err = conn.Login(context.Background(), "guest", "pass", "auth")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestDialFailsWithoutListener(t *testing.T) {
	hub := testutil.NewFakeHub(t, testutil.HubOptions{})
	cfg := testConfig(hub)
	require.NoError(t, hub.Close())

	_, err := Dial(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial")
}
