// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package testutil

import (
	"bufio"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

// HubIdentity is the session token the fake hub hands out on pairing.
const HubIdentity = "ed23c162a01b9ef7b2729c553eb8d7c0f841f7a3"

// Mime types the fake hub recognises in reply helpers.
const (
	MimePair          = "vnd.logitech.connect/vnd.logitech.pair"
	MimeStartActivity = "vnd.logitech.harmony/vnd.logitech.harmony.engine?startactivity"
	MimeHoldAction    = "vnd.logitech.harmony/vnd.logitech.harmony.engine?holdAction"
)

const hubStreamHeader = `<?xml version='1.0' encoding='iso-8859-1'?>` +
	`<stream:stream from='harmonyhub' id='068adbb1' version='1.0' xmlns='jabber:client' xmlns:stream='http://etherx.jabber.org/streams'>`

// HubRequest is an IQ request the client sent after login.
type HubRequest struct {
	ID   string
	Type string
	From string
	// Payload is the local name of the request's child element.
	Payload string
	// Mime and Body are set for vendor command envelopes.
	Mime string
	Body string
}

// Fields splits an envelope body into its key/value pairs.
func (r HubRequest) Fields() map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(r.Body, ":") {
		k, v, ok := strings.Cut(part, "=")
		if ok {
			out[k] = v
		}
	}
	return out
}

// HubSession records what one client connection did.
type HubSession struct {
	Username string
	Password string
	Resource string
	Requests []HubRequest
	// Errors holds the ids of error IQs the client sent.
	Errors    []string
	Presences []string
	// Closed is set when the client ended the stream itself.
	Closed bool
}

// HubOptions scripts the fake hub.
type HubOptions struct {
	// OnRequest returns the raw stanzas answering one client request.
	OnRequest func(session int, req HubRequest) []string
	// RejectAuth fails every SASL exchange.
	RejectAuth bool
	// FullBindJID answers bind with a JID that has a local part.
	FullBindJID bool
	// SkipPresenceAck suppresses the type-less IQ sent after presence.
	SkipPresenceAck bool
}

// FakeHub is a scripted hub speaking the server side of the stream.
type FakeHub struct {
	opts HubOptions
	ln   net.Listener
	g    errgroup.Group

	mu       sync.Mutex
	sessions []*HubSession
	conns    []net.Conn
	closed   bool

	closeOnce sync.Once
	closeErr  error
}

// NewFakeHub starts a hub on a loopback port. It is closed on test cleanup.
func NewFakeHub(t testing.TB, opts HubOptions) *FakeHub {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	h := &FakeHub{opts: opts, ln: ln}
	h.g.Go(h.acceptLoop)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

// Host returns the listen host.
func (h *FakeHub) Host() string {
	return h.ln.Addr().(*net.TCPAddr).IP.String()
}

// Port returns the listen port.
func (h *FakeHub) Port() int {
	return h.ln.Addr().(*net.TCPAddr).Port
}

// Addr returns host:port.
func (h *FakeHub) Addr() string {
	return h.ln.Addr().String()
}

// Sessions returns a copy of the recorded sessions in connect order.
func (h *FakeHub) Sessions() []HubSession {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]HubSession, 0, len(h.sessions))
	for _, s := range h.sessions {
		c := *s
		c.Requests = append([]HubRequest(nil), s.Requests...)
		c.Errors = append([]string(nil), s.Errors...)
		c.Presences = append([]string(nil), s.Presences...)
		out = append(out, c)
	}
	return out
}

// Close stops accepting and waits for the open sessions to end. Sessions
// still open after a grace period are cut.
func (h *FakeHub) Close() error {
	h.closeOnce.Do(func() {
		_ = h.ln.Close()
		done := make(chan error, 1)
		go func() { done <- h.g.Wait() }()
		select {
		case h.closeErr = <-done:
		case <-time.After(5 * time.Second):
			h.mu.Lock()
			h.closed = true
			for _, c := range h.conns {
				_ = c.Close()
			}
			h.mu.Unlock()
			h.closeErr = <-done
		}
	})
	return h.closeErr
}

func (h *FakeHub) acceptLoop() error {
	for idx := 0; ; idx++ {
		nc, err := h.ln.Accept()
		if err != nil {
			return nil
		}
		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			_ = nc.Close()
			return nil
		}
		sess := &HubSession{}
		h.sessions = append(h.sessions, sess)
		h.conns = append(h.conns, nc)
		h.mu.Unlock()

		session := idx
		h.g.Go(func() error { return h.serve(session, sess, nc) })
	}
}

type clientStanza struct {
	XMLName xml.Name
	ID      string `xml:"id,attr"`
	Type    string `xml:"type,attr"`
	From    string `xml:"from,attr"`
	Bind    *struct {
		Resource string `xml:"resource"`
	} `xml:"urn:ietf:params:xml:ns:xmpp-bind bind"`
	Session *struct{} `xml:"urn:ietf:params:xml:ns:xmpp-session session"`
	OA      *struct {
		Mime string `xml:"mime,attr"`
		Body string `xml:",chardata"`
	} `xml:"connect.logitech.com oa"`
	Error *struct{} `xml:"error"`
	Any   []struct {
		XMLName xml.Name
	} `xml:",any"`
}

func (h *FakeHub) serve(session int, sess *HubSession, nc net.Conn) error {
	defer nc.Close()
	r := bufio.NewReader(nc)

	dec := xml.NewDecoder(r)
	if !awaitStreamHeader(dec) {
		return nil
	}
	if err := send(nc, hubStreamHeader+
		`<stream:features><mechanisms xmlns='urn:ietf:params:xml:ns:xmpp-sasl'><mechanism>PLAIN</mechanism></mechanisms></stream:features>`); err != nil {
		return nil
	}

	start, ok := nextStart(dec)
	if !ok {
		return nil
	}
	if start.Name.Local != "auth" {
		return fmt.Errorf("session %d: expected <auth>, got <%s>", session, start.Name.Local)
	}
	var token string
	if err := dec.DecodeElement(&token, &start); err != nil {
		return fmt.Errorf("session %d: auth: %w", session, err)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return fmt.Errorf("session %d: auth token: %w", session, err)
	}
	parts := strings.Split(string(raw), "\x00")
	if len(parts) != 3 {
		return fmt.Errorf("session %d: malformed PLAIN token %q", session, raw)
	}
	h.record(func() {
		sess.Username = parts[1]
		sess.Password = parts[2]
	})
	if h.opts.RejectAuth {
		_ = send(nc, `<failure xmlns='urn:ietf:params:xml:ns:xmpp-sasl'><not-authorized/></failure>`)
		return nil
	}
	if err := send(nc, `<success xmlns='urn:ietf:params:xml:ns:xmpp-sasl'/>`); err != nil {
		return nil
	}

	dec = xml.NewDecoder(r)
	if !awaitStreamHeader(dec) {
		return nil
	}
	if err := send(nc, hubStreamHeader+
		`<stream:features><bind xmlns='urn:ietf:params:xml:ns:xmpp-bind'/><session xmlns='urn:ietf:params:xml:ns:xmpp-session'/></stream:features>`); err != nil {
		return nil
	}

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil
		}
		switch t := tok.(type) {
		case xml.EndElement:
			h.record(func() { sess.Closed = true })
			_ = send(nc, "</stream:stream>")
			return nil
		case xml.StartElement:
			var st clientStanza
			if err := dec.DecodeElement(&st, &t); err != nil {
				return nil
			}
			if err := h.handle(session, sess, nc, st); err != nil {
				return err
			}
		}
	}
}

func (h *FakeHub) handle(session int, sess *HubSession, nc net.Conn, st clientStanza) error {
	switch st.XMLName.Local {
	case "presence":
		h.record(func() { sess.Presences = append(sess.Presences, st.Type) })
		if st.Type == "" && !h.opts.SkipPresenceAck {
			_ = send(nc, "<iq/>")
		}
		return nil
	case "iq":
	default:
		return fmt.Errorf("session %d: unexpected <%s>", session, st.XMLName.Local)
	}

	switch {
	case st.Type == "error" || st.Error != nil:
		h.record(func() { sess.Errors = append(sess.Errors, st.ID) })
		return nil
	case st.Bind != nil:
		h.record(func() { sess.Resource = st.Bind.Resource })
		jid := "1111/" + st.Bind.Resource
		if h.opts.FullBindJID {
			jid = "client@" + jid
		}
		_ = send(nc, fmt.Sprintf(
			`<iq id='%s' type='result'><bind xmlns='urn:ietf:params:xml:ns:xmpp-bind'><jid>%s</jid></bind></iq>`, st.ID, jid))
		return nil
	case st.Session != nil:
		_ = send(nc, fmt.Sprintf(`<iq id='%s' type='result'></iq>`, st.ID))
		return nil
	}

	req := HubRequest{ID: st.ID, Type: st.Type, From: st.From}
	if st.OA != nil {
		req.Payload = "oa"
		req.Mime = st.OA.Mime
		req.Body = strings.TrimSpace(st.OA.Body)
	} else if len(st.Any) > 0 {
		req.Payload = st.Any[0].XMLName.Local
	}
	h.record(func() { sess.Requests = append(sess.Requests, req) })

	if h.opts.OnRequest == nil {
		return nil
	}
	for _, reply := range h.opts.OnRequest(session, req) {
		// A client that hangs up mid-script ends the session quietly.
		if err := send(nc, reply); err != nil {
			break
		}
	}
	return nil
}

func (h *FakeHub) record(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn()
}

func awaitStreamHeader(dec *xml.Decoder) bool {
	start, ok := nextStart(dec)
	return ok && start.Name.Local == "stream"
}

func nextStart(dec *xml.Decoder) (xml.StartElement, bool) {
	for {
		tok, err := dec.Token()
		if err != nil {
			return xml.StartElement{}, false
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start, true
		}
	}
}

func send(w io.Writer, s string) error {
	_, err := io.WriteString(w, s)
	return err
}

// OAReply renders a vendor command reply.
func OAReply(id, mime, code, errorString, body string) string {
	return fmt.Sprintf(
		`<iq id="%s" to="client@1111/auth" type="get"><oa errorcode='%s' errorstring='%s' mime='%s' xmlns='connect.logitech.com'><![CDATA[%s]]></oa></iq>`,
		id, code, errorString, mime, body)
}

// PairReply renders a successful pairing reply handing out identity.
func PairReply(id, identity string) string {
	body := "serverIdentity=" + HubIdentity + ":hubId=106:identity=" + identity +
		`:status=succeeded:protocolVersion={XMPP="1.0", HTTP="1.0", RF="1.0", WEBSOCKET="1.0"}` +
		`:hubProfiles={Harmony="2.0"}:productId=Pimento:friendlyName=ia`
	return OAReply(id, MimePair, "200", "OK", body)
}

// ContinuationReply renders an intermediate "still working" reply.
func ContinuationReply(id, mime string) string {
	return OAReply(id, mime, "100", "Continue", "")
}

// AcceptAll answers pairing with HubIdentity and every other command
// envelope with a 200.
func AcceptAll(_ int, req HubRequest) []string {
	switch req.Mime {
	case MimePair:
		return []string{PairReply(req.ID, HubIdentity)}
	case "":
		return nil
	default:
		return []string{OAReply(req.ID, req.Mime, "200", "OK", "")}
	}
}
