// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package xmpp implements the small subset of the XMPP client protocol the
// hub speaks: stream setup, SASL PLAIN, resource binding and IQ exchange.
// There is no TLS, no roster and no reconnection.
package xmpp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	xglog "github.com/ManuGH/hubctl/internal/log"
	"github.com/rs/zerolog"
	"golang.org/x/net/html/charset"
)

const (
	// DefaultPort is the client port of the hub.
	DefaultPort = 5222

	defaultTimeout = 5 * time.Second
)

// Dialer opens the underlying byte stream.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// OutboundFilter decides whether a stanza is written. Returning false
// silently drops it.
type OutboundFilter func(Stanza) bool

// Config configures a connection.
type Config struct {
	Host   string
	Port   int
	Domain string

	// DialTimeout bounds the TCP connect.
	DialTimeout time.Duration
	// HandshakeTimeout bounds each handshake step and each bind/session reply.
	HandshakeTimeout time.Duration

	// Registry resolves IQ payload providers. Defaults to DefaultRegistry.
	Registry *Registry
	// ParseHook intercepts inbound element parsing.
	ParseHook ParseHook
	// Outbound filters every stanza before it is written.
	Outbound OutboundFilter
	// BindFilter correlates the bind reply. Defaults to IDFilter.
	BindFilter func(id string) Filter

	Dialer Dialer
	Logger *zerolog.Logger
}

func (cfg Config) normalize() Config {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Domain == "" {
		cfg.Domain = cfg.Host
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultTimeout
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultTimeout
	}
	if cfg.Registry == nil {
		cfg.Registry = DefaultRegistry
	}
	if cfg.BindFilter == nil {
		cfg.BindFilter = IDFilter
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &net.Dialer{}
	}
	return cfg
}

// Addr returns the host:port the config dials.
func (cfg Config) Addr() string {
	port := cfg.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(cfg.Host, strconv.Itoa(port))
}

type streamFeatures struct {
	Mechanisms []string  `xml:"mechanisms>mechanism"`
	Bind       *struct{} `xml:"bind"`
	Session    *struct{} `xml:"session"`
}

func (f streamFeatures) hasMechanism(name string) bool {
	for _, m := range f.Mechanisms {
		if m == name {
			return true
		}
	}
	return false
}

// Conn is a client stream to the hub.
type Conn struct {
	cfg    Config
	logger zerolog.Logger
	parse  ParseFunc

	netConn  net.Conn
	reader   *bufio.Reader
	dec      *xml.Decoder
	features streamFeatures

	writeMu sync.Mutex

	mu         sync.Mutex
	collectors map[*Collector]struct{}
	jid        JID
	loggedIn   bool
	closed     bool
	reading    bool
	err        error

	done     chan struct{}
	doneOnce sync.Once
}

// Dial connects to cfg.Addr() and opens the initial stream.
func Dial(ctx context.Context, cfg Config) (*Conn, error) {
	cfg = cfg.normalize()

	logger := xglog.WithComponent("xmpp")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	nc, err := cfg.Dialer.DialContext(dialCtx, "tcp", cfg.Addr())
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Addr(), err)
	}

	c := newConn(cfg, nc, logger)
	if err := c.handshake(ctx, c.openStream); err != nil {
		_ = nc.Close()
		return nil, err
	}
	c.logger.Debug().Str("addr", cfg.Addr()).Msg("stream opened")
	return c, nil
}

func newConn(cfg Config, nc net.Conn, logger zerolog.Logger) *Conn {
	c := &Conn{
		cfg:        cfg,
		logger:     logger,
		netConn:    nc,
		reader:     bufio.NewReader(nc),
		collectors: make(map[*Collector]struct{}),
		done:       make(chan struct{}),
	}
	generic := parser{registry: cfg.Registry}.parse
	c.parse = generic
	if cfg.ParseHook != nil {
		hook := cfg.ParseHook
		c.parse = func(el *Element) (Stanza, error) { return hook(el, generic) }
	}
	return c
}

// JID returns the address bound during Login.
func (c *Conn) JID() JID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.jid
}

// Err returns the terminal error of the stream, if it has ended.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil && c.closed {
		return ErrNotConnected
	}
	return c.err
}

// Login authenticates with SASL PLAIN, binds resource and announces presence.
func (c *Conn) Login(ctx context.Context, username, password, resource string) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrNotConnected
	case c.loggedIn || c.reading:
		c.mu.Unlock()
		return errors.New("xmpp: already logged in")
	}
	c.mu.Unlock()

	if err := c.handshake(ctx, func() error { return c.authenticate(username, password) }); err != nil {
		return err
	}
	if err := c.handshake(ctx, c.openStream); err != nil {
		return err
	}

	c.mu.Lock()
	c.reading = true
	c.mu.Unlock()
	go c.readLoop()

	jid, err := c.bind(ctx, resource)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.jid = jid
	c.mu.Unlock()

	if c.features.Session != nil {
		if err := c.establishSession(ctx); err != nil {
			return err
		}
	}
	if err := c.Send(ctx, &Presence{}); err != nil {
		return err
	}

	c.mu.Lock()
	c.loggedIn = true
	c.mu.Unlock()
	c.logger.Debug().Str("jid", jid.String()).Msg("logged in")
	return nil
}

// handshake runs step with the socket deadline bound to ctx and the
// handshake timeout.
func (c *Conn) handshake(ctx context.Context, step func() error) error {
	deadline := time.Now().Add(c.cfg.HandshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.netConn.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() { _ = c.netConn.SetDeadline(time.Now()) })
	err := step()
	stop()
	_ = c.netConn.SetDeadline(time.Time{})
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ctx.Err(), err)
	}
	return err
}

func (c *Conn) openStream() error {
	var hdr bytes.Buffer
	hdr.WriteString("<?xml version='1.0'?><stream:stream to='")
	_ = xml.EscapeText(&hdr, []byte(c.cfg.Domain))
	hdr.WriteString("' xmlns='" + NSClient + "' xmlns:stream='" + NSStream + "' version='1.0'>")
	if err := c.writeRaw(hdr.Bytes()); err != nil {
		return err
	}

	c.dec = xml.NewDecoder(c.reader)
	c.dec.CharsetReader = charset.NewReaderLabel
	for {
		tok, err := c.dec.Token()
		if err != nil {
			return fmt.Errorf("%w: waiting for stream header: %w", ErrStreamClosed, err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			if start.Name.Space != NSStream || start.Name.Local != "stream" {
				return fmt.Errorf("%w: <%s> instead of stream header", ErrUnexpectedElement, start.Name.Local)
			}
			break
		}
	}

	el, err := c.nextElement()
	if err != nil {
		return err
	}
	if el.XMLName.Local != "features" {
		return fmt.Errorf("%w: <%s> instead of stream features", ErrUnexpectedElement, el.XMLName.Local)
	}
	var features streamFeatures
	if err := xml.Unmarshal(wrapInner(el), &features); err != nil {
		return fmt.Errorf("%w: stream features: %w", ErrParse, err)
	}
	c.features = features
	return nil
}

func (c *Conn) authenticate(username, password string) error {
	if !c.features.hasMechanism("PLAIN") {
		return fmt.Errorf("%w: server does not offer PLAIN", ErrSASLFailure)
	}
	token := base64.StdEncoding.EncodeToString([]byte("\x00" + username + "\x00" + password))
	if err := c.writeRaw([]byte("<auth xmlns='" + NSSASL + "' mechanism='PLAIN'>" + token + "</auth>")); err != nil {
		return err
	}

	el, err := c.nextElement()
	if err != nil {
		return err
	}
	switch el.XMLName.Local {
	case "success":
		return nil
	case "failure":
		return fmt.Errorf("%w: %s", ErrSASLFailure, firstChild(el))
	default:
		return fmt.Errorf("%w: <%s> during sasl", ErrUnexpectedElement, el.XMLName.Local)
	}
}

func (c *Conn) bind(ctx context.Context, resource string) (JID, error) {
	req := &IQ{Header: Header{ID: NewID()}, Type: IQSet, Payload: &Bind{Resource: resource}}
	reply, err := c.exchange(ctx, req, c.cfg.BindFilter(req.ID))
	if err != nil {
		return JID{}, fmt.Errorf("bind resource %q: %w", resource, err)
	}
	if b, ok := reply.Payload.(*Bind); ok && !b.Bound.IsZero() {
		return b.Bound, nil
	}
	return JID{Domain: c.cfg.Domain, Resource: resource}, nil
}

func (c *Conn) establishSession(ctx context.Context) error {
	req := &IQ{Header: Header{ID: NewID()}, Type: IQSet, Payload: &Session{}}
	if _, err := c.exchange(ctx, req, IDFilter(req.ID)); err != nil {
		return fmt.Errorf("establish session: %w", err)
	}
	return nil
}

// exchange sends req and waits for the first reply accepted by f.
func (c *Conn) exchange(ctx context.Context, req *IQ, f Filter) (*IQ, error) {
	col := c.NewCollector(f)
	defer col.Cancel()

	waitCtx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	defer cancel()

	if err := c.Send(waitCtx, req); err != nil {
		return nil, err
	}
	for {
		s, err := col.Next(waitCtx)
		if err != nil {
			return nil, err
		}
		iq, ok := s.(*IQ)
		if !ok {
			continue
		}
		if iq.Type == IQError && iq.Error != nil {
			return nil, iq.Error
		}
		return iq, nil
	}
}

// Send writes s unless the outbound filter drops it.
func (c *Conn) Send(ctx context.Context, s Stanza) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrNotConnected
	}

	if c.cfg.Outbound != nil && !c.cfg.Outbound(s) {
		c.logger.Debug().Str(xglog.FieldStanzaID, s.StanzaHeader().ID).Msg("outbound stanza dropped by filter")
		return nil
	}

	data, err := xml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal stanza: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if d, ok := ctx.Deadline(); ok {
		_ = c.netConn.SetWriteDeadline(d)
		defer func() { _ = c.netConn.SetWriteDeadline(time.Time{}) }()
	}
	return c.write(data)
}

// writeRaw writes handshake bytes outside the stanza path.
func (c *Conn) writeRaw(p []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.write(p)
}

// write requires writeMu.
func (c *Conn) write(p []byte) error {
	if _, err := c.netConn.Write(p); err != nil {
		return fmt.Errorf("%w: write: %w", ErrStreamClosed, err)
	}
	return nil
}

// nextElement reads the next complete top-level element of the stream.
func (c *Conn) nextElement() (*Element, error) {
	for {
		tok, err := c.dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStreamClosed, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			el := &Element{}
			if err := c.dec.DecodeElement(el, &t); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrStreamClosed, err)
			}
			if t.Name.Space == NSStream && t.Name.Local == "error" {
				return nil, fmt.Errorf("%w: stream error %s", ErrStreamClosed, firstChild(el))
			}
			return el, nil
		case xml.EndElement:
			return nil, fmt.Errorf("%w: closed by server", ErrStreamClosed)
		}
	}
}

func (c *Conn) readLoop() {
	for {
		el, err := c.nextElement()
		if err != nil {
			c.fail(err)
			return
		}
		s, err := c.parse(el)
		if err != nil {
			c.logger.Error().Err(err).Msg("inbound stanza could not be parsed")
			c.fail(err)
			_ = c.netConn.Close()
			return
		}
		c.dispatch(s)
	}
}

func (c *Conn) dispatch(s Stanza) {
	c.mu.Lock()
	cols := make([]*Collector, 0, len(c.collectors))
	for col := range c.collectors {
		cols = append(cols, col)
	}
	c.mu.Unlock()

	for _, col := range cols {
		if col.filter(s) {
			col.deliver(s)
		}
	}

	// No request handlers are registered, so every inbound request is
	// answered as unsupported.
	if iq, ok := s.(*IQ); ok && iq.IsRequest() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.HandshakeTimeout)
		defer cancel()
		if err := c.Send(ctx, iq.ErrorReply(ConditionServiceUnavailable, "cancel")); err != nil {
			c.logger.Debug().Err(err).Msg("could not answer inbound request")
		}
	}
}

func (c *Conn) fail(err error) {
	c.mu.Lock()
	if c.err == nil {
		if c.closed {
			err = fmt.Errorf("%w: closed by client", ErrStreamClosed)
		}
		c.err = err
	}
	c.mu.Unlock()
	c.doneOnce.Do(func() { close(c.done) })
}

// Collectors reports the number of registered collectors.
func (c *Conn) Collectors() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.collectors)
}

// Close ends the stream and the socket and waits for the read loop to exit.
// It is safe to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	loggedIn := c.loggedIn
	reading := c.reading
	c.mu.Unlock()

	var errs []error
	if loggedIn {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.HandshakeTimeout)
		if err := c.Send(ctx, &Presence{Type: "unavailable"}); err != nil {
			errs = append(errs, err)
		}
		cancel()
	}

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	_ = c.netConn.SetWriteDeadline(time.Now().Add(c.cfg.HandshakeTimeout))
	if err := c.writeRaw([]byte("</stream:stream>")); err != nil {
		errs = append(errs, err)
	}
	if err := c.netConn.Close(); err != nil {
		errs = append(errs, err)
	}
	if reading {
		<-c.done
	} else {
		c.fail(ErrNotConnected)
	}
	return errors.Join(errs...)
}

func wrapInner(el *Element) []byte {
	b := make([]byte, 0, len(el.Inner)+7)
	b = append(b, "<x>"...)
	b = append(b, el.Inner...)
	return append(b, "</x>"...)
}

// firstChild returns the local name of the first child element, which is
// where stream and sasl errors carry their condition.
func firstChild(el *Element) string {
	dec := xml.NewDecoder(bytes.NewReader(el.Inner))
	for {
		tok, err := dec.Token()
		if err != nil {
			return "unknown"
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Local
		}
	}
}
