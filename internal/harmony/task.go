// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package harmony drives a Logitech Harmony hub: it pairs as a guest to
// obtain session credentials, logs in with them and sends one command.
package harmony

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	xglog "github.com/ManuGH/hubctl/internal/log"
	"github.com/ManuGH/hubctl/internal/metrics"
	"github.com/ManuGH/hubctl/internal/telemetry"
	"github.com/ManuGH/hubctl/internal/xmpp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultDomain         = "harmonyhub"
	defaultGuestUser      = "guest@" + credentialDomain
	defaultGuestPassword  = "gatorade."
	defaultAuthResource   = "auth"
	defaultMainResource   = "main"
	defaultReplyTimeout   = 5 * time.Second
	defaultCommandTimeout = 30 * time.Second
	defaultResolveTimeout = 30 * time.Second

	tracerName = "hubctl.harmony"
)

// Resolver looks up the addresses of a host name.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Options configures a PowerOffTask. Zero values select the hub defaults.
type Options struct {
	Host string
	Port int
	// Domain is the stream's "to" attribute.
	Domain string

	GuestUser     string
	GuestPassword string
	AuthResource  string
	MainResource  string

	// ReplyTimeout bounds the wait for the pair reply.
	ReplyTimeout time.Duration
	// CommandTimeout bounds the wait for the command reply.
	CommandTimeout   time.Duration
	DialTimeout      time.Duration
	HandshakeTimeout time.Duration
	ResolveTimeout   time.Duration

	// ActivityID is the activity started by the command. Zero selects
	// DeviceAll, which powers everything off.
	ActivityID int
	// Command overrides the command sent in the second phase.
	Command func() (*OARequest, error)

	// DryRun stops after the credentials have been obtained.
	DryRun bool

	// Registry resolves payload providers. Defaults to a private registry
	// with the hub providers installed.
	Registry *xmpp.Registry
	Dialer   xmpp.Dialer
	Resolver Resolver
	Listener Listener
	Logger   *zerolog.Logger
}

func normalizeOptions(opts Options) Options {
	if opts.Port == 0 {
		opts.Port = xmpp.DefaultPort
	}
	if opts.Domain == "" {
		opts.Domain = defaultDomain
	}
	if opts.GuestUser == "" {
		opts.GuestUser = defaultGuestUser
	}
	if opts.GuestPassword == "" {
		opts.GuestPassword = defaultGuestPassword
	}
	if opts.AuthResource == "" {
		opts.AuthResource = defaultAuthResource
	}
	if opts.MainResource == "" {
		opts.MainResource = defaultMainResource
	}
	if opts.ReplyTimeout <= 0 {
		opts.ReplyTimeout = defaultReplyTimeout
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = defaultCommandTimeout
	}
	if opts.ResolveTimeout <= 0 {
		opts.ResolveTimeout = defaultResolveTimeout
	}
	if opts.ActivityID == 0 {
		opts.ActivityID = DeviceAll
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	if opts.Resolver == nil {
		opts.Resolver = net.DefaultResolver
	}
	return opts
}

// PowerOffTask runs one two-phase session against a hub. Run may be called
// again after it returns; once Stop has been called every Run fails with
// ErrCancelled.
type PowerOffTask struct {
	opts   Options
	logger zerolog.Logger

	// mu serialises request/reply cycles.
	mu sync.Mutex

	stopped    atomic.Bool
	stopCtx    context.Context
	stopCancel context.CancelFunc

	stateMu sync.Mutex
	state   State
}

// NewPowerOffTask creates a task for the hub at opts.Host.
func NewPowerOffTask(opts Options) *PowerOffTask {
	opts = normalizeOptions(opts)
	logger := xglog.WithComponent("harmony")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	stopCtx, stopCancel := context.WithCancel(context.Background())
	t := &PowerOffTask{
		opts:       opts,
		logger:     logger.With().Str(xglog.FieldHub, opts.Host).Logger(),
		stopCtx:    stopCtx,
		stopCancel: stopCancel,
	}
	t.progress(StepScheduled)
	return t
}

// Stop cancels the task. It never blocks; an in-flight Run returns
// ErrCancelled at its next checkpoint or blocking read.
func (t *PowerOffTask) Stop() {
	if t.stopped.CompareAndSwap(false, true) {
		t.logger.Info().Str(xglog.FieldEvent, "harmony.stop").Msg("power-off task stopped")
	}
	t.stopCancel()
}

// Stopped reports whether Stop has been called.
func (t *PowerOffTask) Stopped() bool {
	return t.stopped.Load()
}

// State returns the current session state.
func (t *PowerOffTask) State() State {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	return t.state
}

// Run executes the session and blocks until it has been torn down. It
// returns nil on success and an error wrapping one of the package
// sentinels otherwise.
func (t *PowerOffTask) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer context.AfterFunc(t.stopCtx, cancel)()

	sessionID := xmpp.NewID()
	ctx = xglog.ContextWithSessionID(ctx, sessionID)
	logger := t.logger.With().Str(xglog.FieldSessionID, sessionID).Logger()

	ctx, span := telemetry.Tracer(tracerName).Start(ctx, "harmony.poweroff",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(telemetry.HubAddrKey, t.opts.Host),
			attribute.Bool(telemetry.HubDryRunKey, t.opts.DryRun),
		))
	started := time.Now()
	defer func() { t.finish(logger, span, started, err) }()

	t.resetState()
	if err := t.checkStopped(ctx, "run"); err != nil {
		return err
	}
	t.progress(StepStarted)
	logger.Info().Str(xglog.FieldEvent, "harmony.start").Bool("dry_run", t.opts.DryRun).Msg("power-off session started")

	addr, err := t.resolve(ctx)
	if err != nil {
		return err
	}
	t.progress(StepResolved)

	creds, err := t.obtainCredentials(ctx, logger, addr)
	if err != nil {
		return err
	}
	if t.opts.DryRun {
		return nil
	}
	return t.sendCommand(ctx, logger, addr, creds)
}

func (t *PowerOffTask) finish(logger zerolog.Logger, span trace.Span, started time.Time, err error) {
	defer span.End()
	elapsed := time.Since(started)

	outcome := "done"
	switch {
	case err == nil:
		t.setState(StateDone)
		if t.opts.DryRun {
			outcome = "dry_run"
		} else {
			t.progress(StepDone)
		}
		logger.Info().Str(xglog.FieldEvent, "harmony.done").Dur("duration", elapsed).Msg("power-off session finished")
	case IsCancelled(err):
		outcome = "cancelled"
		t.setState(StateCancelled)
		logger.Info().Str(xglog.FieldEvent, "harmony.cancelled").Err(err).Msg("power-off session cancelled")
	default:
		outcome = "failed"
		t.setState(StateFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(telemetry.ErrorAttributes(sentinelName(err))...)
		logger.Error().Str(xglog.FieldEvent, "harmony.failed").Err(err).Msg("power-off session failed")
	}
	span.SetAttributes(attribute.String(telemetry.SessionOutcomeKey, outcome))
	metrics.RecordSession(outcome, elapsed)
}

// resolve returns the address to dial. Literal IPs are used as is.
func (t *PowerOffTask) resolve(ctx context.Context) (string, error) {
	host := t.opts.Host
	if host == "" {
		return "", &HubError{Sentinel: ErrTransport, Operation: "resolve", Err: errors.New("no hub host configured")}
	}
	if net.ParseIP(host) == nil {
		rctx, cancel := context.WithTimeout(ctx, t.opts.ResolveTimeout)
		defer cancel()
		addrs, err := t.opts.Resolver.LookupHost(rctx, host)
		if err != nil {
			return "", classify("resolve", err)
		}
		if len(addrs) == 0 {
			return "", &HubError{Sentinel: ErrTransport, Operation: "resolve", Err: fmt.Errorf("no addresses for %q", host)}
		}
		host = addrs[0]
	}
	return net.JoinHostPort(host, strconv.Itoa(t.opts.Port)), nil
}

// obtainCredentials is the first phase: log in as guest and pair.
func (t *PowerOffTask) obtainCredentials(ctx context.Context, logger zerolog.Logger, addr string) (creds Credentials, err error) {
	ctx, span := t.startPhase(ctx, addr, "auth", t.opts.AuthResource)
	defer endPhase(span, &err)

	if err := t.checkStopped(ctx, "connect"); err != nil {
		return Credentials{}, err
	}
	t.setState(StateConnecting)
	conn, err := t.dial(ctx, addr, logger)
	if err != nil {
		return Credentials{}, classify("connect", err)
	}
	defer func() {
		if err == nil {
			t.setState(StateDisconnecting)
		}
		t.disconnect(logger, conn, t.opts.AuthResource)
	}()
	t.progress(StepAuthConnected)

	if err := t.checkStopped(ctx, "login"); err != nil {
		return Credentials{}, err
	}
	t.setState(StateAuthenticating)
	if err := conn.Login(ctx, t.opts.GuestUser, t.opts.GuestPassword, t.opts.AuthResource); err != nil {
		return Credentials{}, classify("guest login", err)
	}

	reply, err := t.dispatch(ctx, conn, NewPairRequest(), t.opts.ReplyTimeout, StateAwaitingCredentialReply)
	if err != nil {
		return Credentials{}, err
	}
	pair, ok := reply.Value.(*PairReply)
	if !ok {
		return Credentials{}, protocolError("pair reply decoded as %T", reply.Value)
	}
	creds, err = pair.Credentials()
	if err != nil {
		return Credentials{}, err
	}
	logger.Debug().Str("friendly_name", pair.FriendlyName).Str("credentials", creds.String()).Msg("session credentials obtained")
	t.progress(StepAuthDone)
	return creds, nil
}

// sendCommand is the second phase: log in with creds and send the command.
func (t *PowerOffTask) sendCommand(ctx context.Context, logger zerolog.Logger, addr string, creds Credentials) (err error) {
	ctx, span := t.startPhase(ctx, addr, "main", t.opts.MainResource)
	defer endPhase(span, &err)

	if err := t.checkStopped(ctx, "reconnect"); err != nil {
		return err
	}
	t.setState(StateReconnecting)
	conn, err := t.dial(ctx, addr, logger)
	if err != nil {
		return classify("reconnect", err)
	}
	defer t.disconnect(logger, conn, t.opts.MainResource)
	t.progress(StepMainConnected)

	if err := t.checkStopped(ctx, "login"); err != nil {
		return err
	}
	t.setState(StateLoggingIn)
	if err := conn.Login(ctx, creds.Username, creds.Password, t.opts.MainResource); err != nil {
		return classify("login", err)
	}

	req, err := t.command()
	if err != nil {
		return err
	}
	t.setState(StateSendingCommand)
	_, err = t.dispatch(ctx, conn, req, t.opts.CommandTimeout, StateAwaitingCommandReply)
	return err
}

func (t *PowerOffTask) command() (*OARequest, error) {
	if t.opts.Command != nil {
		return t.opts.Command()
	}
	return NewStartActivityRequest(t.opts.ActivityID), nil
}

func (t *PowerOffTask) dial(ctx context.Context, addr string, logger zerolog.Logger) (*xmpp.Conn, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, err
	}
	return Dial(ctx, xmpp.Config{
		Host:             host,
		Port:             port,
		Domain:           t.opts.Domain,
		DialTimeout:      t.opts.DialTimeout,
		HandshakeTimeout: t.opts.HandshakeTimeout,
		Registry:         t.opts.Registry,
		Dialer:           t.opts.Dialer,
		Logger:           &logger,
	})
}

// disconnect closes conn. Teardown failures are logged and swallowed.
func (t *PowerOffTask) disconnect(logger zerolog.Logger, conn *xmpp.Conn, resource string) {
	if err := conn.Close(); err != nil {
		logger.Warn().Err(err).Str(xglog.FieldResource, resource).Msg("hub connection did not close cleanly")
		return
	}
	logger.Debug().Str(xglog.FieldResource, resource).Msg("hub connection closed")
}

// checkStopped fails with ErrCancelled once Stop has been called or ctx has
// been cancelled.
func (t *PowerOffTask) checkStopped(ctx context.Context, op string) error {
	if t.stopped.Load() {
		return &HubError{Sentinel: ErrCancelled, Operation: op}
	}
	if err := ctx.Err(); errors.Is(err, context.Canceled) {
		return &HubError{Sentinel: ErrCancelled, Operation: op, Err: err}
	}
	return nil
}

func (t *PowerOffTask) progress(step int) {
	if t.opts.Listener == nil {
		return
	}
	total := StepDone
	if t.opts.DryRun {
		total = StepAuthDone
	}
	t.opts.Listener.Progress(step, total)
}

func (t *PowerOffTask) resetState() {
	t.stateMu.Lock()
	t.state = StateIdle
	t.stateMu.Unlock()
}

func (t *PowerOffTask) setState(to State) {
	t.stateMu.Lock()
	from := t.state
	if from == to || from.Terminal() {
		t.stateMu.Unlock()
		return
	}
	t.state = to
	t.stateMu.Unlock()

	metrics.RecordStateTransition(from.String(), to.String())
	t.logger.Debug().
		Str(xglog.FieldOldState, from.String()).
		Str(xglog.FieldNewState, to.String()).
		Msg("session state changed")
}

func (t *PowerOffTask) startPhase(ctx context.Context, addr, phase, resource string) (context.Context, trace.Span) {
	return telemetry.Tracer(tracerName).Start(ctx, "harmony.phase."+phase,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(telemetry.PhaseAttributes(addr, phase, resource)...))
}

func endPhase(span trace.Span, errp *error) {
	if err := *errp; err != nil && !IsCancelled(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func sentinelName(err error) string {
	switch {
	case errors.Is(err, ErrAuthentication):
		return "authentication"
	case errors.Is(err, ErrProtocol):
		return "protocol"
	case errors.Is(err, ErrNoReply):
		return "no_reply"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	default:
		return "transport"
	}
}
