// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package trigger turns idle events into deferred power-off sessions.
package trigger

import (
	"context"
	"sync"
	"time"

	"github.com/ManuGH/hubctl/internal/config"
	"github.com/ManuGH/hubctl/internal/harmony"
	xglog "github.com/ManuGH/hubctl/internal/log"
	"github.com/ManuGH/hubctl/internal/metrics"
	"github.com/ManuGH/hubctl/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

const (
	tracerName         = "hubctl.trigger"
	defaultNetworkPoll = 5 * time.Second
	resultSuccess      = "success"
	resultFailure      = "failure"
	resultSuperseded   = "superseded"
	resultAborted      = "aborted"
	eventIdleStarted   = "idle_started"
	eventIdleStopped   = "idle_stopped"
	eventRunNow        = "run_now"
	eventIgnored       = "ignored"
	jobTypeScheduled   = "scheduled"
	jobTypeManual      = "manual"
	jobTypeTest        = "test"
)

// Options configures a Scheduler.
type Options struct {
	Config config.AppConfig
	// Factory creates the task of each run. Defaults to NewHarmonyTask.
	Factory TaskFactory
	// Connectivity gates scheduled runs when Trigger.RequireNetwork is set.
	// Defaults to NewInterfaceConnectivity.
	Connectivity Connectivity
	// NetworkPoll is the interval between connectivity checks.
	NetworkPoll time.Duration
}

// Scheduler defers one power-off run per idle period. A new idle event
// replaces the pending run; the end of the idle period cancels it.
type Scheduler struct {
	factory     TaskFactory
	conn        Connectivity
	networkPoll time.Duration
	logger      zerolog.Logger
	limiter     *rate.Limiter

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	// runMu keeps at most one session talking to the hub.
	runMu sync.Mutex

	mu      sync.Mutex
	cfg     config.AppConfig
	pending *job
	lastRun time.Time
	lastErr error
}

type job struct {
	id     string
	cancel context.CancelFunc
	task   Task
	// reason is the result recorded when the job ends before its task runs.
	reason string
}

// New creates a scheduler. Close releases it.
func New(opts Options) *Scheduler {
	if opts.Factory == nil {
		opts.Factory = NewHarmonyTask
	}
	if opts.Connectivity == nil {
		opts.Connectivity = NewInterfaceConnectivity()
	}
	if opts.NetworkPoll <= 0 {
		opts.NetworkPoll = defaultNetworkPoll
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		factory:     opts.Factory,
		conn:        opts.Connectivity,
		networkPoll: opts.NetworkPoll,
		logger:      xglog.WithComponent("trigger"),
		limiter:     rate.NewLimiter(runLimit(opts.Config.Trigger.RunsPerHour), 1),
		baseCtx:     ctx,
		baseCancel:  cancel,
		cfg:         opts.Config,
	}
	metrics.SetTriggerEnabled(opts.Config.Trigger.Enabled)
	metrics.SetTriggerPending(false)
	return s
}

func runLimit(perHour int) rate.Limit {
	if perHour <= 0 {
		return rate.Inf
	}
	return rate.Every(time.Hour / time.Duration(perHour))
}

// Config returns the configuration the scheduler currently applies.
func (s *Scheduler) Config() config.AppConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Apply switches to cfg. Disabling the trigger cancels the pending run; a
// changed delay applies from the next idle event.
func (s *Scheduler) Apply(cfg config.AppConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.cfg
	s.cfg = cfg
	if old.Trigger.RunsPerHour != cfg.Trigger.RunsPerHour {
		s.limiter.SetLimit(runLimit(cfg.Trigger.RunsPerHour))
	}
	if old.Trigger.Enabled != cfg.Trigger.Enabled {
		metrics.SetTriggerEnabled(cfg.Trigger.Enabled)
		s.logger.Info().
			Str(xglog.FieldEvent, "trigger.enabled_changed").
			Bool("enabled", cfg.Trigger.Enabled).
			Msg("idle trigger toggled")
	}
	if !cfg.Trigger.Enabled {
		s.abandonLocked(resultAborted)
	}
}

// Watch applies every configuration received on updates until ctx ends.
func (s *Scheduler) Watch(ctx context.Context, updates <-chan config.AppConfig) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case cfg := <-updates:
			s.Apply(cfg)
		}
	}
}

// IdleStarted schedules a power-off after the configured delay, replacing
// any pending one. ctx only carries log correlation; the run outlives it.
func (s *Scheduler) IdleStarted(ctx context.Context) {
	logger := xglog.WithContext(ctx, s.logger)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cfg.Trigger.Enabled {
		metrics.IncTriggerEvent(eventIgnored)
		logger.Debug().Str(xglog.FieldEvent, "trigger.ignored").Msg("idle trigger disabled, event ignored")
		return
	}
	if s.baseCtx.Err() != nil {
		metrics.IncTriggerEvent(eventIgnored)
		return
	}
	metrics.IncTriggerEvent(eventIdleStarted)
	s.abandonLocked(resultSuperseded)

	jobCtx, cancel := context.WithCancel(s.baseCtx)
	j := &job{id: uuid.NewString(), cancel: cancel}
	s.pending = j
	metrics.SetTriggerPending(true)

	cfg := s.cfg
	logger.Info().
		Str(xglog.FieldEvent, "trigger.scheduled").
		Str(xglog.FieldJobID, j.id).
		Dur("delay", cfg.Trigger.Delay).
		Msg("power-off scheduled")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runScheduled(xglog.ContextWithJobID(jobCtx, j.id), j, cfg)
	}()
}

// IdleStopped cancels the pending run, stopping its session if it has
// already started.
func (s *Scheduler) IdleStopped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	metrics.IncTriggerEvent(eventIdleStopped)
	if s.pending != nil {
		s.logger.Info().
			Str(xglog.FieldEvent, "trigger.cancelled").
			Str(xglog.FieldJobID, s.pending.id).
			Msg("idle period ended, power-off cancelled")
	}
	s.abandonLocked(resultAborted)
}

// abandonLocked cancels the pending job. s.mu must be held.
func (s *Scheduler) abandonLocked(reason string) {
	j := s.pending
	if j == nil {
		return
	}
	s.pending = nil
	metrics.SetTriggerPending(false)
	j.reason = reason
	j.cancel()
	if j.task != nil {
		j.task.Stop()
	}
}

func (s *Scheduler) runScheduled(ctx context.Context, j *job, cfg config.AppConfig) {
	defer j.cancel()
	logger := xglog.WithContext(ctx, s.logger)

	err := s.awaitPreconditions(ctx, cfg)

	s.mu.Lock()
	if err != nil || s.pending != j {
		reason := j.reason
		if s.pending == j {
			s.pending = nil
			metrics.SetTriggerPending(false)
		}
		s.mu.Unlock()
		if reason == "" {
			reason = resultAborted
		}
		metrics.IncTriggerJob(reason)
		logger.Debug().Str(xglog.FieldEvent, "trigger.discarded").Str("reason", reason).Msg("scheduled power-off discarded")
		return
	}
	task := s.factory(cfg, false)
	j.task = task
	s.mu.Unlock()

	err = s.execute(ctx, task, jobTypeScheduled)

	s.mu.Lock()
	if s.pending == j {
		s.pending = nil
		metrics.SetTriggerPending(false)
	}
	s.mu.Unlock()

	if err != nil {
		logger.Warn().Err(err).Str(xglog.FieldEvent, "trigger.failed").Msg("scheduled power-off failed")
	}
}

// awaitPreconditions waits for the delay, the network and a limiter token.
func (s *Scheduler) awaitPreconditions(ctx context.Context, cfg config.AppConfig) error {
	timer := time.NewTimer(cfg.Trigger.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	if cfg.Trigger.RequireNetwork {
		if err := waitOnline(ctx, s.conn, s.networkPoll); err != nil {
			return err
		}
	}
	return s.limiter.Wait(ctx)
}

// RunNow runs a session immediately and returns its outcome. A dry run
// stops after the credential phase.
func (s *Scheduler) RunNow(ctx context.Context, dryRun bool) error {
	metrics.IncTriggerEvent(eventRunNow)
	jobType := jobTypeManual
	if dryRun {
		jobType = jobTypeTest
	}
	ctx = xglog.ContextWithJobID(ctx, uuid.NewString())
	return s.execute(ctx, s.factory(s.Config(), dryRun), jobType)
}

// execute runs task and records its outcome. Cancellation counts as
// success: the session ended because it was no longer wanted.
func (s *Scheduler) execute(ctx context.Context, task Task, jobType string) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	ctx, span := telemetry.Tracer(tracerName).Start(ctx, "trigger.job")
	defer span.End()

	started := time.Now()
	err := task.Run(ctx)
	elapsed := time.Since(started)

	result := resultSuccess
	if err != nil && !harmony.IsCancelled(err) {
		result = resultFailure
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(telemetry.JobAttributes(jobType, result, elapsed.Milliseconds())...)
	metrics.IncTriggerJob(result)

	if jobType != jobTypeTest {
		s.mu.Lock()
		s.lastRun = time.Now()
		s.lastErr = nil
		if result == resultFailure {
			s.lastErr = err
		}
		s.mu.Unlock()
	}

	logger := xglog.WithContext(ctx, s.logger)
	logger.Info().
		Str(xglog.FieldEvent, "trigger.job_done").
		Str("type", jobType).
		Str("result", result).
		Dur("duration", elapsed).
		Msg("power-off job finished")
	return err
}

// Pending reports whether a scheduled run is outstanding.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// LastRun returns the end time and error of the last non-dry session.
func (s *Scheduler) LastRun() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastErr
}

// Close cancels pending work and waits for scheduled runs to return.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.abandonLocked(resultAborted)
	s.baseCancel()
	s.mu.Unlock()
	s.wg.Wait()
}
