package scheduling

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"voice-agent/internal/appointments"
	"voice-agent/internal/audit"
	"voice-agent/internal/metrics"
)

// Clock abstracts time for the callback trigger so tests can fire timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	Stop() bool
}

type systemClock struct{}

func (systemClock) Now() time.Time                            { return time.Now() }
func (systemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// FollowUpDialer places the outbound call for a due auto-callback.
type FollowUpDialer interface {
	DialFollowUp(ctx context.Context, appt appointments.Appointment) error
}

const (
	sourceTimer = "timer"
	sourceSweep = "sweep"
)

// CallbackScheduler owns deferred auto-callback triggers and the recovery sweep.
//
// Both paths claim the appointment (call_triggered false -> true) before the
// call is placed; whichever loses the claim does nothing. A failed dial is not
// retried since the flag is already set.
type CallbackScheduler struct {
	repo   appointments.Repository
	dialer FollowUpDialer
	audit  *audit.Service
	clock  Clock
	log    *slog.Logger

	mu      sync.Mutex
	timers  map[string]Timer
	stopped bool
}

func NewCallbackScheduler(repo appointments.Repository, dialer FollowUpDialer, auditSvc *audit.Service, clock Clock, log *slog.Logger) *CallbackScheduler {
	if clock == nil {
		clock = SystemClock
	}
	if log == nil {
		log = slog.Default()
	}
	return &CallbackScheduler{
		repo:   repo,
		dialer: dialer,
		audit:  auditSvc,
		clock:  clock,
		log:    log,
		timers: map[string]Timer{},
	}
}

// Arm registers a one-shot trigger at appt.ScheduledAt. Past-due callbacks
// fire immediately on their own goroutine.
func (s *CallbackScheduler) Arm(ctx context.Context, appt appointments.Appointment) {
	if !appt.PendingCallback() {
		return
	}
	base := context.WithoutCancel(ctx)
	delay := appt.ScheduledAt.Sub(s.clock.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if _, armed := s.timers[appt.ID]; armed {
		return
	}
	if delay <= 0 {
		go s.trigger(base, appt.ID, sourceTimer)
		return
	}
	s.timers[appt.ID] = s.clock.AfterFunc(delay, func() {
		s.trigger(base, appt.ID, sourceTimer)
	})
}

// Armed reports how many timers are pending.
func (s *CallbackScheduler) Armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// trigger claims then dials. It reports whether this call won the claim.
func (s *CallbackScheduler) trigger(ctx context.Context, id, source string) bool {
	s.mu.Lock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	claimed, err := s.repo.ClaimCallback(ctx, id)
	if err != nil {
		s.log.Error("claim callback failed", "appointment_id", id, "source", source, "err", err)
		return false
	}
	if !claimed {
		s.log.Debug("callback already triggered", "appointment_id", id, "source", source)
		return false
	}

	appt, err := s.repo.Get(ctx, id)
	if err != nil {
		s.log.Error("load claimed callback failed", "appointment_id", id, "err", err)
		return true
	}
	metrics.CallbacksTriggered.WithLabelValues(source).Inc()
	if err := s.audit.LogCallback(ctx, audit.EventTypeCallbackTriggered, appt.LeadID, appt.ID, source); err != nil {
		s.log.Warn("audit callback triggered failed", "appointment_id", id, "err", err)
	}
	if err := s.dialer.DialFollowUp(ctx, appt); err != nil {
		s.log.Error("follow-up dial failed", "appointment_id", id, "lead_id", appt.LeadID, "source", source, "err", err)
		return true
	}
	s.log.Info("follow-up dialed", "appointment_id", id, "lead_id", appt.LeadID, "source", source)
	return true
}

// Sweep triggers every due, untriggered auto-callback and returns how many
// this pass claimed.
func (s *CallbackScheduler) Sweep(ctx context.Context) (int, error) {
	due, err := s.repo.ListDueCallbacks(ctx, s.clock.Now())
	if err != nil {
		return 0, err
	}
	n := 0
	for _, a := range due {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		if s.trigger(ctx, a.ID, sourceSweep) {
			n++
		}
	}
	return n, nil
}

// RunSweeper sweeps once immediately and then every interval until ctx ends.
func (s *CallbackScheduler) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	sweep := func() {
		n, err := s.Sweep(ctx)
		if err != nil && ctx.Err() == nil {
			s.log.Error("callback sweep failed", "err", err)
			return
		}
		if n > 0 {
			s.log.Info("callback sweep recovered calls", "count", n)
		}
	}

	sweep()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}

// RecoverPending re-arms every untriggered auto-callback after a restart.
func (s *CallbackScheduler) RecoverPending(ctx context.Context) (int, error) {
	pending, err := s.repo.ListPendingCallbacks(ctx)
	if err != nil {
		return 0, err
	}
	for _, a := range pending {
		s.Arm(ctx, a)
	}
	return len(pending), nil
}

// Stop cancels armed timers. Appointments stay untriggered for the next
// process's recovery.
func (s *CallbackScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
