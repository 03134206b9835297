package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"voice-agent/internal/audit"
	"voice-agent/internal/metrics"
	"voice-agent/internal/telephony"
)

// Registry holds the live sessions keyed by call id. It is the only state
// shared across calls; every method is safe for concurrent use.
type Registry struct {
	ctrl  telephony.Controller
	audit *audit.Service
	log   *slog.Logger

	maxAge time.Duration
	clock  func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(ctrl telephony.Controller, auditSvc *audit.Service, maxAge time.Duration, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		ctrl:     ctrl,
		audit:    auditSvc,
		log:      log,
		maxAge:   maxAge,
		clock:    time.Now,
		sessions: map[string]*Session{},
	}
}

// Register adds s and returns it, or returns nil when a session for the same
// call id is already live.
func (r *Registry) Register(s *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.CallID]; ok {
		return nil
	}
	r.sessions[s.CallID] = s
	metrics.ActiveSessions.Inc()
	return s
}

func (r *Registry) Get(callID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[callID]
	return s, ok
}

// Remove drops s if it is still the registered session for its call id and
// reports whether this call did the removal.
func (r *Registry) Remove(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.sessions[s.CallID]
	if !ok || cur != s {
		return false
	}
	delete(r.sessions, s.CallID)
	metrics.ActiveSessions.Dec()
	return true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Snapshot lists live sessions, oldest first.
func (r *Registry) Snapshot() []Info {
	r.mu.Lock()
	list := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	r.mu.Unlock()

	out := make([]Info, 0, len(list))
	for _, s := range list {
		out = append(out, s.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// RunWatchdog force-ends sessions older than the maximum call duration every
// interval until ctx is done.
func (r *Registry) RunWatchdog(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := r.Reap(ctx); n > 0 {
				r.log.Warn("watchdog force-ended sessions", "count", n, "active", r.Len())
			}
		}
	}
}

// Reap hangs up and removes every session older than the maximum duration.
func (r *Registry) Reap(ctx context.Context) int {
	now := r.clock()
	r.mu.Lock()
	var stale []*Session
	for _, s := range r.sessions {
		if now.Sub(s.StartedAt) > r.maxAge {
			stale = append(stale, s)
		}
	}
	r.mu.Unlock()

	n := 0
	for _, s := range stale {
		if !r.Remove(s) {
			continue
		}
		n++
		age := now.Sub(s.StartedAt)
		if err := r.ctrl.Hangup(ctx, s.CallID); err != nil && !telephony.IsChannelGone(err) {
			r.log.Warn("watchdog hangup failed", "call_id", s.CallID, "err", err)
		}
		if r.audit != nil {
			if err := r.audit.LogForceEnd(ctx, s.CallID, age); err != nil {
				r.log.Warn("audit force end failed", "call_id", s.CallID, "err", err)
			}
		}
		s.End(CauseWatchdog)
		r.log.Warn("session force-ended", "call_id", s.CallID, "age", age.Round(time.Second).String())
	}
	return n
}
