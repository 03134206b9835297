package appointments

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is an in-memory repository for tests and local development.
type MemoryRepo struct {
	mu    sync.Mutex
	rows  map[string]Appointment
	order []string
	now   func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{rows: map[string]Appointment{}, now: time.Now}
}

func (r *MemoryRepo) Create(ctx context.Context, a Appointment) (Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertLocked(a)
}

func (r *MemoryRepo) CreateChecked(ctx context.Context, a Appointment, window time.Duration, admit AdmitFunc) (Appointment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var occupied []time.Time
	for _, id := range r.order {
		e := r.rows[id]
		if !e.OccupiesSlot() {
			continue
		}
		if e.ScheduledAt.Before(a.ScheduledAt.Add(-window)) || e.ScheduledAt.After(a.ScheduledAt.Add(window)) {
			continue
		}
		occupied = append(occupied, e.ScheduledAt)
	}
	if !admit(occupied) {
		return Appointment{}, false, nil
	}
	out, err := r.insertLocked(a)
	if err != nil {
		return Appointment{}, false, err
	}
	return out, true, nil
}

func (r *MemoryRepo) insertLocked(a Appointment) (Appointment, error) {
	if a.LeadID == "" || a.ScheduledAt.IsZero() || a.Status == "" {
		return Appointment{}, ErrInvalidArgument
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := r.now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	if _, exists := r.rows[a.ID]; !exists {
		r.order = append(r.order, a.ID)
	}
	r.rows[a.ID] = a
	return a, nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[id]
	if !ok {
		return Appointment{}, ErrNotFound
	}
	return a, nil
}

func (r *MemoryRepo) ListBookable(ctx context.Context, from time.Time, limit int) ([]Appointment, error) {
	return r.filter(limit, func(a Appointment) bool {
		return a.OccupiesSlot() && !a.ScheduledAt.Before(from)
	}), nil
}

func (r *MemoryRepo) ListDueCallbacks(ctx context.Context, now time.Time) ([]Appointment, error) {
	return r.filter(0, func(a Appointment) bool { return a.DueCallback(now) }), nil
}

func (r *MemoryRepo) ListPendingCallbacks(ctx context.Context) ([]Appointment, error) {
	return r.filter(0, Appointment.PendingCallback), nil
}

func (r *MemoryRepo) LatestScheduledForLead(ctx context.Context, leadID string) (Appointment, bool, error) {
	rows := r.filter(0, func(a Appointment) bool { return a.LeadID == leadID && a.OccupiesSlot() })
	if len(rows) == 0 {
		return Appointment{}, false, nil
	}
	return rows[len(rows)-1], true, nil
}

func (r *MemoryRepo) ClaimCallback(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[id]
	if !ok {
		return false, ErrNotFound
	}
	if a.CallTriggered {
		return false, nil
	}
	a.CallTriggered = true
	a.UpdatedAt = r.now().UTC()
	r.rows[id] = a
	return true, nil
}

func (r *MemoryRepo) AttachCallLog(ctx context.Context, ids []string, callLogID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		a, ok := r.rows[id]
		if !ok {
			return ErrNotFound
		}
		a.CallLogID = callLogID
		a.UpdatedAt = r.now().UTC()
		r.rows[id] = a
	}
	return nil
}

// filter returns matching rows ordered by ScheduledAt.
func (r *MemoryRepo) filter(limit int, keep func(Appointment) bool) []Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Appointment, 0)
	for _, id := range r.order {
		if a := r.rows[id]; keep(a) {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
