package calls

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is a simple in-memory append-only repository useful for tests.
type MemoryRepo struct {
	mu   sync.Mutex
	logs []CallLog
	now  func() time.Time
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{now: time.Now} }

func (r *MemoryRepo) Create(ctx context.Context, l CallLog) (CallLog, error) {
	if l.CallID == "" || l.Outcome == "" || l.CallType == "" {
		return CallLog{}, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = r.now().UTC()
	}
	r.logs = append(r.logs, l)
	return l, nil
}

func (r *MemoryRepo) List(ctx context.Context, from, to time.Time, campaignID string) ([]CallLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CallLog, 0)
	for _, l := range r.logs {
		if l.CreatedAt.Before(from) || !l.CreatedAt.Before(to) {
			continue
		}
		if campaignID != "" && l.CampaignID != campaignID {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

// Logs returns a copy of every stored log.
func (r *MemoryRepo) Logs() []CallLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CallLog, len(r.logs))
	copy(out, r.logs)
	return out
}
