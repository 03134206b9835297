package leads

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is an in-memory repository for tests and local development.
type MemoryRepo struct {
	mu        sync.Mutex
	leads     map[string]Lead
	order     []string
	campaigns map[string]Campaign

	// Updates counts UpdateStatus calls per lead.
	Updates map[string]int
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		leads:     map[string]Lead{},
		campaigns: map[string]Campaign{},
		Updates:   map[string]int{},
	}
}

func (r *MemoryRepo) AddCampaign(c Campaign) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.Status == "" {
		c.Status = CampaignStatusStopped
	}
	r.campaigns[c.ID] = c
}

func (r *MemoryRepo) AddLead(l Lead) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l.Status == "" {
		l.Status = LeadStatusPending
	}
	if _, ok := r.leads[l.ID]; !ok {
		r.order = append(r.order, l.ID)
	}
	r.leads[l.ID] = l
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leads[id]
	if !ok {
		return Lead{}, ErrNotFound
	}
	return l, nil
}

func (r *MemoryRepo) ListPending(ctx context.Context, campaignID string) ([]Lead, error) {
	return r.list(campaignID, func(l Lead) bool { return l.Status == LeadStatusPending }), nil
}

func (r *MemoryRepo) ListByCampaign(ctx context.Context, campaignID string) ([]Lead, error) {
	return r.list(campaignID, func(Lead) bool { return true }), nil
}

func (r *MemoryRepo) list(campaignID string, keep func(Lead) bool) []Lead {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Lead, 0)
	for _, id := range r.order {
		l := r.leads[id]
		if l.CampaignID == campaignID && keep(l) {
			out = append(out, l)
		}
	}
	return out
}

func (r *MemoryRepo) UpdateStatus(ctx context.Context, id string, status LeadStatus, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leads[id]
	if !ok {
		return ErrNotFound
	}
	l.Status = status
	called := at
	l.LastCalledAt = &called
	r.leads[id] = l
	r.Updates[id]++
	return nil
}

func (r *MemoryRepo) GetCampaign(ctx context.Context, id string) (Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return Campaign{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) SetCampaignStatus(ctx context.Context, id string, status CampaignStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return ErrNotFound
	}
	c.Status = status
	r.campaigns[id] = c
	return nil
}

// UpdateCount returns how many times UpdateStatus touched id.
func (r *MemoryRepo) UpdateCount(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Updates[id]
}
