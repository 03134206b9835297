package leads

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("leads: not found")

type Repository interface {
	Get(ctx context.Context, id string) (Lead, error)
	ListPending(ctx context.Context, campaignID string) ([]Lead, error)
	ListByCampaign(ctx context.Context, campaignID string) ([]Lead, error)
	UpdateStatus(ctx context.Context, id string, status LeadStatus, at time.Time) error

	GetCampaign(ctx context.Context, id string) (Campaign, error)
	SetCampaignStatus(ctx context.Context, id string, status CampaignStatus) error
}
