package leads

import "time"

// Lead is a dialable contact within a campaign.
//
// Status moves PENDING -> COMPLETED | FAILED exactly once per dial attempt.
type Lead struct {
	ID         string     `json:"id" db:"id"`
	CampaignID string     `json:"campaign_id" db:"campaign_id"`
	Name       string     `json:"name" db:"name"`
	Phone      string     `json:"phone" db:"phone"`
	Email      string     `json:"email,omitempty" db:"email"`
	Status     LeadStatus `json:"status" db:"status"`

	LastCalledAt *time.Time `json:"last_called_at,omitempty" db:"last_called_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

type LeadStatus string

const (
	LeadStatusPending   LeadStatus = "PENDING"
	LeadStatusCompleted LeadStatus = "COMPLETED"
	LeadStatusFailed    LeadStatus = "FAILED"
)

// Campaign groups leads dialed with one knowledge profile.
type Campaign struct {
	ID           string         `json:"id" db:"id"`
	Name         string         `json:"name" db:"name"`
	KnowledgeRef string         `json:"knowledge_ref" db:"knowledge_ref"`
	Status       CampaignStatus `json:"status" db:"status"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
}

type CampaignStatus string

const (
	CampaignStatusRunning CampaignStatus = "RUNNING"
	CampaignStatusStopped CampaignStatus = "STOPPED"
)
