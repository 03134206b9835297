package reporting

import (
	"time"

	"voice-agent/internal/leads"
)

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest requests aggregated call outcomes. CampaignID is optional.
type CallsSummaryRequest struct {
	Range      TimeRange `json:"range"`
	CampaignID string    `json:"campaign_id,omitempty"`
}

type CallsSummary struct {
	CampaignID string `json:"campaign_id,omitempty"`

	TotalCalls      int `json:"total_calls"`
	CompletedCalls  int `json:"completed_calls"`
	FailedCalls     int `json:"failed_calls"`
	BookedCalls     int `json:"booked_calls"`
	RejectedBooking int `json:"booking_rejected_calls"`
	FollowUpCalls   int `json:"follow_up_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	// BookingRate is booked calls over all calls in range.
	BookingRate float64 `json:"booking_rate"`
}

// CampaignStats is the lead-status breakdown of one campaign.
type CampaignStats struct {
	CampaignID string               `json:"campaign_id"`
	Name       string               `json:"name"`
	Status     leads.CampaignStatus `json:"status"`

	TotalLeads     int `json:"total_leads"`
	CompletedLeads int `json:"completed_leads"`
	FailedLeads    int `json:"failed_leads"`
	PendingLeads   int `json:"pending_leads"`
}
