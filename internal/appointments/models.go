package appointments

import "time"

// Appointment is a scheduled slot or a deferred auto-callback for a lead.
//
// Invariants:
// - ScheduledAt is an absolute instant; it is rendered in the reference zone.
// - Auto-callbacks (IsAutoCallback) never occupy a slot for conflict checks.
// - CallTriggered only ever moves false -> true, via ClaimCallback.
type Appointment struct {
	ID         string `json:"id" db:"id"`
	LeadID     string `json:"lead_id" db:"lead_id"`
	CampaignID string `json:"campaign_id,omitempty" db:"campaign_id"`

	ScheduledAt time.Time `json:"scheduled_at" db:"scheduled_at"`
	Status      Status    `json:"status" db:"status"`

	IsAutoCallback bool `json:"is_auto_callback" db:"is_auto_callback"`
	CallTriggered  bool `json:"call_triggered" db:"call_triggered"`

	// CallLogID is empty until the originating call's log is persisted.
	CallLogID string `json:"call_log_id,omitempty" db:"call_log_id"`

	// Notes carries the discussion summary handed to a follow-up call.
	Notes string `json:"notes,omitempty" db:"notes"`

	// Caller-facing rendering captured at booking time.
	UserLocalTime string `json:"user_local_time,omitempty" db:"user_local_time"`
	UserZone      string `json:"user_zone,omitempty" db:"user_zone"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusScheduled         Status = "SCHEDULED"
	StatusFollowUp          Status = "FOLLOWUP"
	StatusNegotiation       Status = "NEGOTIATION"
	StatusDiscussion        Status = "DISCUSSION"
	StatusProposalSubmitted Status = "PROPOSAL_SUBMITTED"
	StatusCompleted         Status = "COMPLETED"
	StatusCancelled         Status = "CANCELLED"
	StatusRescheduled       Status = "RESCHEDULED"
)

// OccupiesSlot reports whether a counts against the booking calendar.
func (a Appointment) OccupiesSlot() bool {
	return a.Status != StatusCancelled && !a.IsAutoCallback
}

// DueCallback reports whether a is an untriggered auto-callback whose time has come.
func (a Appointment) DueCallback(now time.Time) bool {
	return a.PendingCallback() && !a.ScheduledAt.After(now)
}

func (a Appointment) PendingCallback() bool {
	return a.IsAutoCallback && !a.CallTriggered && a.Status == StatusFollowUp
}
