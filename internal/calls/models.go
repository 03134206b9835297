package calls

import "time"

// CallLog is the immutable record written once when a call session ends.
//
// NOTE: Telephony-specific identifiers (channel ids) are stored as CallID only;
// recordings and synthesized audio are transient and never referenced here.
type CallLog struct {
	ID     string `json:"id" db:"id"`
	CallID string `json:"call_id" db:"call_id"`

	LeadID     string `json:"lead_id,omitempty" db:"lead_id"`
	CampaignID string `json:"campaign_id,omitempty" db:"campaign_id"`
	Phone      string `json:"phone,omitempty" db:"phone"`

	Transcript string `json:"transcript" db:"transcript"`
	Report     string `json:"report" db:"report"`

	// DurationSeconds is wall time from session creation to end.
	DurationSeconds int `json:"duration_seconds" db:"duration_seconds"`

	Outcome  Outcome  `json:"outcome" db:"outcome"`
	CallType CallType `json:"call_type" db:"call_type"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Outcome string

const (
	OutcomeCompleted       Outcome = "COMPLETED"
	OutcomeFailed          Outcome = "FAILED"
	OutcomeBooked          Outcome = "BOOKED"
	OutcomeBookingRejected Outcome = "BOOKING_REJECTED"
	OutcomeDemoBooked      Outcome = "DEMO_BOOKED"
)

// Converted reports whether the call produced a booking.
func (o Outcome) Converted() bool {
	return o == OutcomeBooked || o == OutcomeDemoBooked
}

type CallType string

const (
	CallTypeCampaign CallType = "CAMPAIGN"
	CallTypeFollowUp CallType = "FOLLOW_UP"
)
