package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - Reason codes recorded here are internal and must never reach a caller.
// - Audit writes are best-effort; do not block call flows on audit failures.
//
// Storage (Postgres): table audit_events with an INSERT-only policy.
type Event struct {
	ID   string    `json:"id" db:"id"`
	Type EventType `json:"type" db:"type"`

	CallID        string `json:"call_id,omitempty" db:"call_id"`
	LeadID        string `json:"lead_id,omitempty" db:"lead_id"`
	CampaignID    string `json:"campaign_id,omitempty" db:"campaign_id"`
	AppointmentID string `json:"appointment_id,omitempty" db:"appointment_id"`

	// Reason is a machine code such as OUTSIDE_HOURS.
	Reason string `json:"reason,omitempty" db:"reason"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeBookingAccepted   EventType = "booking_accepted"
	EventTypeBookingRejected   EventType = "booking_rejected"
	EventTypeCallbackScheduled EventType = "callback_scheduled"
	EventTypeCallbackTriggered EventType = "callback_triggered"
	EventTypeSessionForceEnded EventType = "session_force_ended"
)
