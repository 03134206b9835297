package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only. No Update/Delete methods are provided.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information. Callers treat it as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.CallID == "" && e.LeadID == "" && e.AppointmentID == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogBookingDecision records the checker's verdict for a booking attempt.
// reason is empty for accepted bookings.
func (s *Service) LogBookingDecision(ctx context.Context, callID, leadID, appointmentID, reason, candidate string) error {
	t := EventTypeBookingAccepted
	msg := "booking accepted"
	if reason != "" {
		t = EventTypeBookingRejected
		msg = "booking rejected"
	}
	return s.Append(ctx, Event{
		Type:          t,
		CallID:        callID,
		LeadID:        leadID,
		AppointmentID: appointmentID,
		Reason:        reason,
		Message:       msg,
		Metadata:      `{"candidate":"` + candidate + `"}`,
	})
}

// LogCallback records a callback being scheduled or dialed.
func (s *Service) LogCallback(ctx context.Context, t EventType, leadID, appointmentID, source string) error {
	return s.Append(ctx, Event{
		Type:          t,
		LeadID:        leadID,
		AppointmentID: appointmentID,
		Message:       source,
	})
}

// LogForceEnd records a watchdog termination.
func (s *Service) LogForceEnd(ctx context.Context, callID string, age time.Duration) error {
	return s.Append(ctx, Event{
		Type:    EventTypeSessionForceEnded,
		CallID:  callID,
		Reason:  "MAX_DURATION",
		Message: "session exceeded max duration: " + age.Round(time.Second).String(),
	})
}
