package scheduling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"voice-agent/internal/appointments"
	"voice-agent/internal/audit"
	"voice-agent/internal/metrics"
	"voice-agent/internal/timezone"
)

var ErrUnresolvedTime = errors.New("scheduling: could not resolve requested time")

// ClarifyTimeLine is spoken when a booking marker carries a time we cannot read.
const ClarifyTimeLine = "Sorry, I didn't quite catch the time. Could you tell me the day and time that works best for you?"

// BookingUnavailableLine replaces a confirmation when the booking could not be stored.
const BookingUnavailableLine = "I'm sorry, I couldn't lock that slot in just now. Our team will reach out to confirm a time with you."

// Notifier sends booking confirmations. Implementations must not block on
// delivery failures; Booker calls it off the session's path.
type Notifier interface {
	NotifyBooking(ctx context.Context, c Confirmation) error
}

// Confirmation is what a lead and the team are told about an accepted booking.
type Confirmation struct {
	AppointmentID string
	LeadName      string
	LeadPhone     string
	LeadEmail     string
	Start         time.Time
	ReferenceTime string
	UserLocalTime string
	UserZone      string
}

type BookingRequest struct {
	CallID     string
	LeadID     string
	CampaignID string
	LeadName   string
	LeadPhone  string
	LeadEmail  string

	Marker BookingMarker
	// CallerZone is used when the marker omits a timezone.
	CallerZone string
	Notes      string
}

type BookingResult struct {
	Decision    Decision
	Candidate   time.Time
	Appointment appointments.Appointment
}

type CallbackRequest struct {
	CallID     string
	LeadID     string
	CampaignID string
	Marker     CallbackMarker
	Notes      string
}

// Booker turns booking and callback intents into appointments.
//
// Booking invariant: the checker verdict and the insert happen under one
// repository-level critical section (CreateChecked), so two sessions cannot
// both book slots inside the conflict window.
type Booker struct {
	repo      appointments.Repository
	policy    Policy
	resolver  *timezone.Resolver
	audit     *audit.Service
	notifier  Notifier
	callbacks *CallbackScheduler
	log       *slog.Logger

	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewBooker(repo appointments.Repository, policy Policy, resolver *timezone.Resolver, auditSvc *audit.Service, notifier Notifier, callbacks *CallbackScheduler, log *slog.Logger) *Booker {
	if log == nil {
		log = slog.Default()
	}
	return &Booker{
		repo:      repo,
		policy:    policy,
		resolver:  resolver,
		audit:     auditSvc,
		notifier:  notifier,
		callbacks: callbacks,
		log:       log,
		clock:     time.Now,
	}
}

func (b *Booker) Policy() Policy { return b.policy }

// Book runs the availability check and, on acceptance, creates a SCHEDULED
// appointment. A rejection is a normal result, not an error.
func (b *Booker) Book(ctx context.Context, req BookingRequest) (BookingResult, error) {
	if req.LeadID == "" {
		return BookingResult{}, appointments.ErrInvalidArgument
	}
	candidate, zone, err := b.resolveCandidate(req)
	if err != nil {
		return BookingResult{}, err
	}

	var decision Decision
	appt := appointments.Appointment{
		LeadID:        req.LeadID,
		CampaignID:    req.CampaignID,
		ScheduledAt:   candidate.UTC(),
		Status:        appointments.StatusScheduled,
		Notes:         req.Notes,
		UserLocalTime: req.Marker.UserTime,
		UserZone:      zone,
	}
	created, _, err := b.repo.CreateChecked(ctx, appt, b.policy.Buffer, func(occupied []time.Time) bool {
		decision = b.policy.Check(candidate, occupied)
		return decision.Accepted
	})
	if err != nil {
		return BookingResult{Candidate: candidate}, fmt.Errorf("scheduling: create appointment: %w", err)
	}

	result := "accepted"
	if !decision.Accepted {
		result = strings.ToLower(string(decision.Reason))
	}
	metrics.BookingDecisions.WithLabelValues(result).Inc()

	if err := b.audit.LogBookingDecision(ctx, req.CallID, req.LeadID, created.ID, string(decision.Reason), candidate.Format(time.RFC3339)); err != nil {
		b.log.Warn("audit booking decision failed", "call_id", req.CallID, "err", err)
	}
	b.log.Info("booking decision",
		"call_id", req.CallID,
		"lead_id", req.LeadID,
		"candidate", b.resolver.FormatReference(candidate),
		"accepted", decision.Accepted,
		"reason", string(decision.Reason),
	)

	out := BookingResult{Decision: decision, Candidate: candidate}
	if !decision.Accepted {
		return out, nil
	}
	out.Appointment = created

	email := strings.TrimSpace(req.Marker.Email)
	if email == "" {
		email = req.LeadEmail
	}
	if b.notifier != nil {
		c := Confirmation{
			AppointmentID: created.ID,
			LeadName:      req.LeadName,
			LeadPhone:     req.LeadPhone,
			LeadEmail:     email,
			Start:         candidate,
			ReferenceTime: b.resolver.FormatReference(candidate),
			UserLocalTime: req.Marker.UserTime,
			UserZone:      zone,
		}
		nctx := context.WithoutCancel(ctx)
		go func() {
			if err := b.notifier.NotifyBooking(nctx, c); err != nil {
				b.log.Warn("booking confirmation failed", "appointment_id", c.AppointmentID, "err", err)
			}
		}()
	}
	return out, nil
}

func (b *Booker) resolveCandidate(req BookingRequest) (time.Time, string, error) {
	zone := strings.TrimSpace(req.Marker.Timezone)
	if zone == "" {
		zone = req.CallerZone
	}
	if s := strings.TrimSpace(req.Marker.ReferenceTime); s != "" {
		if t, err := b.resolver.ParseInstant(s); err == nil {
			return t, zone, nil
		}
	}
	if s := strings.TrimSpace(req.Marker.UserTime); s != "" {
		t, err := b.resolver.ToReference(s, zone, b.clock())
		if err == nil {
			return t, zone, nil
		}
	}
	return time.Time{}, zone, ErrUnresolvedTime
}

// Renegotiation is the spoken line for a rejected booking.
func (b *Booker) Renegotiation(d Decision) string { return b.policy.Renegotiation(d) }

// ScheduleCallback creates an auto-callback appointment and arms its trigger.
// Auto-callbacks skip the availability check.
func (b *Booker) ScheduleCallback(ctx context.Context, req CallbackRequest) (appointments.Appointment, error) {
	if req.LeadID == "" {
		return appointments.Appointment{}, appointments.ErrInvalidArgument
	}
	at, err := b.callbackInstant(req.Marker)
	if err != nil {
		return appointments.Appointment{}, err
	}

	notes := req.Notes
	if r := strings.TrimSpace(req.Marker.Reason); r != "" {
		if notes != "" {
			notes = r + "\n\n" + notes
		} else {
			notes = r
		}
	}
	created, err := b.repo.Create(ctx, appointments.Appointment{
		LeadID:         req.LeadID,
		CampaignID:     req.CampaignID,
		ScheduledAt:    at.UTC(),
		Status:         appointments.StatusFollowUp,
		IsAutoCallback: true,
		Notes:          notes,
	})
	if err != nil {
		return appointments.Appointment{}, fmt.Errorf("scheduling: create callback: %w", err)
	}

	if err := b.audit.LogCallback(ctx, audit.EventTypeCallbackScheduled, req.LeadID, created.ID, req.CallID); err != nil {
		b.log.Warn("audit callback scheduled failed", "call_id", req.CallID, "err", err)
	}
	b.log.Info("callback scheduled",
		"call_id", req.CallID,
		"lead_id", req.LeadID,
		"appointment_id", created.ID,
		"at", b.resolver.FormatReference(at),
	)
	if b.callbacks != nil {
		b.callbacks.Arm(ctx, created)
	}
	return created, nil
}

func (b *Booker) callbackInstant(m CallbackMarker) (time.Time, error) {
	now := b.clock()
	if m.DelayMinutes != "" {
		mins, err := m.DelayMinutes.Float64()
		if err != nil {
			return time.Time{}, ErrUnresolvedTime
		}
		if mins < 0 {
			mins = 0
		}
		return now.Add(time.Duration(mins * float64(time.Minute))), nil
	}
	if s := strings.TrimSpace(m.CallbackTime); s != "" {
		if t, err := b.resolver.ParseInstant(s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrUnresolvedTime
}

// BookedSlots lists upcoming slot-occupying appointments for the prompt.
func (b *Booker) BookedSlots(ctx context.Context, now time.Time) ([]appointments.Appointment, error) {
	return b.repo.ListBookable(ctx, now, 20)
}

func (b *Booker) AttachCallLog(ctx context.Context, ids []string, callLogID string) error {
	if len(ids) == 0 {
		return nil
	}
	return b.repo.AttachCallLog(ctx, ids, callLogID)
}
