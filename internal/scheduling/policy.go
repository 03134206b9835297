// Package scheduling decides whether a requested slot may be booked and owns
// the deferred auto-callback lifecycle.
package scheduling

import (
	"fmt"
	"time"
)

type RejectReason string

const (
	ReasonOutsideHours RejectReason = "OUTSIDE_HOURS"
	ReasonWeekend      RejectReason = "WEEKEND"
	ReasonConflict     RejectReason = "CONFLICT"
)

// Policy is the booking calendar's availability rule set.
type Policy struct {
	Reference *time.Location
	OpenHour  int
	CloseHour int
	Buffer    time.Duration

	// ZoneLabel names the reference zone in spoken lines, e.g. "India time".
	ZoneLabel string
}

func DefaultPolicy(reference *time.Location) Policy {
	return Policy{Reference: reference, OpenHour: 9, CloseHour: 21, Buffer: 15 * time.Minute, ZoneLabel: "India time"}
}

// Decision is the checker's verdict. Reason is internal and never spoken.
type Decision struct {
	Accepted bool
	Reason   RejectReason
}

// Check applies the rules in order: business window, weekday, then proximity
// to existing bookings. existing must already exclude cancelled appointments
// and auto-callbacks.
func (p Policy) Check(candidate time.Time, existing []time.Time) Decision {
	local := candidate.In(p.Reference)
	if h := local.Hour(); h < p.OpenHour || h >= p.CloseHour {
		return Decision{Reason: ReasonOutsideHours}
	}
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return Decision{Reason: ReasonWeekend}
	}
	for _, e := range existing {
		d := candidate.Sub(e)
		if d < 0 {
			d = -d
		}
		if d < p.Buffer {
			return Decision{Reason: ReasonConflict}
		}
	}
	return Decision{Accepted: true}
}

// Renegotiation is the caller-facing line for a rejected decision.
func (p Policy) Renegotiation(d Decision) string {
	switch d.Reason {
	case ReasonOutsideHours:
		label := p.ZoneLabel
		if label == "" {
			label = p.Reference.String() + " time"
		}
		return fmt.Sprintf("I'm sorry, our team is only available between %s and %s %s. Could we find a time in that window that works for you?",
			clockHour(p.OpenHour), clockHour(p.CloseHour), label)
	case ReasonWeekend:
		return "Our team isn't available on weekends. Would a weekday work for you instead?"
	case ReasonConflict:
		return "I'm sorry, that slot was just reserved. Could you suggest another time, maybe a little earlier or later?"
	default:
		return ""
	}
}

func clockHour(h int) string {
	switch {
	case h == 0 || h == 24:
		return "midnight"
	case h == 12:
		return "noon"
	case h < 12:
		return fmt.Sprintf("%d AM", h)
	default:
		return fmt.Sprintf("%d PM", h-12)
	}
}

// Window renders the business window's bounds for prompts, e.g. "9 AM", "9 PM".
func (p Policy) Window() (open, close string) {
	return clockHour(p.OpenHour), clockHour(p.CloseHour)
}
