package notify

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"voice-agent/internal/config"
	"voice-agent/internal/scheduling"
)

type sent struct {
	to  []string
	msg string
}

func newTestMailer(fail bool) (*Mailer, *[]sent) {
	var out []sent
	m := NewMailer(config.SMTPConfig{Host: "smtp.example.com", Port: 587, From: "agent@example.com", TeamTo: "team@example.com"}, nil)
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		if fail {
			return errors.New("relay refused")
		}
		out = append(out, sent{to: to, msg: string(msg)})
		return nil
	}
	m.clock = func() time.Time { return time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC) }
	return m, &out
}

func confirmation() scheduling.Confirmation {
	return scheduling.Confirmation{
		AppointmentID: "appt-1",
		LeadName:      "Asha",
		LeadPhone:     "+447700900123",
		LeadEmail:     "asha@example.com",
		Start:         time.Date(2025, 6, 11, 9, 0, 0, 0, time.UTC),
		ReferenceTime: "Jun 11, 02:30 PM IST",
		UserLocalTime: "10:00 AM",
		UserZone:      "Europe/London",
	}
}

func TestNotifyBooking_SendsLeadAndTeam(t *testing.T) {
	m, out := newTestMailer(false)
	if err := m.NotifyBooking(context.Background(), confirmation()); err != nil {
		t.Fatalf("NotifyBooking: %v", err)
	}
	if len(*out) != 2 {
		t.Fatalf("expected two messages, got %d", len(*out))
	}
	lead := (*out)[0]
	if lead.to[0] != "asha@example.com" {
		t.Fatalf("unexpected lead recipient %v", lead.to)
	}
	for _, want := range []string{"Subject: Demo Confirmed", "text/calendar", "DTSTART:20250611T090000Z", "DTEND:20250611T100000Z", "UID:appt-1@voice-agent"} {
		if !strings.Contains(lead.msg, want) {
			t.Fatalf("lead message missing %q", want)
		}
	}
	team := (*out)[1]
	if team.to[0] != "team@example.com" || strings.Contains(team.msg, "text/calendar") {
		t.Fatalf("unexpected team message: %+v", team)
	}
}

func TestNotifyBooking_NoLeadEmail(t *testing.T) {
	m, out := newTestMailer(false)
	c := confirmation()
	c.LeadEmail = ""
	if err := m.NotifyBooking(context.Background(), c); err != nil {
		t.Fatalf("NotifyBooking: %v", err)
	}
	if len(*out) != 1 || (*out)[0].to[0] != "team@example.com" {
		t.Fatalf("expected only team message, got %+v", *out)
	}
}

func TestNotifyBooking_ReportsFailures(t *testing.T) {
	m, _ := newTestMailer(true)
	err := m.NotifyBooking(context.Background(), confirmation())
	if err == nil || !strings.Contains(err.Error(), "lead:") || !strings.Contains(err.Error(), "team:") {
		t.Fatalf("expected both failures reported, got %v", err)
	}
}
