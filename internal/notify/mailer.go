// Package notify sends booking confirmations by email.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"voice-agent/internal/config"
	"voice-agent/internal/scheduling"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer emails the lead a confirmation with a calendar invite and tells the
// team about the booking.
type Mailer struct {
	addr   string
	auth   smtp.Auth
	from   string
	teamTo string
	org    string
	log    *slog.Logger

	send  sendFunc
	clock func() time.Time
}

func NewMailer(cfg config.SMTPConfig, log *slog.Logger) *Mailer {
	if log == nil {
		log = slog.Default()
	}
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &Mailer{
		addr:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		auth:   auth,
		from:   cfg.From,
		teamTo: cfg.TeamTo,
		org:    "SusaLabs",
		log:    log,
		send:   smtp.SendMail,
		clock:  time.Now,
	}
}

// NotifyBooking sends both messages. The lead message is skipped when no
// address is known; a failure of one does not stop the other.
func (m *Mailer) NotifyBooking(ctx context.Context, c scheduling.Confirmation) error {
	var errs []string
	if c.LeadEmail != "" {
		msg, err := m.leadMessage(c)
		if err == nil {
			err = m.send(m.addr, m.auth, m.from, []string{c.LeadEmail}, msg)
		}
		if err != nil {
			errs = append(errs, "lead: "+err.Error())
		} else {
			m.log.Info("confirmation email sent", "appointment_id", c.AppointmentID)
		}
	}
	if m.teamTo != "" {
		msg := m.teamMessage(c)
		if err := m.send(m.addr, m.auth, m.from, []string{m.teamTo}, msg); err != nil {
			errs = append(errs, "team: "+err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (m *Mailer) leadMessage(c scheduling.Confirmation) ([]byte, error) {
	var body strings.Builder
	fmt.Fprintf(&body, "Hi %s,\n\n", orDefault(c.LeadName, "there"))
	fmt.Fprintf(&body, "Your %s product demo is confirmed.\n\n", m.org)
	if c.UserLocalTime != "" {
		fmt.Fprintf(&body, "Your local time: %s (%s)\n", c.UserLocalTime, c.UserZone)
	}
	fmt.Fprintf(&body, "Our time: %s\n\n", c.ReferenceTime)
	body.WriteString("A calendar invite is attached. The meeting link will be sent separately.\n")

	return buildMessage(m.from, c.LeadEmail, fmt.Sprintf("Demo Confirmed - %s", m.org), body.String(),
		ICalEvent(m.org, c, m.from, m.clock()))
}

func (m *Mailer) teamMessage(c scheduling.Confirmation) []byte {
	var body strings.Builder
	body.WriteString("A new demo was booked by the voice agent.\n\n")
	fmt.Fprintf(&body, "Lead: %s\nPhone: %s\nEmail: %s\n", orDefault(c.LeadName, "unknown"), c.LeadPhone, orDefault(c.LeadEmail, "not provided"))
	fmt.Fprintf(&body, "When: %s\n", c.ReferenceTime)
	if c.UserLocalTime != "" {
		fmt.Fprintf(&body, "Lead local time: %s (%s)\n", c.UserLocalTime, c.UserZone)
	}
	msg, _ := buildMessage(m.from, m.teamTo, "New Demo Booked - "+orDefault(c.LeadName, c.LeadPhone), body.String(), "")
	return msg
}

func buildMessage(from, to, subject, text, ics string) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	w := multipart.NewWriter(buf)

	fmt.Fprintf(buf, "From: %s\r\n", from)
	fmt.Fprintf(buf, "To: %s\r\n", to)
	fmt.Fprintf(buf, "Subject: %s\r\n", subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(buf, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", w.Boundary())

	part, err := w.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/plain; charset=utf-8"}})
	if err != nil {
		return nil, err
	}
	if _, err := part.Write([]byte(text)); err != nil {
		return nil, err
	}
	if ics != "" {
		part, err := w.CreatePart(textproto.MIMEHeader{
			"Content-Type":        {"text/calendar; charset=utf-8; method=REQUEST"},
			"Content-Disposition": {`attachment; filename="invite.ics"`},
		})
		if err != nil {
			return nil, err
		}
		if _, err := part.Write([]byte(ics)); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

const icsStamp = "20060102T150405Z"

// ICalEvent renders a one-hour VEVENT starting at c.Start.
func ICalEvent(org string, c scheduling.Confirmation, organizer string, now time.Time) string {
	start := c.Start.UTC()
	end := start.Add(time.Hour)
	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		fmt.Sprintf("PRODID:-//%s//Demo Booking//EN", org),
		"METHOD:REQUEST",
		"BEGIN:VEVENT",
		fmt.Sprintf("UID:%s@voice-agent", orDefault(c.AppointmentID, fmt.Sprint(now.UnixNano()))),
		"DTSTAMP:" + now.UTC().Format(icsStamp),
		"DTSTART:" + start.Format(icsStamp),
		"DTEND:" + end.Format(icsStamp),
		fmt.Sprintf("SUMMARY:%s Product Demo - %s", org, orDefault(c.LeadName, "Guest")),
		fmt.Sprintf(`DESCRIPTION:Your scheduled demo with the %s team.\n\nYour Local Time: %s\nOur Time: %s`, org, c.UserLocalTime, c.ReferenceTime),
		"LOCATION:Online (Link will be sent separately)",
		fmt.Sprintf("ORGANIZER;CN=%s Team:mailto:%s", org, organizer),
		fmt.Sprintf("ATTENDEE;CN=%s;RSVP=TRUE:mailto:%s", orDefault(c.LeadName, "Guest"), c.LeadEmail),
		"STATUS:CONFIRMED",
		"SEQUENCE:0",
		"END:VEVENT",
		"END:VCALENDAR",
	}
	return strings.Join(lines, "\r\n") + "\r\n"
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// Noop discards notifications; used when SMTP is not configured.
type Noop struct{}

func (Noop) NotifyBooking(ctx context.Context, c scheduling.Confirmation) error { return nil }
