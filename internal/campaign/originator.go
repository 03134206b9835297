// Package campaign dials a campaign's pending leads and places follow-up calls.
package campaign

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"voice-agent/internal/appointments"
	"voice-agent/internal/config"
	"voice-agent/internal/leads"
	"voice-agent/internal/routing"
	"voice-agent/internal/telephony"
	"voice-agent/internal/timezone"
)

// maxVarLen bounds channel variable values; Asterisk truncates long ones.
const maxVarLen = 900

// Originator turns leads and due callbacks into outbound calls routed into
// the agent application.
type Originator struct {
	ctrl     telephony.Controller
	router   *routing.Selector
	leads    leads.Repository
	appts    appointments.Repository
	resolver *timezone.Resolver
	callerID string
	timeout  time.Duration
	log      *slog.Logger
}

func NewOriginator(ctrl telephony.Controller, router *routing.Selector, leadRepo leads.Repository, apptRepo appointments.Repository, resolver *timezone.Resolver, cfg config.ARIConfig, log *slog.Logger) *Originator {
	if log == nil {
		log = slog.Default()
	}
	return &Originator{
		ctrl:     ctrl,
		router:   router,
		leads:    leadRepo,
		appts:    apptRepo,
		resolver: resolver,
		callerID: cfg.CallerID,
		timeout:  cfg.DialTimeout,
		log:      log,
	}
}

// DialLead originates a campaign call and returns the new call id.
func (o *Originator) DialLead(ctx context.Context, l leads.Lead, c leads.Campaign) (string, error) {
	return o.originate(ctx, l.Phone, map[string]string{
		telephony.VarLeadID:       l.ID,
		telephony.VarLeadName:     l.Name,
		telephony.VarLeadNumber:   l.Phone,
		telephony.VarCampaignID:   c.ID,
		telephony.VarKnowledgeRef: c.KnowledgeRef,
	})
}

// DialFollowUp calls a lead back with the prior discussion attached.
func (o *Originator) DialFollowUp(ctx context.Context, appt appointments.Appointment) error {
	l, err := o.leads.Get(ctx, appt.LeadID)
	if err != nil {
		return fmt.Errorf("campaign: follow-up lead %s: %w", appt.LeadID, err)
	}
	campaignID := appt.CampaignID
	if campaignID == "" {
		campaignID = l.CampaignID
	}
	vars := map[string]string{
		telephony.VarLeadID:           l.ID,
		telephony.VarLeadName:         l.Name,
		telephony.VarLeadNumber:       l.Phone,
		telephony.VarCampaignID:       campaignID,
		telephony.VarIsFollowUp:       "true",
		telephony.VarPriorSummary:     flatten(appt.Notes),
		telephony.VarPriorAppointment: o.resolver.FormatReference(o.priorSlot(ctx, appt)),
	}
	if campaignID != "" {
		if c, err := o.leads.GetCampaign(ctx, campaignID); err == nil {
			vars[telephony.VarKnowledgeRef] = c.KnowledgeRef
		}
	}

	callID, err := o.originate(ctx, l.Phone, vars)
	if err != nil {
		return err
	}
	o.log.Info("follow-up call placed", "appointment_id", appt.ID, "lead_id", l.ID, "call_id", callID)
	return nil
}

// priorSlot is the lead's latest booked slot, or the callback's own time when
// the lead never booked.
func (o *Originator) priorSlot(ctx context.Context, appt appointments.Appointment) time.Time {
	if o.appts == nil {
		return appt.ScheduledAt
	}
	booked, ok, err := o.appts.LatestScheduledForLead(ctx, appt.LeadID)
	if err != nil {
		o.log.Warn("prior appointment lookup failed", "lead_id", appt.LeadID, "err", err)
	}
	if err != nil || !ok {
		return appt.ScheduledAt
	}
	return booked.ScheduledAt
}

func (o *Originator) originate(ctx context.Context, number string, vars map[string]string) (string, error) {
	d, err := o.router.Route(number)
	if err != nil {
		return "", fmt.Errorf("campaign: route %q: %w", number, err)
	}
	o.log.Debug("trunk selected", "trunk", d.Trunk, "share", d.Share)
	callID, err := o.ctrl.Originate(ctx, telephony.OriginateRequest{
		Endpoint: d.Endpoint,
		CallerID: o.callerID,
		Timeout:  o.timeout,
		Vars:     vars,
	})
	if err != nil {
		return "", fmt.Errorf("campaign: originate via %s: %w", d.Trunk, err)
	}
	return callID, nil
}

func flatten(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > maxVarLen {
		s = string(r[:maxVarLen])
	}
	return s
}
