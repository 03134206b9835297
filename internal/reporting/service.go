package reporting

import (
	"context"
	"errors"

	"voice-agent/internal/calls"
	"voice-agent/internal/leads"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Service aggregates over immutable call logs and current lead statuses.
type Service struct {
	calls calls.Repository
	leads leads.Repository
}

func NewService(callRepo calls.Repository, leadRepo leads.Repository) *Service {
	return &Service{calls: callRepo, leads: leadRepo}
}

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.calls == nil {
		return CallsSummary{}, errors.New("reporting: call repository not configured")
	}

	rows, err := s.calls.List(ctx, req.Range.From, req.Range.To, req.CampaignID)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{CampaignID: req.CampaignID}
	for _, c := range rows {
		out.TotalCalls++
		out.TotalDurationSeconds += c.DurationSeconds
		if c.CallType == calls.CallTypeFollowUp {
			out.FollowUpCalls++
		}
		switch c.Outcome {
		case calls.OutcomeCompleted:
			out.CompletedCalls++
		case calls.OutcomeFailed:
			out.FailedCalls++
		case calls.OutcomeBookingRejected:
			out.RejectedBooking++
		}
		if c.Outcome.Converted() {
			out.BookedCalls++
		}
	}
	if out.TotalCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.TotalCalls
		out.BookingRate = float64(out.BookedCalls) / float64(out.TotalCalls)
	}
	return out, nil
}

func (s *Service) CampaignStats(ctx context.Context, campaignID string) (CampaignStats, error) {
	if campaignID == "" {
		return CampaignStats{}, ErrInvalidRequest
	}
	if s.leads == nil {
		return CampaignStats{}, errors.New("reporting: lead repository not configured")
	}
	c, err := s.leads.GetCampaign(ctx, campaignID)
	if err != nil {
		return CampaignStats{}, err
	}
	rows, err := s.leads.ListByCampaign(ctx, campaignID)
	if err != nil {
		return CampaignStats{}, err
	}

	out := CampaignStats{CampaignID: c.ID, Name: c.Name, Status: c.Status, TotalLeads: len(rows)}
	for _, l := range rows {
		switch l.Status {
		case leads.LeadStatusCompleted:
			out.CompletedLeads++
		case leads.LeadStatusFailed:
			out.FailedLeads++
		case leads.LeadStatusPending:
			out.PendingLeads++
		}
	}
	return out, nil
}
