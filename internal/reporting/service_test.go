package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"voice-agent/internal/calls"
	"voice-agent/internal/leads"
)

func TestReporting_CallsSummaryAggregates(t *testing.T) {
	repo := calls.NewMemoryRepo()
	ctx := context.Background()
	for _, l := range []calls.CallLog{
		{CallID: "c1", CampaignID: "camp", Outcome: calls.OutcomeBooked, CallType: calls.CallTypeCampaign, DurationSeconds: 120},
		{CallID: "c2", CampaignID: "camp", Outcome: calls.OutcomeCompleted, CallType: calls.CallTypeCampaign, DurationSeconds: 60},
		{CallID: "c3", CampaignID: "camp", Outcome: calls.OutcomeBookingRejected, CallType: calls.CallTypeFollowUp, DurationSeconds: 30},
		{CallID: "c4", CampaignID: "other", Outcome: calls.OutcomeBooked, CallType: calls.CallTypeCampaign, DurationSeconds: 90},
	} {
		if _, err := repo.Create(ctx, l); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	svc := NewService(repo, nil)
	now := time.Now()

	out, err := svc.CallsSummary(ctx, CallsSummaryRequest{CampaignID: "camp", Range: TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 3 || out.BookedCalls != 1 || out.CompletedCalls != 1 || out.RejectedBooking != 1 || out.FollowUpCalls != 1 {
		t.Fatalf("unexpected summary: %+v", out)
	}
	if out.TotalDurationSeconds != 210 || out.AverageDurationSeconds != 70 {
		t.Fatalf("unexpected durations: %+v", out)
	}
	if out.BookingRate < 0.33 || out.BookingRate > 0.34 {
		t.Fatalf("expected booking rate 1/3, got %f", out.BookingRate)
	}
}

func TestReporting_CallsSummaryRejectsBadRange(t *testing.T) {
	svc := NewService(calls.NewMemoryRepo(), nil)
	now := time.Now()
	_, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{Range: TimeRange{From: now, To: now.Add(-time.Minute)}})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestReporting_CampaignStats(t *testing.T) {
	repo := leads.NewMemoryRepo()
	repo.AddCampaign(leads.Campaign{ID: "camp", Name: "June", Status: leads.CampaignStatusRunning})
	repo.AddLead(leads.Lead{ID: "l1", CampaignID: "camp", Status: leads.LeadStatusCompleted})
	repo.AddLead(leads.Lead{ID: "l2", CampaignID: "camp", Status: leads.LeadStatusFailed})
	repo.AddLead(leads.Lead{ID: "l3", CampaignID: "camp"})
	repo.AddLead(leads.Lead{ID: "l4", CampaignID: "other"})

	svc := NewService(nil, repo)
	out, err := svc.CampaignStats(context.Background(), "camp")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalLeads != 3 || out.CompletedLeads != 1 || out.FailedLeads != 1 || out.PendingLeads != 1 || out.Status != leads.CampaignStatusRunning {
		t.Fatalf("unexpected stats: %+v", out)
	}
	if _, err := svc.CampaignStats(context.Background(), "missing"); !errors.Is(err, leads.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
