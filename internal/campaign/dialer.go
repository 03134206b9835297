package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"voice-agent/internal/config"
	"voice-agent/internal/leads"
	"voice-agent/internal/metrics"
	"voice-agent/pkg/utils"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

var (
	ErrAlreadyRunning = errors.New("campaign: already running")
	ErrNoPendingLeads = errors.New("campaign: no pending leads")
)

// LeadDialer places the outbound call for one lead.
type LeadDialer interface {
	DialLead(ctx context.Context, l leads.Lead, c leads.Campaign) (string, error)
}

// Result counts what one campaign run did. Skipped leads were never
// attempted because the run was cancelled first; they stay PENDING.
type Result struct {
	Dialed    int `json:"dialed"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

type dialOutcome int

const (
	dialCompleted dialOutcome = iota
	dialFailed
	dialSkipped
)

// slotGate bounds in-flight originations across processes.
type slotGate interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

const (
	slotTTL      = 2 * time.Minute
	slotWaitStep = 250 * time.Millisecond
)

// Dialer works through a campaign's pending leads with a fixed number of
// workers. Each lead's status is written exactly once per attempt.
type Dialer struct {
	leads       leads.Repository
	dialer      LeadDialer
	concurrency int

	// Optional cross-process cap on in-flight originations.
	slots slotGate

	log   *slog.Logger
	clock func() time.Time

	mu      sync.Mutex
	running map[string]struct{}
	wg      sync.WaitGroup
}

func NewDialer(repo leads.Repository, dialer LeadDialer, cfg config.DialerConfig, rdb *redis.Client, log *slog.Logger) *Dialer {
	if log == nil {
		log = slog.Default()
	}
	n := cfg.Concurrency
	if n <= 0 {
		n = 10
	}
	var slots slotGate
	if rdb != nil && cfg.GlobalCap > 0 {
		if sc, err := utils.NewSlotCap(rdb, utils.DialSlotKey(""), cfg.GlobalCap, slotTTL); err != nil {
			log.Warn("global dial cap disabled", "err", err)
		} else {
			slots = sc
		}
	}
	return &Dialer{
		leads:       repo,
		dialer:      dialer,
		concurrency: n,
		slots:       slots,
		log:         log,
		clock:       time.Now,
		running:     map[string]struct{}{},
	}
}

// Start validates the campaign and runs it in the background. A campaign
// already running in this process is refused.
func (d *Dialer) Start(ctx context.Context, campaignID string) error {
	if _, err := d.leads.GetCampaign(ctx, campaignID); err != nil {
		return err
	}
	if !d.claim(campaignID) {
		return ErrAlreadyRunning
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.release(campaignID)
		res, err := d.run(ctx, campaignID)
		if err != nil {
			d.log.Error("campaign run failed", "campaign_id", campaignID, "err", err)
			return
		}
		d.log.Info("campaign finished", "campaign_id", campaignID, "dialed", res.Dialed, "completed", res.Completed, "failed", res.Failed, "skipped", res.Skipped)
	}()
	return nil
}

// Run dials the campaign synchronously.
func (d *Dialer) Run(ctx context.Context, campaignID string) (Result, error) {
	if !d.claim(campaignID) {
		return Result{}, ErrAlreadyRunning
	}
	defer d.release(campaignID)
	return d.run(ctx, campaignID)
}

// Running reports whether campaignID is being dialed by this process.
func (d *Dialer) Running(campaignID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.running[campaignID]
	return ok
}

// Wait blocks until every background run has returned.
func (d *Dialer) Wait() { d.wg.Wait() }

func (d *Dialer) claim(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.running[id]; ok {
		return false
	}
	d.running[id] = struct{}{}
	return true
}

func (d *Dialer) release(id string) {
	d.mu.Lock()
	delete(d.running, id)
	d.mu.Unlock()
}

func (d *Dialer) run(ctx context.Context, campaignID string) (Result, error) {
	c, err := d.leads.GetCampaign(ctx, campaignID)
	if err != nil {
		return Result{}, err
	}
	pending, err := d.leads.ListPending(ctx, campaignID)
	if err != nil {
		return Result{}, fmt.Errorf("campaign: list pending: %w", err)
	}
	if len(pending) == 0 {
		return Result{}, ErrNoPendingLeads
	}
	if err := d.leads.SetCampaignStatus(ctx, campaignID, leads.CampaignStatusRunning); err != nil {
		return Result{}, fmt.Errorf("campaign: mark running: %w", err)
	}
	d.log.Info("campaign started", "campaign_id", campaignID, "leads", len(pending), "concurrency", d.concurrency)

	var (
		cursor    atomic.Int64
		completed atomic.Int64
		failed    atomic.Int64
	)
	g, gctx := errgroup.WithContext(ctx)
	workers := min(d.concurrency, len(pending))
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				i := int(cursor.Add(1) - 1)
				if i >= len(pending) || gctx.Err() != nil {
					return nil
				}
				switch d.dialOne(gctx, pending[i], c) {
				case dialCompleted:
					completed.Add(1)
				case dialFailed:
					failed.Add(1)
				}
			}
		})
	}
	_ = g.Wait()

	if err := d.leads.SetCampaignStatus(context.WithoutCancel(ctx), campaignID, leads.CampaignStatusStopped); err != nil {
		d.log.Error("campaign not marked stopped", "campaign_id", campaignID, "err", err)
	}
	res := Result{Completed: int(completed.Load()), Failed: int(failed.Load())}
	res.Dialed = res.Completed + res.Failed
	res.Skipped = len(pending) - res.Dialed
	return res, ctx.Err()
}

// dialOne originates one lead and records its status. A lead whose run is
// cancelled before it gets a dial slot is left untouched.
func (d *Dialer) dialOne(ctx context.Context, l leads.Lead, c leads.Campaign) dialOutcome {
	release, ok := d.acquireSlot(ctx)
	if !ok {
		d.log.Debug("lead skipped, run cancelled", "campaign_id", c.ID, "lead_id", l.ID)
		return dialSkipped
	}
	metrics.DialInFlight.Inc()
	callID, err := d.dialer.DialLead(ctx, l, c)
	metrics.DialInFlight.Dec()
	release()

	status := leads.LeadStatusCompleted
	if err != nil {
		status = leads.LeadStatusFailed
		d.log.Warn("origination failed", "campaign_id", c.ID, "lead_id", l.ID, "err", err)
	} else {
		d.log.Info("lead dialed", "campaign_id", c.ID, "lead_id", l.ID, "call_id", callID)
	}
	metrics.DialAttempts.WithLabelValues(string(status)).Inc()

	if uerr := d.leads.UpdateStatus(context.WithoutCancel(ctx), l.ID, status, d.clock()); uerr != nil {
		d.log.Error("lead status not saved", "lead_id", l.ID, "status", string(status), "err", uerr)
	}
	if err != nil {
		return dialFailed
	}
	return dialCompleted
}

// acquireSlot waits for a global dial slot when a cap is configured. It
// reports false once ctx is done. Redis errors fail open so a cache outage
// does not stop dialing.
func (d *Dialer) acquireSlot(ctx context.Context) (func(), bool) {
	noop := func() {}
	if ctx.Err() != nil {
		return noop, false
	}
	if d.slots == nil {
		return noop, true
	}
	for {
		ok, err := d.slots.TryAcquire(ctx)
		if ctx.Err() != nil {
			if ok {
				d.releaseSlot(ctx)
			}
			return noop, false
		}
		if err != nil {
			d.log.Warn("dial slot cap unavailable", "err", err)
			return noop, true
		}
		if ok {
			return func() { d.releaseSlot(ctx) }, true
		}
		select {
		case <-ctx.Done():
			return noop, false
		case <-time.After(slotWaitStep):
		}
	}
}

func (d *Dialer) releaseSlot(ctx context.Context) {
	if err := d.slots.Release(context.WithoutCancel(ctx)); err != nil {
		d.log.Warn("dial slot release failed", "err", err)
	}
}
