package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"voice-agent/internal/calls"
	"voice-agent/internal/config"
	"voice-agent/internal/knowledge"
	"voice-agent/internal/leads"
	"voice-agent/internal/llm"
	"voice-agent/internal/scheduling"
	"voice-agent/internal/speech"
	"voice-agent/internal/telephony"
	"voice-agent/internal/timezone"
	"voice-agent/pkg/logger"
)

// Deps are the collaborators every session uses.
type Deps struct {
	Controller  telephony.Controller
	Registry    *Registry
	Leads       leads.Repository
	Calls       calls.Repository
	Knowledge   *knowledge.Store
	Resolver    *timezone.Resolver
	LLM         *llm.Client
	Learner     *llm.Learner
	Booker      *scheduling.Booker
	Transcriber speech.Transcriber
	Synthesizer speech.Synthesizer
}

// Settings are the per-process knobs sessions read.
type Settings struct {
	Session config.SessionConfig

	SoundsDir     string
	SoundURIBase  string
	AckMedia      string
	FallbackMedia string
}

func SettingsFrom(cfg config.Config) Settings {
	return Settings{
		Session:       cfg.Session,
		SoundsDir:     cfg.Paths.SoundsDir,
		SoundURIBase:  cfg.ARI.SoundURIBase,
		AckMedia:      cfg.ARI.AckMedia,
		FallbackMedia: cfg.ARI.FallbackMedia,
	}
}

// Engine receives telephony events, creates a session per new call and routes
// later events to it.
type Engine struct {
	deps     Deps
	settings Settings
	log      *slog.Logger
	clock    func() time.Time

	wg sync.WaitGroup
}

func NewEngine(deps Deps, settings Settings, log *slog.Logger) *Engine {
	if deps.Controller == nil || deps.Registry == nil || deps.Booker == nil || deps.LLM == nil {
		panic("session: controller, registry, booker and llm are required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{deps: deps, settings: settings, log: log, clock: time.Now}
}

func (e *Engine) Registry() *Registry { return e.deps.Registry }

// HandleEvent implements telephony.EventSink.
func (e *Engine) HandleEvent(ctx context.Context, ev telephony.Event) {
	switch ev.Type {
	case telephony.EventStarted:
		e.start(ctx, ev)
	case telephony.EventEnded:
		if s, ok := e.deps.Registry.Get(ev.CallID); ok {
			s.End(CauseHangup)
		}
	default:
		if s, ok := e.deps.Registry.Get(ev.CallID); ok {
			s.deliver(ev)
		}
	}
}

func (e *Engine) start(ctx context.Context, ev telephony.Event) {
	if _, ok := e.deps.Registry.Get(ev.CallID); ok {
		e.log.Debug("duplicate call start ignored", "call_id", ev.CallID)
		return
	}

	s := e.newSession(ctx, ev)
	if e.deps.Registry.Register(s) == nil {
		s.cancel()
		e.log.Debug("duplicate call start ignored", "call_id", ev.CallID)
		return
	}
	s.log.Info("call started",
		"lead_id", s.Party.LeadID,
		"campaign_id", s.Party.CampaignID,
		"knowledge_ref", s.profile.Ref,
		"follow_up", s.followUp,
	)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		s.run()
	}()
}

func (e *Engine) newSession(ctx context.Context, ev telephony.Event) *Session {
	vars := ev.Vars
	if vars == nil {
		vars = map[string]string{}
	}
	party := Party{
		LeadID:     vars[telephony.VarLeadID],
		CampaignID: vars[telephony.VarCampaignID],
		Name:       vars[telephony.VarLeadName],
		Phone:      firstNonEmpty(vars[telephony.VarLeadNumber], ev.Caller),
	}
	if party.LeadID != "" && e.deps.Leads != nil {
		if l, err := e.deps.Leads.Get(ctx, party.LeadID); err == nil {
			party.Name = firstNonEmpty(party.Name, l.Name)
			party.Phone = firstNonEmpty(party.Phone, l.Phone)
			party.Email = l.Email
			party.CampaignID = firstNonEmpty(party.CampaignID, l.CampaignID)
		} else {
			e.log.Warn("lead lookup failed", "call_id", ev.CallID, "lead_id", party.LeadID, "err", err)
		}
	}

	ref := vars[telephony.VarKnowledgeRef]
	if ref == "" && party.CampaignID != "" && e.deps.Leads != nil {
		if c, err := e.deps.Leads.GetCampaign(ctx, party.CampaignID); err == nil {
			ref = c.KnowledgeRef
		}
	}
	profile := knowledge.Default()
	if e.deps.Knowledge != nil {
		profile = e.deps.Knowledge.LoadOrDefault(ref)
	}

	sctx, cancel := context.WithCancel(ctx)
	return &Session{
		CallID:    ev.CallID,
		StartedAt: e.clock(),
		Party:     party,
		profile:   profile,
		followUp:  strings.EqualFold(vars[telephony.VarIsFollowUp], "true"),
		prior: llm.FollowUp{
			PriorSummary:     vars[telephony.VarPriorSummary],
			PriorAppointment: vars[telephony.VarPriorAppointment],
		},
		e:      e,
		log:    logger.ForCall(e.log, ev.CallID),
		inbox:  make(chan telephony.Event, 16),
		done:   make(chan struct{}),
		ctx:    sctx,
		cancel: cancel,
		state:  StateGreeting,
	}
}

// Wait blocks until every started session has finalized.
func (e *Engine) Wait() { e.wg.Wait() }

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
