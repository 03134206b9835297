// Package session runs one conversational state machine per live call.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"voice-agent/internal/calls"
	"voice-agent/internal/knowledge"
	"voice-agent/internal/llm"
	"voice-agent/internal/metrics"
	"voice-agent/internal/sanitize"
	"voice-agent/internal/scheduling"
	"voice-agent/internal/telephony"
)

// State is a call session's position in the conversation loop.
type State string

const (
	StateGreeting        State = "GREETING"
	StateListening       State = "LISTENING"
	StateSilenceDetected State = "SILENCE_DETECTED"
	StateTranscribing    State = "TRANSCRIBING"
	StateReasoning       State = "REASONING"
	StateBookingCheck    State = "BOOKING_CHECK"
	StateSpeaking        State = "SPEAKING"
	StateEnded           State = "ENDED"
)

// End causes, also used as metric labels.
const (
	CauseHangup       = "hangup"
	CauseChannelGone  = "channel_gone"
	CauseWatchdog     = "watchdog"
	CauseShutdown     = "shutdown"
	CauseListenFailed = "listen_failed"
)

const (
	tagGreeting = "greeting"
	tagAck      = "ack"

	finalizeTimeout = 2 * time.Minute
)

// Party is who the call is with, resolved once at call start.
type Party struct {
	LeadID     string
	CampaignID string
	Name       string
	Phone      string
	Email      string
}

// Info is a point-in-time view of a session for the ops API.
type Info struct {
	CallID     string    `json:"call_id"`
	State      State     `json:"state"`
	StartedAt  time.Time `json:"started_at"`
	LeadID     string    `json:"lead_id,omitempty"`
	CampaignID string    `json:"campaign_id,omitempty"`
	FollowUp   bool      `json:"follow_up"`
	Turns      int       `json:"turns"`
}

// Session is the actor for one call. Telephony events are queued on its inbox
// and handled one at a time by run, so collaborator calls within a call never
// overlap.
type Session struct {
	CallID    string
	StartedAt time.Time
	Party     Party

	profile  knowledge.Profile
	followUp bool
	prior    llm.FollowUp

	e     *Engine
	log   *slog.Logger
	inbox chan telephony.Event
	done  chan struct{}

	ctx     context.Context
	cancel  context.CancelFunc
	endOnce sync.Once
	cause   string

	mu      sync.Mutex
	state   State
	history []llm.Turn

	// Owned by run.
	turn     int
	turnTag  string
	recPath  string
	ttsPath  string
	apptIDs  []string
	booked   bool
	rejected bool
}

func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		CallID:     s.CallID,
		State:      s.state,
		StartedAt:  s.StartedAt,
		LeadID:     s.Party.LeadID,
		CampaignID: s.Party.CampaignID,
		FollowUp:   s.followUp,
		Turns:      len(s.history),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// History returns a copy of the conversation so far.
func (s *Session) History() []llm.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Turn(nil), s.history...)
}

// Done is closed once the session has finished finalizing.
func (s *Session) Done() <-chan struct{} { return s.done }

// End stops the session. The first cause wins; later calls are no-ops.
func (s *Session) End(cause string) {
	s.endOnce.Do(func() {
		s.cause = cause
		s.cancel()
	})
}

func (s *Session) deliver(ev telephony.Event) {
	select {
	case s.inbox <- ev:
	case <-s.ctx.Done():
	}
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) appendTurn(role llm.Role, text string) {
	s.mu.Lock()
	s.history = append(s.history, llm.Turn{Role: role, Content: text})
	s.mu.Unlock()
}

func (s *Session) run() {
	defer close(s.done)
	defer s.finalize()

	if err := s.e.deps.Controller.Answer(s.ctx, s.CallID); err != nil {
		if telephony.IsChannelGone(err) {
			s.End(CauseChannelGone)
			return
		}
		s.log.Warn("answer failed", "err", err)
	}
	s.greet()

	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.inbox:
			s.handle(ev)
		}
	}
}

func (s *Session) handle(ev telephony.Event) {
	switch ev.Type {
	case telephony.EventPlaybackFinished:
		s.onPlaybackFinished(ev)
	case telephony.EventSilenceDetected:
		s.onSilence(ev)
	}
}

func (s *Session) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(s.ctx, s.e.settings.Session.OpTimeout)
}

func (s *Session) greet() {
	s.setState(StateGreeting)

	text := s.profile.Greeting
	if s.followUp {
		ctx, cancel := s.opContext()
		f := s.prior
		f.LeadName = s.Party.Name
		f.Greeting = s.e.deps.Resolver.Context(s.Party.Phone, s.e.clock()).Greeting
		line, err := s.e.deps.LLM.FollowUpGreeting(ctx, f)
		cancel()
		if err != nil {
			s.log.Warn("follow-up greeting failed", "err", err)
		} else if clean := sanitize.Text(line); clean != "" {
			text = clean
		}
	}

	name := fmt.Sprintf("tts_%s_greeting", s.CallID)
	media, path, err := s.synthesize(text, name)
	if err != nil {
		s.log.Warn("greeting synthesis failed", "err", err)
		media = s.e.settings.FallbackMedia
	}
	s.ttsPath = path
	s.appendTurn(llm.RoleAgent, text)

	if media == "" {
		s.listen()
		return
	}
	if err := s.e.deps.Controller.Play(s.ctx, s.CallID, media, tagGreeting); err != nil {
		if s.terminal(err) {
			return
		}
		s.log.Warn("greeting playback failed", "err", err)
		s.listen()
	}
}

func (s *Session) onPlaybackFinished(ev telephony.Event) {
	if ev.Tag == tagAck {
		return
	}
	switch st := s.State(); {
	case st == StateGreeting && ev.Tag == tagGreeting:
		s.cleanupTurn()
		s.listen()
	case st == StateSpeaking && ev.Tag == s.turnTag:
		s.cleanupTurn()
		s.listen()
	}
}

// listen starts the next recording turn unless the call is over.
func (s *Session) listen() {
	if s.ctx.Err() != nil {
		return
	}
	if cur, ok := s.e.deps.Registry.Get(s.CallID); !ok || cur != s {
		return
	}
	s.setState(StateListening)
	s.turn++
	p := telephony.ListenPolicy{
		Name:        fmt.Sprintf("rec_%s_%d", s.CallID, s.turn),
		MaxSilence:  s.e.settings.Session.SilenceDuration,
		MaxDuration: s.e.settings.Session.MaxListen,
	}
	if err := s.e.deps.Controller.Listen(s.ctx, s.CallID, p); err != nil {
		if s.terminal(err) {
			return
		}
		s.log.Error("listen failed", "err", err)
		s.End(CauseListenFailed)
	}
}

func (s *Session) onSilence(ev telephony.Event) {
	if s.State() != StateListening {
		return
	}
	s.setState(StateSilenceDetected)
	s.recPath = ev.RecordingPath

	if ev.Err != nil || ev.RecordingBytes < s.e.settings.Session.MinRecordingBytes {
		if ev.Err != nil && s.terminal(ev.Err) {
			return
		}
		metrics.SessionTurns.WithLabelValues("discarded").Inc()
		s.cleanupTurn()
		s.listen()
		return
	}

	s.setState(StateTranscribing)
	ctx, cancel := s.opContext()
	text, err := s.e.deps.Transcriber.Transcribe(ctx, ev.RecordingPath)
	cancel()
	if err != nil {
		s.log.Warn("transcription failed", "turn", s.turn, "err", err)
		metrics.SessionTurns.WithLabelValues("stt_error").Inc()
		s.cleanupTurn()
		s.listen()
		return
	}
	text = strings.TrimSpace(text)
	if len([]rune(text)) < s.e.settings.Session.MinTranscriptChars {
		metrics.SessionTurns.WithLabelValues("discarded").Inc()
		s.cleanupTurn()
		s.listen()
		return
	}
	s.log.Info("caller said", "turn", s.turn, "text", text)
	s.reason(text)
}

func (s *Session) reason(input string) {
	s.setState(StateReasoning)
	s.appendTurn(llm.RoleUser, input)

	if ack := s.e.settings.AckMedia; ack != "" {
		if err := s.e.deps.Controller.Play(s.ctx, s.CallID, ack, tagAck); err != nil && s.terminal(err) {
			return
		}
	}

	ctx, cancel := s.opContext()
	reply, err := s.e.deps.LLM.Reply(ctx, s.prompt(ctx, input))
	cancel()
	if err != nil {
		s.log.Warn("reasoning failed", "turn", s.turn, "err", err)
		metrics.SessionTurns.WithLabelValues("llm_error").Inc()
		s.cleanupTurn()
		s.listen()
		return
	}

	if intent := scheduling.ParseIntent(reply); !intent.Empty() {
		s.setState(StateBookingCheck)
		reply = s.applyIntent(intent, reply)
	}
	s.speak(reply)
}

func (s *Session) prompt(ctx context.Context, input string) llm.Prompt {
	d := s.e.deps
	now := s.e.clock()

	var slots []string
	if appts, err := d.Booker.BookedSlots(ctx, now); err != nil {
		s.log.Warn("booked slots unavailable", "err", err)
	} else {
		for _, a := range appts {
			slots = append(slots, d.Resolver.FormatReference(a.ScheduledAt))
		}
	}
	var learned llm.Learnings
	if d.Learner != nil {
		learned = d.Learner.Snapshot(ctx)
	}
	policy := d.Booker.Policy()
	openAt, closeAt := policy.Window()

	return llm.Prompt{
		AgentName:   s.e.settings.Session.AgentName,
		Company:     s.e.settings.Session.Company,
		Knowledge:   string(s.profile.Raw),
		Time:        d.Resolver.Context(s.Party.Phone, now),
		BookedSlots: slots,
		Window: llm.BusinessWindow{
			Open:      openAt,
			Close:     closeAt,
			ZoneLabel: now.In(d.Resolver.Reference()).Format("MST"),
			Buffer:    policy.Buffer,
		},
		Learnings: learned,
		History:   s.History(),
		Input:     input,
	}
}

// applyIntent acts on markers in reply and returns the line to speak. A
// booking that could not be stored replaces the reply, which would otherwise
// confirm it.
func (s *Session) applyIntent(intent scheduling.Intent, reply string) string {
	b := s.e.deps.Booker
	ctx, cancel := s.opContext()
	defer cancel()

	line := reply
	if m := intent.Booking; m != nil {
		res, err := b.Book(ctx, s.bookingRequest(*m))
		switch {
		case errors.Is(err, scheduling.ErrUnresolvedTime):
			return scheduling.ClarifyTimeLine
		case err != nil:
			s.log.Error("booking failed", "err", err)
			line = scheduling.BookingUnavailableLine
		case !res.Decision.Accepted:
			s.rejected = true
			return b.Renegotiation(res.Decision)
		default:
			s.booked = true
			s.apptIDs = append(s.apptIDs, res.Appointment.ID)
		}
	}
	if m := intent.Callback; m != nil {
		appt, err := b.ScheduleCallback(ctx, scheduling.CallbackRequest{
			CallID:     s.CallID,
			LeadID:     s.Party.LeadID,
			CampaignID: s.Party.CampaignID,
			Marker:     *m,
			Notes:      llm.Transcript(s.History()),
		})
		if err != nil {
			s.log.Warn("callback not scheduled", "err", err)
		} else {
			s.apptIDs = append(s.apptIDs, appt.ID)
		}
	}
	return line
}

func (s *Session) bookingRequest(m scheduling.BookingMarker) scheduling.BookingRequest {
	return scheduling.BookingRequest{
		CallID:     s.CallID,
		LeadID:     s.Party.LeadID,
		CampaignID: s.Party.CampaignID,
		LeadName:   s.Party.Name,
		LeadPhone:  s.Party.Phone,
		LeadEmail:  s.Party.Email,
		Marker:     m,
		CallerZone: s.e.deps.Resolver.Zone(s.Party.Phone),
	}
}

func (s *Session) speak(reply string) {
	s.setState(StateSpeaking)
	text := sanitize.Text(reply)
	if text == "" {
		text = llm.FallbackReply
	}
	s.appendTurn(llm.RoleAgent, text)

	media, path, err := s.synthesize(text, fmt.Sprintf("tts_%s_%d", s.CallID, s.turn))
	if err != nil {
		s.log.Warn("synthesis failed", "turn", s.turn, "err", err)
		metrics.SessionTurns.WithLabelValues("tts_error").Inc()
		s.cleanupTurn()
		s.listen()
		return
	}
	s.ttsPath = path
	s.turnTag = fmt.Sprintf("turn-%d", s.turn)
	if err := s.e.deps.Controller.Play(s.ctx, s.CallID, media, s.turnTag); err != nil {
		if s.terminal(err) {
			return
		}
		s.log.Warn("playback failed", "turn", s.turn, "err", err)
		s.cleanupTurn()
		s.listen()
		return
	}
	metrics.SessionTurns.WithLabelValues("reply").Inc()
}

// synthesize renders text into the sounds directory and returns the media
// reference to play it.
func (s *Session) synthesize(text, name string) (media, path string, err error) {
	path = filepath.Join(s.e.settings.SoundsDir, name+".wav")
	ctx, cancel := s.opContext()
	defer cancel()
	if _, err := s.e.deps.Synthesizer.Synthesize(ctx, text, path); err != nil {
		_ = os.Remove(path)
		return "", "", err
	}
	return s.e.settings.SoundURIBase + name, path, nil
}

// terminal ends the session when err means the channel is gone.
func (s *Session) terminal(err error) bool {
	if telephony.IsChannelGone(err) {
		s.End(CauseChannelGone)
		return true
	}
	return s.ctx.Err() != nil
}

func (s *Session) cleanupTurn() {
	for _, p := range []string{s.recPath, s.ttsPath} {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			s.log.Debug("artifact cleanup failed", "path", p, "err", err)
		}
	}
	s.recPath, s.ttsPath = "", ""
}

// finalize runs once after the loop stops: it removes the session from the
// registry, then writes the report, any pending booking and the call log.
func (s *Session) finalize() {
	// No-op unless the parent context was cancelled without an explicit cause.
	s.End(CauseShutdown)
	s.setState(StateEnded)
	s.cleanupTurn()

	d := s.e.deps
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), finalizeTimeout)
	defer cancel()

	if s.cause == CauseShutdown || s.cause == CauseListenFailed {
		if err := d.Controller.Hangup(ctx, s.CallID); err != nil && !telephony.IsChannelGone(err) {
			s.log.Warn("hangup failed", "err", err)
		}
	}
	if d.Registry.Remove(s) || s.cause == CauseWatchdog {
		metrics.SessionsEnded.WithLabelValues(s.cause).Inc()
	}

	duration := s.e.clock().Sub(s.StartedAt)
	history := s.History()
	if !hasCallerTurn(history) {
		s.log.Info("call ended without conversation", "cause", s.cause, "duration_s", int(duration.Seconds()))
		return
	}

	report, err := d.LLM.Report(ctx, history)
	if err != nil {
		s.log.Warn("report failed", "err", err)
	}
	if !s.booked {
		if m := scheduling.ParseIntent(report).Booking; m != nil && s.Party.LeadID != "" {
			res, err := d.Booker.Book(ctx, s.bookingRequest(*m))
			switch {
			case err != nil:
				s.log.Warn("post-call booking failed", "err", err)
			case res.Decision.Accepted:
				s.booked = true
				s.apptIDs = append(s.apptIDs, res.Appointment.ID)
			default:
				s.rejected = true
			}
		}
	}

	outcome := calls.OutcomeCompleted
	switch {
	case s.booked:
		outcome = calls.OutcomeBooked
	case s.rejected:
		outcome = calls.OutcomeBookingRejected
	}
	callType := calls.CallTypeCampaign
	if s.followUp {
		callType = calls.CallTypeFollowUp
	}

	entry, err := d.Calls.Create(ctx, calls.CallLog{
		CallID:          s.CallID,
		LeadID:          s.Party.LeadID,
		CampaignID:      s.Party.CampaignID,
		Phone:           s.Party.Phone,
		Transcript:      llm.Transcript(history),
		Report:          report,
		DurationSeconds: int(duration.Seconds()),
		Outcome:         outcome,
		CallType:        callType,
	})
	if err != nil {
		s.log.Error("call log not saved", "err", err)
	} else if err := d.Booker.AttachCallLog(ctx, s.apptIDs, entry.ID); err != nil {
		s.log.Warn("attach call log failed", "call_log_id", entry.ID, "err", err)
	}

	if d.Learner != nil {
		if _, err := d.Learner.Learn(ctx, history); err != nil {
			s.log.Warn("learning pass failed", "err", err)
		}
	}
	s.log.Info("call finished",
		"cause", s.cause,
		"outcome", string(outcome),
		"turns", len(history),
		"duration_s", int(duration.Seconds()),
	)
}

func hasCallerTurn(h []llm.Turn) bool {
	for _, t := range h {
		if t.Role == llm.RoleUser {
			return true
		}
	}
	return false
}
