package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"voice-agent/internal/appointments"
	"voice-agent/internal/audit"
	"voice-agent/internal/calls"
	"voice-agent/internal/config"
	"voice-agent/internal/knowledge"
	"voice-agent/internal/leads"
	"voice-agent/internal/llm"
	"voice-agent/internal/scheduling"
	"voice-agent/internal/telephony"
	"voice-agent/internal/timezone"

	openai "github.com/sashabaranov/go-openai"
)

type command struct {
	kind   string
	callID string
	arg    string
}

type fakeController struct {
	cmds chan command

	mu        sync.Mutex
	listenErr error
	counts    map[string]int
}

func newFakeController() *fakeController {
	return &fakeController{cmds: make(chan command, 64), counts: map[string]int{}}
}

func (f *fakeController) record(kind, callID, arg string) {
	f.mu.Lock()
	f.counts[kind]++
	f.mu.Unlock()
	f.cmds <- command{kind: kind, callID: callID, arg: arg}
}

func (f *fakeController) count(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[kind]
}

func (f *fakeController) Answer(ctx context.Context, callID string) error {
	f.record("answer", callID, "")
	return nil
}

func (f *fakeController) Play(ctx context.Context, callID, mediaURI, tag string) error {
	f.record("play", callID, tag)
	return nil
}

func (f *fakeController) Listen(ctx context.Context, callID string, p telephony.ListenPolicy) error {
	f.mu.Lock()
	err := f.listenErr
	f.mu.Unlock()
	f.record("listen", callID, p.Name)
	return err
}

func (f *fakeController) Hangup(ctx context.Context, callID string) error {
	f.record("hangup", callID, "")
	return nil
}

func (f *fakeController) Originate(ctx context.Context, req telephony.OriginateRequest) (string, error) {
	return "", errors.New("not supported")
}

// fakeChat answers reply prompts from a script, follow-up openers with
// followUp and report prompts with report. An empty script fails the turn.
type fakeChat struct {
	mu          sync.Mutex
	replies     []string
	report      string
	followUp    string
	followUpErr error
	systems     []string
}

func (f *fakeChat) CreateChatCompletion(ctx context.Context, r openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var content string
	switch {
	case r.Messages[0].Role == openai.ChatMessageRoleSystem:
		f.systems = append(f.systems, r.Messages[0].Content)
		if len(f.replies) == 0 {
			return openai.ChatCompletionResponse{}, errors.New("no scripted reply")
		}
		content, f.replies = f.replies[0], f.replies[1:]
	case strings.Contains(r.Messages[0].Content, "calling a lead back"):
		if f.followUpErr != nil {
			return openai.ChatCompletionResponse{}, f.followUpErr
		}
		content = f.followUp
	case strings.Contains(r.Messages[0].Content, "call transcript"):
		content = f.report
	default:
		content = "{}"
	}
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: content}}}}, nil
}

func (f *fakeChat) lastSystem() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.systems) == 0 {
		return ""
	}
	return f.systems[len(f.systems)-1]
}

type fakeSTT struct {
	mu    sync.Mutex
	texts []string
	err   error
	calls int
}

func (f *fakeSTT) Transcribe(ctx context.Context, wavPath string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if len(f.texts) == 0 {
		return "", nil
	}
	t := f.texts[0]
	f.texts = f.texts[1:]
	return t, nil
}

// fakeTTS fails any text containing failOn when it is set.
type fakeTTS struct {
	mu     sync.Mutex
	texts  []string
	failOn string
}

func (f *fakeTTS) Synthesize(ctx context.Context, text, outPath string) (int64, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	fail := f.failOn != "" && strings.Contains(text, f.failOn)
	f.mu.Unlock()
	if fail {
		return 0, errors.New("synthesis engine crashed")
	}
	if err := os.WriteFile(outPath, make([]byte, 2048), 0o644); err != nil {
		return 0, err
	}
	return 2048, nil
}

func (f *fakeTTS) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

type harness struct {
	t      *testing.T
	engine *Engine
	ctrl   *fakeController
	chat   *fakeChat
	stt    *fakeSTT
	tts    *fakeTTS
	appts  *appointments.MemoryRepo
	calls  *calls.MemoryRepo
	audit  *audit.MemoryRepo
	recDir string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	resolver, err := timezone.NewResolver("Asia/Kolkata")
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	h := &harness{
		t:      t,
		ctrl:   newFakeController(),
		chat:   &fakeChat{report: "TITLE: Demo call\nSUMMARY: Discussed a demo."},
		stt:    &fakeSTT{},
		tts:    &fakeTTS{},
		appts:  appointments.NewMemoryRepo(),
		calls:  calls.NewMemoryRepo(),
		audit:  audit.NewMemoryRepo(),
		recDir: t.TempDir(),
	}
	auditSvc := audit.NewService(h.audit)

	leadRepo := leads.NewMemoryRepo()
	leadRepo.AddCampaign(leads.Campaign{ID: "camp-1", Name: "June", KnowledgeRef: "missing"})
	leadRepo.AddLead(leads.Lead{ID: "lead-1", CampaignID: "camp-1", Name: "Asha", Phone: "+447700900123", Email: "asha@example.com"})

	booker := scheduling.NewBooker(h.appts, scheduling.DefaultPolicy(resolver.Reference()), resolver, auditSvc, nil, nil, nil)
	chatCfg := config.LLMConfig{Model: "test", MaxTokens: 80}

	deps := Deps{
		Controller:  h.ctrl,
		Registry:    NewRegistry(h.ctrl, auditSvc, 30*time.Minute, nil),
		Leads:       leadRepo,
		Calls:       h.calls,
		Resolver:    resolver,
		LLM:         llm.NewClient(h.chat, chatCfg, nil),
		Learner:     llm.NewLearner(h.chat, "test", llm.NewMemoryLearnings(), nil),
		Booker:      booker,
		Transcriber: h.stt,
		Synthesizer: h.tts,
	}
	settings := Settings{
		Session: config.SessionConfig{
			AgentName:          "Priya",
			Company:            "Acme",
			OpTimeout:          2 * time.Second,
			SilenceDuration:    time.Second,
			MaxListen:          10 * time.Second,
			MinRecordingBytes:  1000,
			MinTranscriptChars: 2,
		},
		SoundsDir:    t.TempDir(),
		SoundURIBase: "sound:agent/",
	}
	h.engine = NewEngine(deps, settings, nil)
	return h
}

func (h *harness) expect(kind string) command {
	h.t.Helper()
	select {
	case c := <-h.ctrl.cmds:
		if c.kind != kind {
			h.t.Fatalf("expected %s command, got %+v", kind, c)
		}
		return c
	case <-time.After(2 * time.Second):
		h.t.Fatalf("timed out waiting for %s command", kind)
	}
	return command{}
}

func (h *harness) start(callID string) {
	h.startWith(callID, map[string]string{telephony.VarLeadID: "lead-1", telephony.VarCampaignID: "camp-1"})
}

func (h *harness) startWith(callID string, vars map[string]string) {
	h.engine.HandleEvent(context.Background(), telephony.Event{
		Type:   telephony.EventStarted,
		CallID: callID,
		Caller: "+447700900123",
		Vars:   vars,
	})
}

func (h *harness) playbackFinished(callID, tag string) {
	h.engine.HandleEvent(context.Background(), telephony.Event{Type: telephony.EventPlaybackFinished, CallID: callID, Tag: tag})
}

// speakTurn simulates the caller talking into the recording named name.
func (h *harness) speakTurn(callID, name string, size int) string {
	h.t.Helper()
	path := filepath.Join(h.recDir, name+".wav")
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		h.t.Fatalf("write recording: %v", err)
	}
	h.engine.HandleEvent(context.Background(), telephony.Event{
		Type:           telephony.EventSilenceDetected,
		CallID:         callID,
		RecordingPath:  path,
		RecordingBytes: int64(size),
	})
	return path
}

func (h *harness) hangup(callID string) {
	h.engine.HandleEvent(context.Background(), telephony.Event{Type: telephony.EventEnded, CallID: callID})
	h.engine.Wait()
}

// greet drives a new call through its greeting into the first listen turn.
func (h *harness) greet(callID string) command {
	h.t.Helper()
	h.start(callID)
	return h.greeted(callID)
}

// greeted finishes the greeting of a call that was already started.
func (h *harness) greeted(callID string) command {
	h.t.Helper()
	h.expect("answer")
	if c := h.expect("play"); c.arg != tagGreeting {
		h.t.Fatalf("expected greeting playback, got %+v", c)
	}
	h.playbackFinished(callID, tagGreeting)
	return h.expect("listen")
}

func TestEngine_DuplicateStartIgnored(t *testing.T) {
	h := newHarness(t)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.start("chan-1")
		}()
	}
	wg.Wait()

	if n := h.engine.Registry().Len(); n != 1 {
		t.Fatalf("expected one registered session, got %d", n)
	}
	h.expect("answer")
	h.expect("play")
	if n := h.ctrl.count("answer"); n != 1 {
		t.Fatalf("expected one answer, got %d", n)
	}
	if got := h.tts.last(); got != "Hello, this is an AI agent. How can I help you?" {
		t.Fatalf("expected default greeting, got %q", got)
	}

	h.hangup("chan-1")
	if n := h.engine.Registry().Len(); n != 0 {
		t.Fatalf("expected registry empty after hangup, got %d", n)
	}
	if logs := h.calls.Logs(); len(logs) != 0 {
		t.Fatalf("expected no call log without a caller turn, got %d", len(logs))
	}
}

func TestSession_ShortRecordingReturnsToListening(t *testing.T) {
	h := newHarness(t)
	first := h.greet("chan-1")

	path := h.speakTurn("chan-1", first.arg, 0)
	second := h.expect("listen")
	if second.arg == first.arg {
		t.Fatalf("expected a fresh recording name, got %q twice", second.arg)
	}
	if h.stt.calls != 0 {
		t.Fatalf("expected no transcription for empty recording")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected discarded recording removed, stat err=%v", err)
	}
	h.hangup("chan-1")
}

func TestSession_BookingAcceptedOnWednesday(t *testing.T) {
	h := newHarness(t)
	h.stt.texts = []string{"Wednesday at ten in the morning my time please"}
	h.chat.replies = []string{`Perfect, you're booked for Wednesday at 10 AM your time. [BOOK_DEMO: {"user_time": "10:00 AM", "ist_time": "2025-06-11T14:30:00+05:30", "timezone": "Europe/London"}]`}

	rec := h.greet("chan-1")
	recPath := h.speakTurn("chan-1", rec.arg, 4000)
	if c := h.expect("play"); c.arg != "turn-1" {
		t.Fatalf("expected reply playback, got %+v", c)
	}
	spoken := h.tts.last()
	if strings.Contains(spoken, "BOOK_DEMO") || strings.Contains(spoken, "{") {
		t.Fatalf("marker leaked into speech: %q", spoken)
	}

	h.playbackFinished("chan-1", "turn-1")
	h.expect("listen")
	if _, err := os.Stat(recPath); !os.IsNotExist(err) {
		t.Fatalf("expected turn recording removed after playback, stat err=%v", err)
	}
	h.hangup("chan-1")

	booked, _ := h.appts.ListBookable(context.Background(), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), 10)
	if len(booked) != 1 {
		t.Fatalf("expected one appointment, got %d", len(booked))
	}
	a := booked[0]
	if a.Status != appointments.StatusScheduled || !a.ScheduledAt.Equal(time.Date(2025, 6, 11, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected appointment %+v", a)
	}

	logs := h.calls.Logs()
	if len(logs) != 1 {
		t.Fatalf("expected one call log, got %d", len(logs))
	}
	if logs[0].Outcome != calls.OutcomeBooked || logs[0].CallType != calls.CallTypeCampaign {
		t.Fatalf("unexpected call log %+v", logs[0])
	}
	got, _ := h.appts.Get(context.Background(), a.ID)
	if got.CallLogID != logs[0].ID {
		t.Fatalf("expected appointment linked to call log %q, got %q", logs[0].ID, got.CallLogID)
	}
	if n := len(h.audit.ByType(audit.EventTypeBookingAccepted)); n != 1 {
		t.Fatalf("expected one accepted audit entry, got %d", n)
	}
}

func TestSession_OutsideHoursRenegotiates(t *testing.T) {
	h := newHarness(t)
	h.stt.texts = []string{"How about Wednesday at six in the evening"}
	h.chat.replies = []string{`Booked! [BOOK_DEMO: {"user_time": "6:00 PM", "ist_time": "2025-06-11T22:30:00+05:30", "timezone": "Europe/London"}]`}

	rec := h.greet("chan-1")
	h.speakTurn("chan-1", rec.arg, 4000)
	h.expect("play")

	spoken := h.tts.last()
	if !strings.Contains(spoken, "only available between 9 AM and 9 PM India time") {
		t.Fatalf("expected renegotiation line, got %q", spoken)
	}
	if strings.Contains(spoken, "OUTSIDE_HOURS") || strings.Contains(spoken, "Booked") {
		t.Fatalf("rejection leaked into speech: %q", spoken)
	}
	h.hangup("chan-1")

	if booked, _ := h.appts.ListBookable(context.Background(), time.Time{}, 10); len(booked) != 0 {
		t.Fatalf("expected no appointment, got %d", len(booked))
	}
	logs := h.calls.Logs()
	if len(logs) != 1 || logs[0].Outcome != calls.OutcomeBookingRejected {
		t.Fatalf("expected BOOKING_REJECTED log, got %+v", logs)
	}
}

func TestSession_ReportMarkerBooksAfterCall(t *testing.T) {
	h := newHarness(t)
	h.stt.texts = []string{"Thursday at noon works for me"}
	h.chat.replies = []string{"Sounds good, I will note that down."}
	h.chat.report = `TITLE: Demo agreed
SUMMARY: Lead agreed to a Thursday demo.
[BOOK_DEMO: {"user_time": "12:00 PM", "ist_time": "2025-06-12T16:30:00+05:30", "timezone": "Europe/London"}]`

	rec := h.greet("chan-1")
	h.speakTurn("chan-1", rec.arg, 4000)
	h.expect("play")
	h.hangup("chan-1")

	booked, _ := h.appts.ListBookable(context.Background(), time.Time{}, 10)
	if len(booked) != 1 {
		t.Fatalf("expected appointment from report marker, got %d", len(booked))
	}
	logs := h.calls.Logs()
	if len(logs) != 1 || logs[0].Outcome != calls.OutcomeBooked {
		t.Fatalf("expected BOOKED log, got %+v", logs)
	}
}

func TestSession_FailedBookingIsNotConfirmed(t *testing.T) {
	h := newHarness(t)
	h.stt.texts = []string{"Wednesday at ten in the morning works"}
	h.chat.replies = []string{`Great, you're all set for Wednesday at 10 AM! [BOOK_DEMO: {"user_time": "10:00 AM", "ist_time": "2025-06-11T14:30:00+05:30", "timezone": "Europe/London"}]`}

	// No lead on the channel, so the booking cannot be stored.
	h.startWith("chan-1", map[string]string{})
	rec := h.greeted("chan-1")
	h.speakTurn("chan-1", rec.arg, 4000)
	h.expect("play")

	if got := h.tts.last(); got != scheduling.BookingUnavailableLine {
		t.Fatalf("expected unavailable line, got %q", got)
	}
	h.hangup("chan-1")

	if booked, _ := h.appts.ListBookable(context.Background(), time.Time{}, 10); len(booked) != 0 {
		t.Fatalf("expected no appointment, got %d", len(booked))
	}
	logs := h.calls.Logs()
	if len(logs) != 1 || logs[0].Outcome != calls.OutcomeCompleted {
		t.Fatalf("expected COMPLETED log, got %+v", logs)
	}
	if strings.Contains(logs[0].Transcript, "all set") {
		t.Fatalf("unstored booking confirmed in transcript: %q", logs[0].Transcript)
	}
}

func TestSession_TranscriptionErrorReturnsToListening(t *testing.T) {
	h := newHarness(t)
	h.stt.err = errors.New("stt engine unreachable")

	first := h.greet("chan-1")
	h.speakTurn("chan-1", first.arg, 4000)
	second := h.expect("listen")
	if second.arg == first.arg {
		t.Fatalf("expected a fresh recording name, got %q twice", second.arg)
	}
	if n := h.ctrl.count("play"); n != 1 {
		t.Fatalf("expected only the greeting played, got %d plays", n)
	}
	s, ok := h.engine.Registry().Get("chan-1")
	if !ok || s.State() != StateListening {
		t.Fatalf("expected session listening, ok=%v", ok)
	}
	if n := len(s.History()); n != 1 {
		t.Fatalf("expected greeting only in history, got %d turns", n)
	}
	h.hangup("chan-1")
	if logs := h.calls.Logs(); len(logs) != 0 {
		t.Fatalf("expected no call log, got %d", len(logs))
	}
}

func TestSession_ReasoningErrorReturnsToListening(t *testing.T) {
	h := newHarness(t)
	h.stt.texts = []string{"Tell me more about pricing"}

	rec := h.greet("chan-1")
	h.speakTurn("chan-1", rec.arg, 4000)
	h.expect("listen")

	if n := h.ctrl.count("play"); n != 1 {
		t.Fatalf("expected no reply playback, got %d plays", n)
	}
	s, ok := h.engine.Registry().Get("chan-1")
	if !ok || s.State() != StateListening {
		t.Fatalf("expected session listening, ok=%v", ok)
	}
	hist := s.History()
	if len(hist) != 2 || hist[1].Role != llm.RoleUser {
		t.Fatalf("expected greeting then caller turn, got %+v", hist)
	}
	h.hangup("chan-1")
	if logs := h.calls.Logs(); len(logs) != 1 {
		t.Fatalf("expected call log for the caller turn, got %d", len(logs))
	}
}

func TestSession_ShortTranscriptAddsNoHistory(t *testing.T) {
	h := newHarness(t)
	h.stt.texts = []string{" a "}

	rec := h.greet("chan-1")
	h.speakTurn("chan-1", rec.arg, 4000)
	h.expect("listen")

	s, ok := h.engine.Registry().Get("chan-1")
	if !ok {
		t.Fatalf("session missing")
	}
	if n := len(s.History()); n != 1 {
		t.Fatalf("expected short transcript dropped, got %d turns", n)
	}
	if n := len(h.chat.lastSystem()); n != 0 {
		t.Fatalf("expected no reasoning call for a short transcript")
	}
	h.hangup("chan-1")
}

func TestSession_SynthesisFailureSkipsTurn(t *testing.T) {
	h := newHarness(t)
	h.stt.texts = []string{"What does it cost", "And support?"}
	h.chat.replies = []string{"It starts at ten dollars a seat.", "Support is included."}
	h.tts.failOn = "ten dollars"

	rec := h.greet("chan-1")
	h.speakTurn("chan-1", rec.arg, 4000)
	next := h.expect("listen")
	if n := h.ctrl.count("play"); n != 1 {
		t.Fatalf("expected failed reply not played, got %d plays", n)
	}
	if s, ok := h.engine.Registry().Get("chan-1"); !ok || s.State() != StateListening {
		t.Fatalf("expected session listening after synthesis failure")
	}

	h.speakTurn("chan-1", next.arg, 4000)
	if c := h.expect("play"); c.arg != "turn-2" {
		t.Fatalf("expected second reply playback, got %+v", c)
	}
	if got := h.tts.last(); got != "Support is included." {
		t.Fatalf("unexpected reply %q", got)
	}
	h.hangup("chan-1")
}

func TestSession_CallbackMarkerSchedulesFollowUp(t *testing.T) {
	h := newHarness(t)
	h.stt.texts = []string{"I'm busy right now, call me in an hour"}
	h.chat.replies = []string{`No problem, I'll call you back in an hour. [SCHEDULE_CALLBACK: {"delay_minutes": 60, "reason": "lead busy"}]`}

	rec := h.greet("chan-1")
	h.speakTurn("chan-1", rec.arg, 4000)
	h.expect("play")
	if spoken := h.tts.last(); strings.Contains(spoken, "SCHEDULE_CALLBACK") || strings.Contains(spoken, "{") {
		t.Fatalf("marker leaked into speech: %q", spoken)
	}
	h.hangup("chan-1")

	pending, _ := h.appts.ListPendingCallbacks(context.Background())
	if len(pending) != 1 {
		t.Fatalf("expected one pending callback, got %d", len(pending))
	}
	a := pending[0]
	if a.Status != appointments.StatusFollowUp || !a.IsAutoCallback || a.LeadID != "lead-1" {
		t.Fatalf("unexpected callback %+v", a)
	}
	if !strings.Contains(a.Notes, "lead busy") || !strings.Contains(a.Notes, "call me in an hour") {
		t.Fatalf("expected reason and transcript in notes, got %q", a.Notes)
	}
	logs := h.calls.Logs()
	if len(logs) != 1 || logs[0].Outcome != calls.OutcomeCompleted {
		t.Fatalf("expected COMPLETED log, got %+v", logs)
	}
	if got, _ := h.appts.Get(context.Background(), a.ID); got.CallLogID != logs[0].ID {
		t.Fatalf("expected callback linked to call log %q, got %q", logs[0].ID, got.CallLogID)
	}
	if n := len(h.audit.ByType(audit.EventTypeCallbackScheduled)); n != 1 {
		t.Fatalf("expected one callback audit entry, got %d", n)
	}
}

func TestSession_FollowUpGreeting(t *testing.T) {
	followUpVars := map[string]string{
		telephony.VarLeadID:       "lead-1",
		telephony.VarCampaignID:   "camp-1",
		telephony.VarIsFollowUp:   "true",
		telephony.VarPriorSummary: "Asked to be called back after lunch.",
	}
	cases := []struct {
		name     string
		line     string
		err      error
		greeting string
	}{
		{"generated", "Hi Asha, calling you back about the demo as promised.", nil, "Hi Asha, calling you back about the demo as promised."},
		{"engine error", "", errors.New("llm down"), knowledge.DefaultGreeting},
		{"nothing speakable", `[BOOK_DEMO: {"user_time": "3 PM"}]`, nil, knowledge.DefaultGreeting},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.chat.followUp = tc.line
			h.chat.followUpErr = tc.err

			h.startWith("chan-1", followUpVars)
			h.greeted("chan-1")
			if got := h.tts.last(); got != tc.greeting {
				t.Fatalf("expected greeting %q, got %q", tc.greeting, got)
			}
			h.hangup("chan-1")
		})
	}
}

func TestSession_PromptUsesConfiguredPersona(t *testing.T) {
	cfg := config.Config{Session: config.SessionConfig{AgentName: "Priya", Company: "Acme"}}
	if got := SettingsFrom(cfg).Session; got.AgentName != "Priya" || got.Company != "Acme" {
		t.Fatalf("persona not carried into settings: %+v", got)
	}

	h := newHarness(t)
	h.stt.texts = []string{"Who is this?"}
	h.chat.replies = []string{"This is Priya from Acme."}

	rec := h.greet("chan-1")
	h.speakTurn("chan-1", rec.arg, 4000)
	h.expect("play")

	sys := h.chat.lastSystem()
	if !strings.HasPrefix(sys, "You are Priya, a professional outbound agent from Acme.") {
		t.Fatalf("unexpected persona in prompt:\n%s", sys)
	}
	if !strings.Contains(sys, "within 15 minutes of a booked slot") {
		t.Fatalf("expected booking buffer in prompt:\n%s", sys)
	}
	h.hangup("chan-1")
}

func TestSession_ChannelGoneEndsSession(t *testing.T) {
	h := newHarness(t)
	h.ctrl.listenErr = errors.New("ari: 404 Channel not found")

	h.greet("chan-1")
	h.engine.Wait()

	if n := h.engine.Registry().Len(); n != 0 {
		t.Fatalf("expected session removed, got %d", n)
	}
	if n := h.ctrl.count("hangup"); n != 0 {
		t.Fatalf("expected no hangup for a vanished channel, got %d", n)
	}
}

func TestRegistry_WatchdogForceEndsStaleSessions(t *testing.T) {
	h := newHarness(t)
	h.greet("chan-old")

	reg := h.engine.Registry()
	reg.clock = func() time.Time { return time.Now().Add(31 * time.Minute) }
	if n := reg.Reap(context.Background()); n != 1 {
		t.Fatalf("expected one session reaped, got %d", n)
	}
	h.expect("hangup")
	h.engine.Wait()

	if reg.Len() != 0 {
		t.Fatalf("expected registry empty")
	}
	if n := len(h.audit.ByType(audit.EventTypeSessionForceEnded)); n != 1 {
		t.Fatalf("expected force-end audit entry, got %d", n)
	}
	if n := reg.Reap(context.Background()); n != 0 {
		t.Fatalf("expected nothing left to reap, got %d", n)
	}
}

func TestRegistry_RegisterIsIdempotent(t *testing.T) {
	reg := NewRegistry(newFakeController(), nil, time.Minute, nil)
	s := &Session{CallID: "chan-1"}

	if got := reg.Register(s); got != s {
		t.Fatalf("expected first register to return the session")
	}
	if got := reg.Register(&Session{CallID: "chan-1"}); got != nil {
		t.Fatalf("expected duplicate register to return nil")
	}
	if cur, _ := reg.Get("chan-1"); cur != s {
		t.Fatalf("expected original session to stay registered")
	}
	if !reg.Remove(s) || reg.Remove(s) {
		t.Fatalf("expected exactly one successful remove")
	}
}

func TestJanitor_SweepRemovesStaleArtifacts(t *testing.T) {
	dir := t.TempDir()
	old := time.Now().Add(-2 * time.Hour)
	files := map[string]bool{
		"rec_chan-1_1.wav":      true,
		"tts_chan-1_2.wav":      true,
		"greeting-custom.wav":   false,
		"rec_chan-1_notes.json": false,
	}
	for name := range files {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := os.Chtimes(p, old, old); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}
	fresh := filepath.Join(dir, "rec_chan-2_1.wav")
	if err := os.WriteFile(fresh, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	j := NewJanitor([]string{dir, filepath.Join(dir, "missing")}, time.Hour, nil)
	if n := j.Sweep(); n != 2 {
		t.Fatalf("expected 2 removed, got %d", n)
	}
	for name, removed := range files {
		_, err := os.Stat(filepath.Join(dir, name))
		if removed != os.IsNotExist(err) {
			t.Fatalf("%s: removed=%v, stat err=%v", name, removed, err)
		}
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("expected fresh artifact kept: %v", err)
	}
}
