package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"voice-agent/internal/config"
	"voice-agent/internal/timezone"

	openai "github.com/sashabaranov/go-openai"
)

type fakeChat struct {
	replies []string
	err     error
	reqs    []openai.ChatCompletionRequest
}

func (f *fakeChat) CreateChatCompletion(ctx context.Context, r openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.reqs = append(f.reqs, r)
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	if len(f.replies) == 0 {
		return openai.ChatCompletionResponse{}, nil
	}
	content := f.replies[0]
	f.replies = f.replies[1:]
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: content}}}}, nil
}

func testConfig() config.LLMConfig {
	return config.LLMConfig{Model: "llama3.1", Temperature: 0.5, MaxTokens: 80}
}

func TestReply_BuildsConversation(t *testing.T) {
	chat := &fakeChat{replies: []string{"  Sure, Wednesday works.  "}}
	c := NewClient(chat, testConfig(), nil)

	history := []Turn{
		{RoleAgent, "Good Morning, this is Sam."},
		{RoleUser, "Hi"},
		{RoleAgent, "Would you like a demo?"},
		{RoleUser, "Yes, Wednesday at 10"},
	}
	got, err := c.Reply(context.Background(), Prompt{
		Time:        timezone.TimeContext{Zone: "Europe/London", UserTime: "09:00 AM"},
		BookedSlots: []string{"Jun 11, 03:00 PM IST"},
		Window:      BusinessWindow{Open: "9 AM", Close: "9 PM", ZoneLabel: "IST"},
		History:     history,
		Input:       "Yes, Wednesday at 10",
	})
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if got != "Sure, Wednesday works." {
		t.Fatalf("unexpected reply %q", got)
	}

	req := chat.reqs[0]
	if req.Model != "llama3.1" || req.MaxTokens != 80 || req.Temperature != 0.5 {
		t.Fatalf("unexpected request params: %+v", req)
	}
	msgs := req.Messages
	if msgs[0].Role != openai.ChatMessageRoleSystem || msgs[len(msgs)-1].Content != "Yes, Wednesday at 10" {
		t.Fatalf("unexpected framing: %+v", msgs)
	}
	for _, m := range msgs[1 : len(msgs)-1] {
		if m.Content == "Yes, Wednesday at 10" {
			t.Fatalf("current input must not be duplicated in history")
		}
	}
	sys := msgs[0].Content
	for _, want := range []string{"Jun 11, 03:00 PM IST", "9 AM and 9 PM IST", "[BOOK_DEMO:", "[SCHEDULE_CALLBACK:", "Europe/London"} {
		if !strings.Contains(sys, want) {
			t.Fatalf("system prompt missing %q", want)
		}
	}
}

func TestReply_Errors(t *testing.T) {
	c := NewClient(&fakeChat{err: errors.New("boom")}, testConfig(), nil)
	if _, err := c.Reply(context.Background(), Prompt{Input: "hi"}); err == nil {
		t.Fatalf("expected error")
	}
	c = NewClient(&fakeChat{}, testConfig(), nil)
	if _, err := c.Reply(context.Background(), Prompt{Input: "hi"}); !errors.Is(err, ErrNoChoices) {
		t.Fatalf("expected ErrNoChoices, got %v", err)
	}
}

func TestReport_EmptyHistory(t *testing.T) {
	chat := &fakeChat{}
	c := NewClient(chat, testConfig(), nil)
	got, err := c.Report(context.Background(), nil)
	if err != nil || got != "" || len(chat.reqs) != 0 {
		t.Fatalf("expected no call for empty history, got %q %v %d", got, err, len(chat.reqs))
	}
}

func TestSystemPrompt_KeepsLastFiveTurns(t *testing.T) {
	var h []Turn
	for i := 0; i < 8; i++ {
		h = append(h, Turn{RoleUser, "turn-" + string(rune('a'+i))})
	}
	sys := Prompt{History: h}.System()
	if strings.Contains(sys, "turn-c") || !strings.Contains(sys, "turn-d") || !strings.Contains(sys, "turn-h") {
		t.Fatalf("expected only the last five turns:\n%s", sys)
	}
}

func TestSystemPrompt_StatesConfiguredBuffer(t *testing.T) {
	sys := Prompt{Window: BusinessWindow{Open: "9 AM", Close: "9 PM", ZoneLabel: "IST", Buffer: 30 * time.Minute}}.System()
	if !strings.Contains(sys, "within 30 minutes of a booked slot") {
		t.Fatalf("expected configured buffer in prompt:\n%s", sys)
	}
	if sys := (Prompt{}).System(); !strings.Contains(sys, "within 15 minutes of a booked slot") {
		t.Fatalf("expected default buffer in prompt:\n%s", sys)
	}
}

func TestSystemPrompt_UsesPersona(t *testing.T) {
	sys := Prompt{AgentName: "Priya", Company: "Acme"}.System()
	if !strings.HasPrefix(sys, "You are Priya, a professional outbound agent from Acme.") {
		t.Fatalf("unexpected persona line:\n%s", sys)
	}
}

func TestSimilarToAny(t *testing.T) {
	known := []string{"Would a quick 15-minute demo work for you?"}
	if !SimilarToAny("would a quick 15 minute demo work for you", known) {
		t.Fatalf("expected normalized duplicate")
	}
	if SimilarToAny("Happy to send over the pricing sheet.", known) {
		t.Fatalf("unexpected similarity")
	}
	if SimilarToAny("anything", nil) {
		t.Fatalf("nothing is similar to an empty set")
	}
}

func TestLearner_DedupesAgainstStore(t *testing.T) {
	store := NewMemoryLearnings()
	_ = store.Add(context.Background(), KindRule, "Always confirm the caller's email before booking.")

	chat := &fakeChat{replies: []string{`Here you go: {"new_effective_phrases": ["That makes total sense.", "That makes total sense!"], "new_dynamic_rules": ["always confirm the callers email before booking"]}`}}
	l := NewLearner(chat, "llama3.1", store, nil)

	n, err := l.Learn(context.Background(), []Turn{{RoleAgent, "Hi"}, {RoleUser, "Hello"}})
	if err != nil {
		t.Fatalf("Learn: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one new learning, got %d", n)
	}
	snap := l.Snapshot(context.Background())
	if len(snap.EffectivePhrases) != 1 || len(snap.DynamicRules) != 1 {
		t.Fatalf("unexpected learnings: %+v", snap)
	}
}

func TestLearner_SkipsShortCalls(t *testing.T) {
	chat := &fakeChat{}
	l := NewLearner(chat, "m", NewMemoryLearnings(), nil)
	if n, err := l.Learn(context.Background(), []Turn{{RoleAgent, "Hi"}}); n != 0 || err != nil || len(chat.reqs) != 0 {
		t.Fatalf("expected no learning pass for one turn")
	}
}
