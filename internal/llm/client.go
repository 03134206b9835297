// Package llm talks to the OpenAI-compatible reasoning engine.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"voice-agent/internal/config"
	"voice-agent/internal/metrics"

	openai "github.com/sashabaranov/go-openai"
)

var ErrNoChoices = errors.New("llm: completion returned no choices")

// FallbackReply is spoken when the reasoning engine fails.
const FallbackReply = "I'm sorry, can you repeat that?"

type chatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Role of a conversation turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewOpenAIClient builds a chat client for an OpenAI-compatible endpoint
// (Ollama, LM Studio, or the hosted API).
func NewOpenAIClient(cfg config.LLMConfig) *openai.Client {
	c := openai.DefaultConfig(cfg.APIKey)
	c.BaseURL = cfg.BaseURL
	return openai.NewClientWithConfig(c)
}

// Client produces agent replies, post-call reports, and follow-up greetings.
type Client struct {
	chat        chatClient
	model       string
	temperature float32
	maxTokens   int
	log         *slog.Logger
}

func NewClient(chat chatClient, cfg config.LLMConfig, log *slog.Logger) *Client {
	if chat == nil {
		panic("llm: chat client cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		chat:        chat,
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		maxTokens:   cfg.MaxTokens,
		log:         log,
	}
}

func (c *Client) complete(ctx context.Context, op string, req openai.ChatCompletionRequest) (string, error) {
	req.Model = c.model
	start := time.Now()
	resp, err := c.chat.CreateChatCompletion(ctx, req)
	metrics.CollaboratorLatency.WithLabelValues(op, metrics.Status(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("llm: %s: %w", op, err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	c.log.Debug("llm completion finished", "op", op, "model", c.model, "latency_ms", time.Since(start).Milliseconds())
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Reply answers the caller's latest utterance. The text may carry booking or
// callback markers; callers sanitize it before speaking.
func (c *Client) Reply(ctx context.Context, p Prompt) (string, error) {
	msgs := []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleSystem, Content: p.System()}}
	for _, t := range lastTurns(p.History, 3) {
		if t.Role == RoleUser && t.Content == p.Input {
			continue
		}
		msgs = append(msgs, toMessage(t))
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: p.Input})

	return c.complete(ctx, "llm_reply", openai.ChatCompletionRequest{
		Messages:    msgs,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
}

const reportPrompt = `Analyze the following call transcript and generate a professional production-level report.
Format:
- TITLE: [Professional Case Title]
- SUMMARY: [Short 2-line overview]
- CUSTOMER INTENT: [Why did they call?]
- OUTCOME: [Resolved/Follow-up needed]
- SENTIMENT: [Positive/Neutral/Negative]

If a demo was agreed but not yet confirmed, end the report with the booking tag:
[BOOK_DEMO: {"user_time": "...", "ist_time": "...", "timezone": "..."}]

Transcript:
%s`

// Report summarizes a finished call. An empty history yields an empty report.
func (c *Client) Report(ctx context.Context, history []Turn) (string, error) {
	if len(history) == 0 {
		return "", nil
	}
	return c.complete(ctx, "llm_report", openai.ChatCompletionRequest{
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(reportPrompt, Transcript(history))},
		},
		Temperature: 0.2,
		MaxTokens:   400,
	})
}

// FollowUp is the context a callback call starts from.
type FollowUp struct {
	LeadName         string
	Greeting         string
	PriorSummary     string
	PriorAppointment string
}

// FollowUpGreeting opens a callback call by referring back to the prior one.
func (c *Client) FollowUpGreeting(ctx context.Context, f FollowUp) (string, error) {
	var b strings.Builder
	b.WriteString("You are calling a lead back as promised. Write ONE short, warm opening line (max 25 words) in English.\n")
	fmt.Fprintf(&b, "Greeting to use: %s\n", orDefault(f.Greeting, "Hello"))
	if f.LeadName != "" {
		fmt.Fprintf(&b, "Lead name: %s\n", f.LeadName)
	}
	if f.PriorAppointment != "" {
		fmt.Fprintf(&b, "Previously discussed appointment: %s\n", f.PriorAppointment)
	}
	fmt.Fprintf(&b, "Summary of the previous call:\n%s\n", orDefault(f.PriorSummary, "None recorded."))
	b.WriteString("Do not include tags, JSON, or timestamps.")

	return c.complete(ctx, "llm_followup", openai.ChatCompletionRequest{
		Messages:    []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: b.String()}},
		Temperature: c.temperature,
		MaxTokens:   60,
	})
}

// Transcript renders history one turn per line.
func Transcript(history []Turn) string {
	var b strings.Builder
	for _, t := range history {
		fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

func toMessage(t Turn) openai.ChatCompletionMessage {
	role := openai.ChatMessageRoleUser
	if t.Role == RoleAgent {
		role = openai.ChatMessageRoleAssistant
	}
	return openai.ChatCompletionMessage{Role: role, Content: t.Content}
}

func lastTurns(h []Turn, n int) []Turn {
	if len(h) <= n {
		return h
	}
	return h[len(h)-n:]
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
