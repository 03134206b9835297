package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	openai "github.com/sashabaranov/go-openai"
)

// Learnings are phrases and rules distilled from past calls and fed back into
// every prompt.
type Learnings struct {
	EffectivePhrases []string `json:"effective_phrases"`
	DynamicRules     []string `json:"dynamic_rules"`
	ProhibitedTerms  []string `json:"prohibited_terms"`
}

type LearningKind string

const (
	KindPhrase     LearningKind = "effective_phrases"
	KindRule       LearningKind = "dynamic_rules"
	KindProhibited LearningKind = "prohibited_terms"
)

// LearningStore persists Learnings. Dedupe happens in Learner, not here.
type LearningStore interface {
	Snapshot(ctx context.Context) (Learnings, error)
	Add(ctx context.Context, kind LearningKind, items ...string) error
}

// MemoryLearnings is an in-process LearningStore.
type MemoryLearnings struct {
	mu sync.Mutex
	l  Learnings
}

func NewMemoryLearnings() *MemoryLearnings { return &MemoryLearnings{} }

func (m *MemoryLearnings) Snapshot(ctx context.Context) (Learnings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Learnings{
		EffectivePhrases: append([]string(nil), m.l.EffectivePhrases...),
		DynamicRules:     append([]string(nil), m.l.DynamicRules...),
		ProhibitedTerms:  append([]string(nil), m.l.ProhibitedTerms...),
	}, nil
}

func (m *MemoryLearnings) Add(ctx context.Context, kind LearningKind, items ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch kind {
	case KindPhrase:
		m.l.EffectivePhrases = append(m.l.EffectivePhrases, items...)
	case KindRule:
		m.l.DynamicRules = append(m.l.DynamicRules, items...)
	case KindProhibited:
		m.l.ProhibitedTerms = append(m.l.ProhibitedTerms, items...)
	default:
		return fmt.Errorf("llm: unknown learning kind %q", kind)
	}
	return nil
}

// RedisLearnings keeps one Redis set per kind so every agent process shares
// what was learned.
type RedisLearnings struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisLearnings(rdb *redis.Client) *RedisLearnings {
	return &RedisLearnings{rdb: rdb, prefix: "voice-agent:learnings:"}
}

func (r *RedisLearnings) key(kind LearningKind) string { return r.prefix + string(kind) }

func (r *RedisLearnings) Snapshot(ctx context.Context) (Learnings, error) {
	pipe := r.rdb.Pipeline()
	phrases := pipe.SMembers(ctx, r.key(KindPhrase))
	rules := pipe.SMembers(ctx, r.key(KindRule))
	prohibited := pipe.SMembers(ctx, r.key(KindProhibited))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return Learnings{}, fmt.Errorf("llm: load learnings: %w", err)
	}
	return Learnings{
		EffectivePhrases: phrases.Val(),
		DynamicRules:     rules.Val(),
		ProhibitedTerms:  prohibited.Val(),
	}, nil
}

func (r *RedisLearnings) Add(ctx context.Context, kind LearningKind, items ...string) error {
	if len(items) == 0 {
		return nil
	}
	members := make([]interface{}, len(items))
	for i, it := range items {
		members[i] = it
	}
	return r.rdb.SAdd(ctx, r.key(kind), members...).Err()
}

const learnPrompt = `You are an AI Architect. Analyze this call history and extract NEW 1-2 learning points.
Filter out garbage, abuse, or redundancy.
Output ONLY a JSON object with:
{
  "new_effective_phrases": [str],
  "new_dynamic_rules": [str]
}

Transcript:
%s`

// Learner runs the post-call learning pass.
type Learner struct {
	chat  chatClient
	model string
	store LearningStore
	log   *slog.Logger
}

func NewLearner(chat chatClient, model string, store LearningStore, log *slog.Logger) *Learner {
	if log == nil {
		log = slog.Default()
	}
	return &Learner{chat: chat, model: model, store: store, log: log}
}

func (l *Learner) Snapshot(ctx context.Context) Learnings {
	s, err := l.store.Snapshot(ctx)
	if err != nil {
		l.log.Warn("learnings unavailable", "err", err)
		return Learnings{}
	}
	return s
}

var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

// Learn extracts new phrases and rules from history and stores those not
// already known. It returns how many were added.
func (l *Learner) Learn(ctx context.Context, history []Turn) (int, error) {
	if len(history) < 2 {
		return 0, nil
	}
	c := &Client{chat: l.chat, model: l.model, log: l.log}
	content, err := c.complete(ctx, "llm_learn", openai.ChatCompletionRequest{
		Messages:    []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(learnPrompt, Transcript(history))}},
		Temperature: 0.3,
		MaxTokens:   200,
	})
	if err != nil {
		return 0, err
	}
	raw := jsonObject.FindString(content)
	if raw == "" {
		return 0, nil
	}
	var insights struct {
		Phrases []string `json:"new_effective_phrases"`
		Rules   []string `json:"new_dynamic_rules"`
	}
	if err := json.Unmarshal([]byte(raw), &insights); err != nil {
		return 0, fmt.Errorf("llm: parse learnings: %w", err)
	}

	known, err := l.store.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	phrases := novel(insights.Phrases, known.EffectivePhrases)
	rules := novel(insights.Rules, known.DynamicRules)
	if err := l.store.Add(ctx, KindPhrase, phrases...); err != nil {
		return 0, err
	}
	if err := l.store.Add(ctx, KindRule, rules...); err != nil {
		return len(phrases), err
	}
	added := len(phrases) + len(rules)
	if added > 0 {
		l.log.Info("learnings integrated", "phrases", len(phrases), "rules", len(rules))
	}
	return added, nil
}

// novel keeps candidates not similar to anything known or already kept.
func novel(candidates, known []string) []string {
	var out []string
	seen := append([]string(nil), known...)
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" || SimilarToAny(c, seen) {
			continue
		}
		out = append(out, c)
		seen = append(seen, c)
	}
	return out
}

var nonWord = regexp.MustCompile(`[^\w\s]`)

func normalizeText(s string) string {
	return strings.Join(strings.Fields(nonWord.ReplaceAllString(strings.ToLower(s), "")), " ")
}

// SimilarToAny reports whether s matches an existing entry after
// normalization, or shares more than 90% of its words with one.
func SimilarToAny(s string, existing []string) bool {
	n := normalizeText(s)
	words := strings.Fields(n)
	for _, e := range existing {
		en := normalizeText(e)
		if n == en {
			return true
		}
		ewords := strings.Fields(en)
		set := make(map[string]bool, len(ewords))
		for _, w := range ewords {
			set[w] = true
		}
		common := 0
		for _, w := range words {
			if set[w] {
				common++
			}
		}
		longest := len(words)
		if len(ewords) > longest {
			longest = len(ewords)
		}
		if longest > 0 && float64(common)/float64(longest) > 0.9 {
			return true
		}
	}
	return false
}
