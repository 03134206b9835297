package llm

import (
	"fmt"
	"strings"
	"time"

	"voice-agent/internal/timezone"
)

// Prompt is everything the reasoning engine sees for one turn.
type Prompt struct {
	AgentName string
	Company   string
	// Knowledge is the campaign's knowledge profile, verbatim JSON.
	Knowledge string
	Time      timezone.TimeContext
	// BookedSlots are already rendered in the reference zone.
	BookedSlots []string
	Window      BusinessWindow
	Learnings   Learnings
	History     []Turn
	Input       string
}

// BusinessWindow is the bookable window as the prompt states it.
type BusinessWindow struct {
	Open      string // "9 AM"
	Close     string // "9 PM"
	ZoneLabel string // "IST"
	// Buffer is the minimum gap kept around booked slots; 15 minutes when zero.
	Buffer time.Duration
}

// System renders the system prompt.
func (p Prompt) System() string {
	var b strings.Builder
	name := orDefault(p.AgentName, "Sam")
	company := orDefault(p.Company, "SusaLabs")
	w := p.Window

	fmt.Fprintf(&b, "You are %s, a professional outbound agent from %s.\n", name, company)
	b.WriteString("Tone: Helpful, consultative, and relaxed. Avoid sounding like a scripted robot.\n\n")

	b.WriteString("TIME CONTEXT:\n")
	fmt.Fprintf(&b, "- Caller local time: %s on %s, %s (zone %s)\n", p.Time.UserTime, p.Time.UserDay, p.Time.UserDate, p.Time.Zone)
	fmt.Fprintf(&b, "- Reference time: %s on %s (%s)\n\n", p.Time.ReferenceTime, p.Time.ReferenceDay, w.ZoneLabel)

	fmt.Fprintf(&b, "ALREADY BOOKED SLOTS (%s):\n", w.ZoneLabel)
	if len(p.BookedSlots) == 0 {
		b.WriteString("- None\n\n")
	} else {
		for _, s := range p.BookedSlots {
			fmt.Fprintf(&b, "- %s\n", s)
		}
		b.WriteString("\n")
	}

	b.WriteString("SCHEDULING RULES:\n")
	fmt.Fprintf(&b, "- Demos only Monday to Friday, between %s and %s %s.\n", w.Open, w.Close, w.ZoneLabel)
	fmt.Fprintf(&b, "- Never offer a time within %s of a booked slot.\n", bufferPhrase(w.Buffer))
	fmt.Fprintf(&b, "- You already know the caller's local time (%s); do not ask for it.\n", p.Time.UserTime)
	fmt.Fprintf(&b, "- Convert any time the caller suggests into %s before checking it.\n", w.ZoneLabel)
	b.WriteString("- When a demo is agreed, end your reply with exactly:\n")
	fmt.Fprintf(&b, "  [BOOK_DEMO: {\"user_time\": \"...\", \"ist_time\": \"YYYY-MM-DDTHH:MM:SS\", \"timezone\": %q, \"email\": \"...\"}]\n", p.Time.Zone)
	b.WriteString("- If the caller asks to be called back later, end your reply with exactly:\n")
	b.WriteString("  [SCHEDULE_CALLBACK: {\"delay_minutes\": N, \"reason\": \"...\"}]\n")
	b.WriteString("- Never read tags, JSON, or timestamps aloud.\n\n")

	if len(p.Learnings.DynamicRules) > 0 {
		b.WriteString("LEARNED RULES:\n")
		for _, r := range p.Learnings.DynamicRules {
			fmt.Fprintf(&b, "- %s\n", r)
		}
		b.WriteString("\n")
	}
	if len(p.Learnings.EffectivePhrases) > 0 {
		fmt.Fprintf(&b, "EFFECTIVE PHRASES (use naturally): %s\n\n", strings.Join(p.Learnings.EffectivePhrases, ", "))
	}
	b.WriteString("SAFETY:\n")
	b.WriteString("- Never use abusive or toxic language, even if the caller does.\n")
	if len(p.Learnings.ProhibitedTerms) > 0 {
		fmt.Fprintf(&b, "- Never use these terms: %s\n", strings.Join(p.Learnings.ProhibitedTerms, ", "))
	}
	b.WriteString("\nCORE RULES:\n")
	b.WriteString("1. Speak only in English.\n")
	b.WriteString("2. Keep responses concise (5-12 words).\n")
	fmt.Fprintf(&b, "3. Use only this knowledge: %s\n", orDefault(p.Knowledge, "{}"))
	b.WriteString("4. Never repeat yourself.\n")

	if len(p.History) > 0 {
		b.WriteString("\nRECENT CONVERSATION:\n")
		b.WriteString(Transcript(lastTurns(p.History, 5)))
		b.WriteString("\n")
	}
	return b.String()
}

func bufferPhrase(d time.Duration) string {
	if d <= 0 {
		d = 15 * time.Minute
	}
	if m := int(d.Round(time.Minute) / time.Minute); m > 1 {
		return fmt.Sprintf("%d minutes", m)
	}
	return "1 minute"
}
