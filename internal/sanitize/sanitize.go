// Package sanitize turns reasoning-engine output into text that is safe to
// hand to speech synthesis.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	isoTimestamp = regexp.MustCompile(`\d{4}-\d{2}-\d{2}(?:[T ]\d{2}:\d{2}(?::\d{2}(?:\.\d+)?)?(?:Z|[+-]\d{2}:?\d{2})?)?`)
	leakedFields = regexp.MustCompile(`(?i)\b(?:BOOK_DEMO|SCHEDULE_CALLBACK|user_time|ist_time|callback_time|delay_minutes)\b\s*:?`)
	speakerLabel = regexp.MustCompile(`(?i)(^|[\n.!?]\s*)(?:(?:assistant|agent|ai|bot|response)\s*:\s*)+`)
	spaceBefore  = regexp.MustCompile(`\s+([,.!?;:])`)

	abbreviations = []struct {
		re   *regexp.Regexp
		full string
	}{
		{regexp.MustCompile(`\bIST\b`), "India Standard Time"},
		{regexp.MustCompile(`\bEST\b`), "Eastern Standard Time"},
		{regexp.MustCompile(`\bEDT\b`), "Eastern Daylight Time"},
		{regexp.MustCompile(`\bCST\b`), "Central Standard Time"},
		{regexp.MustCompile(`\bCDT\b`), "Central Daylight Time"},
		{regexp.MustCompile(`\bMST\b`), "Mountain Standard Time"},
		{regexp.MustCompile(`\bPST\b`), "Pacific Standard Time"},
		{regexp.MustCompile(`\bPDT\b`), "Pacific Daylight Time"},
		{regexp.MustCompile(`\bGMT\b`), "Greenwich Mean Time"},
		{regexp.MustCompile(`\bUTC\b`), "Coordinated Universal Time"},
	}

	symbols = strings.NewReplacer(
		"&", " and ",
		"%", " percent ",
		"@", " at ",
	)
)

// Text strips control markers, JSON-looking fragments, ISO timestamps and
// symbols, and expands time-zone abbreviations. Text(Text(s)) == Text(s).
//
// Passes repeat until the output is stable. A pass only removes text or
// expands an abbreviation, which no later pass matches again.
func Text(s string) string {
	out := s
	for {
		next := pass(out)
		if next == out {
			return next
		}
		out = next
	}
}

func pass(s string) string {
	s = stripMarkers(s)
	s = stripBraced(s)
	s = isoTimestamp.ReplaceAllString(s, " ")
	s = leakedFields.ReplaceAllString(s, " ")
	s = speakerLabel.ReplaceAllString(s, "${1} ")
	for _, a := range abbreviations {
		s = a.re.ReplaceAllString(s, a.full)
	}
	s = symbols.Replace(s)
	s = strings.Map(dropSymbol, s)
	s = strings.Join(strings.Fields(s), " ")
	s = spaceBefore.ReplaceAllString(s, "$1")
	return strings.TrimSpace(s)
}

func dropSymbol(r rune) rune {
	switch r {
	case '"', '“', '”', '„', '`', '*', '_', '#', '~', '|', '\\', '/',
		'[', ']', '{', '}', '(', ')', '<', '>', '^', '=':
		return ' '
	}
	return r
}

// stripMarkers removes "[TAG: payload]" spans. The payload may contain nested
// brackets, braces and quoted strings; an unterminated marker runs to the end.
func stripMarkers(s string) string {
	var b strings.Builder
	i := 0
	for i < len(s) {
		if s[i] != '[' {
			b.WriteByte(s[i])
			i++
			continue
		}
		body, ok := markerBody(s, i+1)
		if !ok {
			b.WriteByte(s[i])
			i++
			continue
		}
		end := matchClose(s, body, '[', ']')
		if end < 0 {
			return b.String()
		}
		b.WriteByte(' ')
		i = end + 1
	}
	return b.String()
}

// markerBody reports whether s[from:] starts with an upper-case tag followed
// by a colon, and returns the index after the colon.
func markerBody(s string, from int) (int, bool) {
	j := from
	for j < len(s) && s[j] == ' ' {
		j++
	}
	start := j
	for j < len(s) && (s[j] >= 'A' && s[j] <= 'Z' || s[j] == '_') {
		j++
	}
	if j-start < 3 {
		return 0, false
	}
	for j < len(s) && s[j] == ' ' {
		j++
	}
	if j >= len(s) || s[j] != ':' {
		return 0, false
	}
	return j + 1, true
}

// matchClose finds the closer that balances an opener already consumed before
// from, skipping quoted strings. Returns -1 when unbalanced.
func matchClose(s string, from int, open, close byte) int {
	depth := 1
	inQuote := false
	for j := from; j < len(s); j++ {
		c := s[j]
		if inQuote {
			if c == '\\' {
				j++
				continue
			}
			if c == '"' {
				inQuote = false
			}
			continue
		}
		switch c {
		case '"':
			inQuote = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return j
			}
		}
	}
	return -1
}

// stripBraced removes balanced {...} fragments; lone braces are left for the
// symbol pass.
func stripBraced(s string) string {
	var b strings.Builder
	i := 0
	for i < len(s) {
		if s[i] != '{' {
			b.WriteByte(s[i])
			i++
			continue
		}
		end := matchClose(s, i+1, '{', '}')
		if end < 0 {
			b.WriteByte(s[i])
			i++
			continue
		}
		b.WriteByte(' ')
		i = end + 1
	}
	return b.String()
}
