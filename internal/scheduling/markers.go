package scheduling

import (
	"encoding/json"
	"strings"
)

const (
	tagBookDemo         = "BOOK_DEMO"
	tagScheduleCallback = "SCHEDULE_CALLBACK"
)

// BookingMarker is the payload of [BOOK_DEMO: {...}].
type BookingMarker struct {
	UserTime string `json:"user_time"`
	// ReferenceTime is the model's conversion into the reference zone (ISO 8601).
	ReferenceTime string `json:"ist_time"`
	Timezone      string `json:"timezone"`
	Email         string `json:"email,omitempty"`
}

// CallbackMarker is the payload of [SCHEDULE_CALLBACK: {...}]. Either a delay
// or an absolute time may be given; the delay wins when both are present.
type CallbackMarker struct {
	DelayMinutes json.Number `json:"delay_minutes"`
	CallbackTime string      `json:"callback_time"`
	Reason       string      `json:"reason"`
}

// Intent is what a reasoning reply asks the scheduler to do.
type Intent struct {
	Booking  *BookingMarker
	Callback *CallbackMarker
}

func (i Intent) Empty() bool { return i.Booking == nil && i.Callback == nil }

// ParseIntent extracts well-formed markers from text. Malformed payloads are
// ignored; the sanitizer strips them from the spoken reply regardless.
func ParseIntent(text string) Intent {
	var in Intent
	if raw, ok := markerPayload(text, tagBookDemo); ok {
		var m BookingMarker
		if json.Unmarshal([]byte(raw), &m) == nil && (m.ReferenceTime != "" || m.UserTime != "") {
			in.Booking = &m
		}
	}
	if raw, ok := markerPayload(text, tagScheduleCallback); ok {
		var m CallbackMarker
		if json.Unmarshal([]byte(raw), &m) == nil && (m.DelayMinutes != "" || m.CallbackTime != "") {
			in.Callback = &m
		}
	}
	return in
}

// markerPayload returns the balanced {...} object following "[TAG:".
func markerPayload(text, tag string) (string, bool) {
	i := strings.Index(text, "["+tag)
	if i < 0 {
		return "", false
	}
	rest := text[i+len(tag)+1:]
	colon := strings.IndexByte(rest, ':')
	if colon < 0 || strings.TrimSpace(rest[:colon]) != "" {
		return "", false
	}
	rest = rest[colon+1:]
	open := strings.IndexByte(rest, '{')
	if open < 0 || strings.TrimSpace(rest[:open]) != "" {
		return "", false
	}

	depth := 0
	inQuote := false
	for j := open; j < len(rest); j++ {
		c := rest[j]
		if inQuote {
			switch c {
			case '\\':
				j++
			case '"':
				inQuote = false
			}
			continue
		}
		switch c {
		case '"':
			inQuote = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return rest[open : j+1], true
			}
		}
	}
	return "", false
}
